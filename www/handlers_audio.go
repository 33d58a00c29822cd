package www

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"helprelay/mailbox"
)

const audioFetchTimeout = 30 * time.Second

// handleAudio serves a mailbox clip. Local files support range requests;
// remote clips are streamed through from their upstream URL.
func (h *Handlers) handleAudio(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.engine.Mailbox().Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "audio not found", http.StatusNotFound)
		return
	}
	switch entry.Kind {
	case mailbox.KindFile:
		h.serveAudioFile(w, r, entry)
	case mailbox.KindURL:
		h.proxyAudio(w, r, entry)
	default:
		http.Error(w, "audio not found", http.StatusNotFound)
	}
}

func (h *Handlers) serveAudioFile(w http.ResponseWriter, r *http.Request, entry mailbox.Entry) {
	f, err := os.Open(entry.Path)
	if err != nil {
		http.Error(w, "audio not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "audio not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", audioContentType(entry.Ext))
	http.ServeContent(w, r, entry.FileName(), info.ModTime(), f)
}

func (h *Handlers) proxyAudio(w http.ResponseWriter, r *http.Request, entry mailbox.Entry) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, entry.URL, nil)
	if err != nil {
		http.Error(w, "bad upstream url", http.StatusBadGateway)
		return
	}
	resp, err := h.audio.Do(req)
	if err != nil {
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		http.Error(w, "upstream returned "+resp.Status, http.StatusBadGateway)
		return
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	w.Header().Set("Content-Type", ct)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, resp.Body)
}

func audioContentType(ext string) string {
	if ext == "wav" {
		return "audio/wav"
	}
	return "audio/mpeg"
}
