package www

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"helprelay/engine"
	"helprelay/requests"
)

const maxUploadBytes = 32 << 20

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	devices := h.engine.Registry().List()
	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
	}
	resp := map[string]any{
		"status":          "ok",
		"gateway_source":  h.engine.Gateway().LastSource(),
		"gateway_targets": h.engine.Gateway().Targets(),
		"requests":        h.engine.Table().Counts(),
		"devices":         len(devices),
		"devices_online":  online,
		"sse_clients":     h.eventHub.ClientCount(),
	}
	if h.messaging != nil {
		resp["messaging"] = h.messaging.IsConnected()
	}
	h.jsonOK(w, resp)
}

func (h *Handlers) apiListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !requests.ValidStatus(status) {
		h.jsonError(w, "invalid status", http.StatusBadRequest)
		return
	}
	h.jsonOK(w, h.engine.Table().List(status))
}

func (h *Handlers) apiGetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.engine.Table().Get(chi.URLParam(r, "id"))
	if !ok {
		h.jsonError(w, "not found", http.StatusNotFound)
		return
	}
	h.jsonOK(w, map[string]any{
		"request":     req,
		"status_line": req.StatusLine(),
	})
}

func (h *Handlers) apiRequestAction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor string `json:"actor"`
		Text  string `json:"text"`
	}
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req, err := h.engine.HandleOperatorAction(r.Context(), engine.OperatorAction{
		RequestID: chi.URLParam(r, "id"),
		Action:    chi.URLParam(r, "action"),
		Actor:     body.Actor,
		Text:      body.Text,
	})
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonOK(w, req)
}

func (h *Handlers) apiListDevices(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Registry().List())
}

func (h *Handlers) apiPing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TimeoutSeconds float64 `json:"timeout_seconds"`
	}
	if err := decodeOptionalJSON(r, &body); err != nil {
		h.jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	timeout := time.Duration(body.TimeoutSeconds * float64(time.Second))
	report, err := h.engine.Probe(r.Context(), timeout)
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonOK(w, map[string]any{
		"report":  report,
		"summary": report.Summary(),
	})
}

// apiMail queues a mailbox clip. JSON bodies carry a URL; multipart forms
// carry an uploaded file in the "file" field.
func (h *Handlers) apiMail(w http.ResponseWriter, r *http.Request) {
	var (
		receipt engine.MailReceipt
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Target string `json:"target"`
			URL    string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.jsonError(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		receipt, err = h.engine.SendMail(r.Context(), body.Target, body.URL)
	} else {
		if perr := r.ParseMultipartForm(maxUploadBytes); perr != nil {
			h.jsonError(w, "invalid form: "+perr.Error(), http.StatusBadRequest)
			return
		}
		target := r.FormValue("target")
		if url := r.FormValue("url"); url != "" {
			receipt, err = h.engine.SendMail(r.Context(), target, url)
		} else {
			file, header, ferr := r.FormFile("file")
			if ferr != nil {
				err = engine.ErrNoAudio
			} else {
				defer file.Close()
				receipt, err = h.engine.SendMailFile(r.Context(), target, header.Filename, file)
			}
		}
	}
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonOK(w, receipt)
}

func (h *Handlers) apiAnnounce(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target string `json:"target"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	receipt, err := h.engine.Announce(r.Context(), body.Target, body.Text)
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonOK(w, receipt)
}

func (h *Handlers) apiAuditLog(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		h.jsonError(w, "audit journal disabled", http.StatusNotFound)
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	var (
		entries any
		err     error
	)
	if typ, id := r.URL.Query().Get("entity_type"), r.URL.Query().Get("entity_id"); typ != "" && id != "" {
		entries, err = db.ListEntityAudit(typ, id)
	} else {
		entries, err = db.ListAuditLog(limit)
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, entries)
}

// decodeOptionalJSON decodes r's body into v. An empty body leaves v as is.
func decodeOptionalJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
