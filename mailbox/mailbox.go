package mailbox

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrUnsupportedFormat rejects audio that devices cannot play.
var ErrUnsupportedFormat = errors.New("only .mp3 or .wav audio is supported")

// Entry kinds.
const (
	KindFile = "file"
	KindURL  = "url"
)

// Entry is one clip devices can fetch from /audio/{id}.
type Entry struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"` // local file for KindFile
	URL      string `json:"url,omitempty"`  // upstream for KindURL
	Filename string `json:"filename,omitempty"`
	Ext      string `json:"ext"`
}

// FileName is the name devices see: the id plus the extension.
func (e Entry) FileName() string {
	if e.Ext == "" {
		return e.ID
	}
	return e.ID + "." + e.Ext
}

// Request is a text-to-speech job.
type Request struct {
	Text  string
	Voice string
}

// Synthesizer renders announcement text to a WAV file at outPath.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req Request, outPath string) error
}

// Registry maps opaque ids to audio clips. Entries live for the life of
// the process.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// AddFile registers a local file. filename decides the extension.
func (r *Registry) AddFile(filePath, filename string) (Entry, error) {
	ext, err := AudioExt(filename)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{ID: newID(), Kind: KindFile, Path: filePath, Filename: filename, Ext: ext}
	r.put(e)
	return e, nil
}

// AddURL registers a remote clip that is proxied on fetch.
func (r *Registry) AddURL(url string) (Entry, error) {
	ext, err := AudioExt(url)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{ID: newID(), Kind: KindURL, URL: url, Ext: ext}
	r.put(e)
	return e, nil
}

// Get looks up an entry. A trailing extension on id is ignored.
func (r *Registry) Get(id string) (Entry, bool) {
	if i := strings.IndexByte(id, '.'); i >= 0 {
		id = id[:i]
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) put(e Entry) {
	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()
}

// AudioExt returns "mp3" or "wav" for a supported file name or URL. Query
// strings are ignored and matching is case-insensitive.
func AudioExt(name string) (string, error) {
	clean := strings.ToLower(name)
	if i := strings.IndexByte(clean, '?'); i >= 0 {
		clean = clean[:i]
	}
	switch ext := strings.TrimPrefix(path.Ext(clean), "."); ext {
	case "mp3", "wav":
		return ext, nil
	}
	return "", ErrUnsupportedFormat
}

// NewFileName returns a collision-free cache file name for filename.
func NewFileName(filename string) string {
	return newID() + "_" + path.Base(filename)
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
