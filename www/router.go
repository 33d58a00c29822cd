package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"helprelay/engine"
	"helprelay/protocol"
)

// StatusReporter reports whether a backing connection is up.
type StatusReporter interface {
	IsConnected() bool
}

// Options configures the HTTP surface.
type Options struct {
	Token     string         // shared secret for /mesh and /api
	Messaging StatusReporter // optional, shown in /api/health
}

type Handlers struct {
	engine    *engine.Engine
	ingestor  *protocol.Ingestor
	token     string
	messaging StatusReporter
	eventHub  *EventHub
	audio     *http.Client
}

// NewRouter builds the relay's HTTP handler. The returned func stops the
// SSE hub.
func NewRouter(eng *engine.Engine, opts Options) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:    eng,
		ingestor:  protocol.NewIngestor(eng),
		token:     opts.Token,
		messaging: opts.Messaging,
		eventHub:  hub,
		audio:     &http.Client{Timeout: audioFetchTimeout},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Mesh ingress from gateways
	r.Post("/mesh", h.handleMesh)

	// Devices fetch mailbox audio without credentials
	r.Get("/audio/{id}", h.handleAudio)

	if m := eng.Metrics(); m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/events", hub.SSEHandler)

		r.Route("/api", func(r chi.Router) {
			r.Get("/health", h.apiHealthCheck)
			r.Get("/requests", h.apiListRequests)
			r.Get("/requests/{id}", h.apiGetRequest)
			r.Post("/requests/{id}/{action}", h.apiRequestAction)
			r.Get("/devices", h.apiListDevices)
			r.Post("/ping", h.apiPing)
			r.Post("/mail", h.apiMail)
			r.Post("/announce", h.apiAnnounce)
			r.Get("/audit", h.apiAuditLog)
		})
	})

	return r, hub.Stop
}
