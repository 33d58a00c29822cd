package engine

import (
	"context"
	"log"
	"time"

	"helprelay/gateway"
	"helprelay/lighthouse"
	"helprelay/mailbox"
	"helprelay/metrics"
	"helprelay/protocol"
	"helprelay/requests"
	"helprelay/store"
)

type LogFunc func(format string, args ...any)

const (
	minProbeTimeout     = time.Second
	maxProbeTimeout     = 15 * time.Second
	defaultProbeTimeout = 4 * time.Second
	defaultFleetSize    = 30
)

// Config wires the engine to its collaborators. Table, Registry and Gateway
// are required; everything else is optional.
type Config struct {
	Table    *requests.Table
	Registry *lighthouse.Registry
	Gateway  *gateway.Client
	Sink     requests.Sink
	Mailbox  *mailbox.Registry
	Synth    mailbox.Synthesizer
	DB       *store.DB
	Metrics  *metrics.Metrics

	FleetSize    int           // expected device ids are 1..FleetSize
	HTTPPort     int           // used to build mailbox audio links
	ProbeTimeout time.Duration // default when a probe asks for none
	CacheDir     string        // where synthesized announcements are written
	LogFunc      LogFunc
}

// Engine applies mesh frames and operator actions to the request table and
// fans the results out to the sink, the gateways and event subscribers.
type Engine struct {
	protocol.NoOpHandler

	table    *requests.Table
	registry *lighthouse.Registry
	gateway  *gateway.Client
	sink     requests.Sink
	mailbox  *mailbox.Registry
	synth    mailbox.Synthesizer
	db       *store.DB
	metrics  *metrics.Metrics

	fleetSize    int
	httpPort     int
	probeTimeout time.Duration
	cacheDir     string

	Events *EventBus
	logFn  LogFunc
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	sink := c.Sink
	if sink == nil {
		sink = requests.NopSink{}
	}
	box := c.Mailbox
	if box == nil {
		box = mailbox.NewRegistry()
	}
	fleet := c.FleetSize
	if fleet <= 0 {
		fleet = defaultFleetSize
	}
	probeTimeout := c.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Engine{
		table:        c.Table,
		registry:     c.Registry,
		gateway:      c.Gateway,
		sink:         sink,
		mailbox:      box,
		synth:        c.Synth,
		db:           c.DB,
		metrics:      c.Metrics,
		fleetSize:    fleet,
		httpPort:     c.HTTPPort,
		probeTimeout: probeTimeout,
		cacheDir:     c.CacheDir,
		Events:       NewEventBus(),
		logFn:        logFn,
	}
}

// Start wires event subscribers and hooks the registry's liveness changes
// into the event bus.
func (e *Engine) Start() {
	e.registry.SetEmitter(&deviceEmitter{bus: e.Events})
	e.wireEventHandlers()
	e.logFn("engine: started (fleet size %d)", e.fleetSize)
}

func (e *Engine) Stop() {
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) Table() *requests.Table          { return e.table }
func (e *Engine) Registry() *lighthouse.Registry  { return e.registry }
func (e *Engine) Gateway() *gateway.Client        { return e.gateway }
func (e *Engine) Mailbox() *mailbox.Registry      { return e.mailbox }
func (e *Engine) DB() *store.DB                   { return e.db }
func (e *Engine) Metrics() *metrics.Metrics       { return e.metrics }
func (e *Engine) FleetSize() int                  { return e.fleetSize }

// relay posts one outbound frame to the gateways. Delivery is best effort.
func (e *Engine) relay(ctx context.Context, m protocol.Message) {
	e.gateway.Broadcast(ctx, protocol.Encode(m))
}

// present renders a new surface for req and stores the returned ref. If
// another surface was attached while rendering, the new one is rewritten
// with the current state and left detached.
func (e *Engine) present(ctx context.Context, req requests.HelpRequest) {
	ref, err := e.sink.Render(ctx, req)
	if err != nil {
		e.logFn("engine: render request %s: %v", req.ID, err)
		return
	}
	cur, ok := e.table.AttachRef(req.ID, req.PresentationRef, ref)
	if ok || ref == "" || cur.ID == "" {
		return
	}
	e.logFn("engine: request %s moved to %s while rendering %s", req.ID, cur.PresentationRef, ref)
	if err := e.sink.Update(ctx, ref, cur); err != nil {
		e.logFn("engine: update request %s: %v", req.ID, err)
	}
}

// refresh rewrites the existing surface for req, or renders one if the
// request was never presented.
func (e *Engine) refresh(ctx context.Context, req requests.HelpRequest) {
	if req.PresentationRef == "" {
		e.present(ctx, req)
		return
	}
	if err := e.sink.Update(ctx, req.PresentationRef, req); err != nil {
		e.logFn("engine: update request %s: %v", req.ID, err)
	}
}

// deviceEmitter implements lighthouse.EventEmitter.
type deviceEmitter struct {
	bus *EventBus
}

func (d *deviceEmitter) EmitDeviceOnline(rec lighthouse.DeviceRecord) {
	d.bus.Emit(Event{Type: EventDeviceOnline, Payload: DeviceEvent{Device: rec}})
}

func (d *deviceEmitter) EmitDeviceOffline(rec lighthouse.DeviceRecord) {
	d.bus.Emit(Event{Type: EventDeviceOffline, Payload: DeviceEvent{Device: rec}})
}
