package requests

import "context"

// Sink presents requests to operators. Render publishes a request on a new
// surface and returns a reference to it; Update rewrites the surface ref
// points at. Implementations must be safe for concurrent use.
type Sink interface {
	Render(ctx context.Context, req HelpRequest) (ref string, err error)
	Update(ctx context.Context, ref string, req HelpRequest) error
}

// NopSink discards everything. Used when no presentation backend is
// configured.
type NopSink struct{}

func (NopSink) Render(context.Context, HelpRequest) (string, error) { return "", nil }
func (NopSink) Update(context.Context, string, HelpRequest) error   { return nil }

var _ Sink = NopSink{}
