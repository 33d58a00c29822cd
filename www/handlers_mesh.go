package www

import (
	"io"
	"net/http"
	"time"

	"helprelay/gateway"
	"helprelay/metrics"
	"helprelay/protocol"
)

const maxMeshBody = 64 << 10

// handleMesh ingests one raw frame from a gateway and reports whether it
// was handled and whether it was a duplicate.
func (h *Handlers) handleMesh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	m := h.engine.Metrics()

	if !h.validToken(r.Header.Get(gateway.TokenHeader)) {
		if m != nil {
			m.ObserveMesh("", metrics.ResultUnauthorized, time.Since(start))
		}
		h.jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMeshBody))
	if err != nil {
		h.jsonError(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.engine.Gateway().ObserveSource(remoteIP(r))

	msg := protocol.Parse(string(body))
	res := h.ingestor.Dispatch(r.Context(), msg)
	if m != nil {
		m.ObserveMesh(msg.Type(), meshResult(res), time.Since(start))
	}
	h.jsonOK(w, res)
}

func meshResult(res protocol.Result) string {
	switch {
	case !res.Handled:
		return metrics.ResultUnhandled
	case res.Deduped:
		return metrics.ResultDeduped
	}
	return metrics.ResultFresh
}
