package www

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"helprelay/engine"
	"helprelay/gateway"
	"helprelay/mailbox"
	"helprelay/requests"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// errorStatus maps engine and request errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, requests.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, requests.ErrNotClaimer):
		return http.StatusForbidden
	case errors.Is(err, requests.ErrAlreadyHasDetails),
		errors.Is(err, requests.ErrNeedsDetails),
		errors.Is(err, requests.ErrAlreadyClaimed),
		errors.Is(err, requests.ErrNotClaimed):
		return http.StatusConflict
	case errors.Is(err, requests.ErrEmptyReason),
		errors.Is(err, engine.ErrActorRequired),
		errors.Is(err, engine.ErrUnknownAction),
		errors.Is(err, engine.ErrBadTarget),
		errors.Is(err, engine.ErrNoAudio),
		errors.Is(err, engine.ErrEmptyAnnouncement),
		errors.Is(err, mailbox.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrNoGateway):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrNoSynthesizer):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
