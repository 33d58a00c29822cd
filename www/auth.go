package www

import (
	"crypto/subtle"
	"net/http"

	"helprelay/gateway"
)

func (h *Handlers) validToken(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// requireToken guards the operator API. Browsers' EventSource cannot set
// headers, so a token query parameter is accepted as well.
func (h *Handlers) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get(gateway.TokenHeader)
		if tok == "" {
			tok = r.URL.Query().Get("token")
		}
		if !h.validToken(tok) {
			h.jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
