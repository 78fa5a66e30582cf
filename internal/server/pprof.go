package server

import (
	"crypto/subtle"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
)

const pprofPrefix = "/debug/pprof/"

// mountPprof serves the runtime profiles behind token. The routes are not
// mounted at all when token is empty.
func (s *Server) mountPprof(mux *http.ServeMux, token string) {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return
	}
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withToken(tok, h) }
	mux.HandleFunc("GET "+pprofPrefix, wrap(hpprof.Index))
	mux.HandleFunc("GET "+pprofPrefix+"cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("GET "+pprofPrefix+"profile", wrap(hpprof.Profile))
	mux.HandleFunc("GET "+pprofPrefix+"symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("GET "+pprofPrefix+"trace", wrap(hpprof.Trace))
}

// withToken accepts "Authorization: Bearer <token>" or "?token=<token>".
func withToken(tok string, h http.HandlerFunc) http.HandlerFunc {
	want := []byte(tok)
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}
