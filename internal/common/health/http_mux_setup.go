package health

import (
	"net/http"
)

// Mux is satisfied by http.ServeMux and by chi routers.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// SetupHttpMux registers the liveness endpoint on mux.
func SetupHttpMux(mux Mux, checker Checker) {
	mux.Handle("/health", NewHealthCheckHttpHandler(checker))
}
