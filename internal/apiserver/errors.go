package apiserver

import (
	"fmt"
	"net/http"

	"github.com/moolen/sleuth/internal/api"
)

// handleNotFound handles 404 responses
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	api.WriteError(w, http.StatusNotFound, api.ErrorCodeNotFound,
		fmt.Sprintf("Endpoint not found: %s", r.URL.Path))
}
