package api

import (
	"encoding/json/v2"
	"net/http"

	"github.com/stacksapp/stacks-server/internal/http/response"
)

// decodeJSON reads the request body into v and reports a 400 on failure.
// Returns false if the response has already been written.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.UnmarshalRead(r.Body, v); err != nil {
		response.BadRequest(w, "invalid JSON body", s.logger)
		return false
	}
	return true
}
