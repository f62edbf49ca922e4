package response

import (
	"encoding/json"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/talentview/sessionkit/internal/domain"
)

// JSON writes data as the platform's plain JSON wire format. The request
// id travels in a header so bodies stay byte-compatible with the real API.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes the platform error shape: {"message","status","path"}.
func Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.APIError{Message: message, Status: status, Path: r.URL.Path})
}

func writeRequestID(w http.ResponseWriter, r *http.Request) {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id != "" {
		w.Header().Set("X-Request-Id", id)
	}
}
