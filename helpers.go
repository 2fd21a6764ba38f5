package secretgate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// NewUserID returns a fresh, unguessable user id
func NewUserID() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// wantsJSON is true for API clients: JSON bodies or an Accept header preferring JSON
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// parseFields reads the named string fields from a url encoded form or a JSON object body
func parseFields(r *http.Request, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return nil, fmt.Errorf("invalid post body")
		}
		for _, f := range fields {
			if v, ok := data[f].(string); ok {
				out[f] = v
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("error parsing form")
	}
	for _, f := range fields {
		out[f] = r.FormValue(f)
	}
	return out, nil
}
