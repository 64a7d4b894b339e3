package auth

import (
	"encoding/json"
	"net/http"
	"time"
)

// Rejection is the body of every rejected request.
type Rejection struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// WriteRejection writes the structured rejection for o.
func WriteRejection(w http.ResponseWriter, o Outcome, now time.Time) {
	if o.Status() == http.StatusUnauthorized && o.Credential.Scheme == SchemeSignedToken {
		w.Header().Set(HeaderWWWAuthenticate, `Bearer realm="authguard"`)
	}
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(o.Status())
	_ = json.NewEncoder(w).Encode(Rejection{
		Error:     o.Code(),
		Message:   o.Message(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}
