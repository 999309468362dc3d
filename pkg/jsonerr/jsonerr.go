// Package jsonerr writes structured error bodies for non-feed HTTP
// errors.
package jsonerr

import (
	"encoding/json"
	"net/http"
)

// Response is the error body.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error works like http.Error but uses Response as the body. Like
// http.Error, the handler still needs a naked return afterwards.
func Error(w http.ResponseWriter, r *Response, httpcode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpcode)
	b, _ := json.Marshal(r)
	w.Write(b)
}
