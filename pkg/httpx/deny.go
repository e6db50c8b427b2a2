package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const (
	NotFoundMessage     = "Resource not found"
	UnauthorizedMessage = "Authentication required"
)

// notFoundBody is rendered once so every obfuscated denial is byte-identical
// no matter which code path produced it.
var notFoundBody = mustEnvelope(Envelope{Success: false, Message: NotFoundMessage, Error: "NOT_FOUND"})

var unauthorizedBody = mustEnvelope(Envelope{Success: false, Message: UnauthorizedMessage, Error: "UNAUTHORIZED"})

func mustEnvelope(e Envelope) []byte {
	b, err := json.Marshal(e)
	if err != nil {
		panic(err)
	}
	return append(b, '\n')
}

// NotFoundBody returns a copy of the canonical 404 body.
func NotFoundBody() []byte {
	return append([]byte(nil), notFoundBody...)
}

// WriteNotFound renders the generic denial used for anything the caller is
// not allowed to learn about.
func WriteNotFound(w http.ResponseWriter) {
	writeRaw(w, http.StatusNotFound, notFoundBody)
}

// WriteUnauthorized is reserved for handlers reached without an identity
// that the middleware chain should have guaranteed.
func WriteUnauthorized(w http.ResponseWriter) {
	writeRaw(w, http.StatusUnauthorized, unauthorizedBody)
}

// WriteForbidden is for denials whose reason the caller may act on.
func WriteForbidden(w http.ResponseWriter, message, code string) {
	WriteError(w, http.StatusForbidden, message, code)
}

// WriteTooManyRequests renders a rate limit rejection with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	secs := max(int(retryAfter.Round(time.Second)/time.Second), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, http.StatusTooManyRequests, message, "TOO_MANY_REQUESTS")
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
