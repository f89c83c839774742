// Package trace tags every request with an id and keeps request counters.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// ContextKey type for context keys
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID is read from requests and echoed on responses.
	HeaderRequestID = "X-Request-ID"

	maxRequestIDLen = 64
)

// Middleware assigns request ids and tracks request metrics.
type Middleware struct {
	total         atomic.Int64
	inFlight      atomic.Int64
	totalDuration atomic.Int64 // microseconds
}

// Metrics is a snapshot of request counters.
type Metrics struct {
	TotalRequests       int64
	InFlight            int64
	AverageResponseTime int64 // in microseconds
}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if !validRequestID(requestID) {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		m.total.Add(1)
		m.inFlight.Add(1)
		defer func() {
			m.inFlight.Add(-1)
			m.totalDuration.Add(time.Since(start).Microseconds())
		}()

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts short printable ASCII ids from upstream proxies.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(b)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// FromRequest is GetRequestID for an *http.Request.
func FromRequest(r *http.Request) string {
	return GetRequestID(r.Context())
}

func (m *Middleware) GetMetrics() Metrics {
	total := m.total.Load()
	var avg int64
	if total > 0 {
		avg = m.totalDuration.Load() / total
	}
	return Metrics{
		TotalRequests:       total,
		InFlight:            m.inFlight.Load(),
		AverageResponseTime: avg,
	}
}
