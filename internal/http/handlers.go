package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"smsledger/internal/core"
	"smsledger/internal/log"
	"smsledger/internal/storage"
)

const notFoundMessage = "Transaction not found"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.ErrorContext(r.Context(), "Health check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := s.listKey(ctx, filter)
	if body, ok := s.cached(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeRaw(w, http.StatusOK, body)
		return
	}

	recs, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to list transactions",
			log.FieldOperation, log.OpList, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	body, err := encodeJSON(toResponses(recs))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode transactions")
		return
	}
	s.remember(key, body)
	w.Header().Set("X-Cache", "MISS")
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, notFoundMessage)
		return
	}

	key := "tx|" + strconv.FormatInt(id, 10)
	if body, ok := s.cached(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeRaw(w, http.StatusOK, body)
		return
	}

	rec, err := s.store.GetTransaction(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundMessage)
		return
	}
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to get transaction",
			log.FieldTransaction, id, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to get transaction")
		return
	}

	body, err := encodeJSON(toResponse(rec))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode transaction")
		return
	}
	s.remember(key, body)
	w.Header().Set("X-Cache", "MISS")
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// listKey prefixes the filter key with the store's latest id so a list
// cached before an ingest is not served after it. Returns "" when the
// version cannot be read, which bypasses the cache.
func (s *Server) listKey(ctx context.Context, f storage.TransactionFilter) string {
	if !s.cacheEnabled {
		return ""
	}
	v, ok := s.store.(versioner)
	if !ok {
		return filterKey(f)
	}
	latest, err := v.LatestID(ctx)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Failed to read store version", log.FieldError, err)
		return ""
	}
	return "v" + strconv.FormatInt(latest, 10) + "|" + filterKey(f)
}

func (s *Server) cached(key string) ([]byte, bool) {
	if !s.cacheEnabled || key == "" {
		return nil, false
	}
	return s.responses.Get(key)
}

func (s *Server) remember(key string, body []byte) {
	if s.cacheEnabled && key != "" {
		s.responses.Set(key, body)
	}
}
