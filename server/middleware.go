package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const ownerKey contextKey = "owner"

// ownerAddress returns the authenticated owner address, if any.
func ownerAddress(ctx context.Context) string {
	addr, _ := ctx.Value(ownerKey).(string)
	return addr
}

// recoverer turns handler panics into an INTERNAL_ERROR envelope instead of
// a broken connection.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("handler panic",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", middleware.GetReqID(r.Context()))
				s.fail(w, http.StatusInternalServerError, CodeInternalError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// accessLog logs one line per request with status and latency.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// requirePipelineID rejects malformed pipeline IDs before anything else
// touches the request, auth included.
func (s *Server) requirePipelineID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if u, err := uuid.Parse(id); err != nil || u.Version() != 4 {
			s.fail(w, http.StatusBadRequest, CodeInvalidInput, "pipeline id must be a UUIDv4")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireOwner verifies the three X-Owner-* headers against the resource ID.
// The signed message is "{id}:{timestamp}" and the timestamp must fall within
// the configured skew window. The verified address lands in the request
// context; handlers still compare it against the row's owner.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.Header.Get("X-Owner-Address")
		signature := r.Header.Get("X-Owner-Signature")
		timestamp := r.Header.Get("X-Owner-Timestamp")
		if address == "" || signature == "" || timestamp == "" {
			s.fail(w, http.StatusUnauthorized, CodeUnauthorized, "missing owner authentication headers")
			return
		}

		ms, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			s.fail(w, http.StatusUnauthorized, CodeUnauthorized, "malformed owner timestamp")
			return
		}
		skew := time.Since(time.UnixMilli(ms))
		if skew < 0 {
			skew = -skew
		}
		if skew > s.cfg.Auth.TimestampSkew {
			s.fail(w, http.StatusUnauthorized, CodeUnauthorized, "owner timestamp outside accepted window")
			return
		}

		message := chi.URLParam(r, "id") + ":" + timestamp
		if err := s.verifier.Verify(address, message, signature); err != nil {
			s.fail(w, http.StatusUnauthorized, CodeUnauthorized, "owner signature verification failed")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, address)))
	})
}
