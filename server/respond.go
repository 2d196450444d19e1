package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

// writeDetail answers with {"detail": msg}.
func (s *Server) writeDetail(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"detail": msg})
}

// writeLegacyError answers with {"error": msg}, the body of the download
// endpoint.
func (s *Server) writeLegacyError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err, reports it to Sentry and answers with a
// generic body.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	s.logger.Error(msg, zap.String("path", r.URL.Path), zap.String("request_id", requestID(r.Context())), zap.Error(err))
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(fmt.Errorf("%s: %w", msg, err))
	}
	s.writeDetail(w, status, msg)
}

// decodeJSON reads a JSON request body into v. Unknown fields are
// ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body larger than %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid JSON body: %v", err)
		}
	}
	return nil
}
