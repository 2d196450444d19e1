package server

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hannes/gridfinity-cutout/dimensions"
	"github.com/hannes/gridfinity-cutout/gridfinity"
	"github.com/hannes/gridfinity-cutout/identify"
	"github.com/hannes/gridfinity-cutout/storage"
)

// healthCheck provides a simple health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type identifyTextRequest struct {
	Input string `json:"input"`
}

func (s *Server) identifyText(w http.ResponseWriter, r *http.Request) {
	var req identifyTextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		s.writeDetail(w, http.StatusUnprocessableEntity, "input must not be empty")
		return
	}

	resp, err := s.identifier.IdentifyText(r.Context(), input)
	if err != nil {
		s.recordEvent(r.Context(), "identify", "error", err.Error())
		s.internalError(w, r, http.StatusBadGateway, "identification failed", err)
		return
	}
	s.recordEvent(r.Context(), "identify", "ok", resp.Item)
	s.writeJSON(w, http.StatusOK, normalizeResponse(resp))
}

func (s *Server) identifyImage(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Server.MaxUploadBytes
	if limit <= 0 {
		limit = identify.MaxImageSize
	}
	// multipart framing adds a little on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
	file, _, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeDetail(w, http.StatusRequestEntityTooLarge, "image larger than "+strconv.FormatInt(limit, 10)+" bytes")
			return
		}
		s.writeDetail(w, http.StatusUnprocessableEntity, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, "could not read upload")
		return
	}
	if int64(len(data)) > limit {
		s.writeDetail(w, http.StatusRequestEntityTooLarge, "image larger than "+strconv.FormatInt(limit, 10)+" bytes")
		return
	}
	info, err := identify.SniffImage(data)
	if err != nil {
		s.writeDetail(w, http.StatusUnsupportedMediaType, "unsupported image: expected PNG, JPEG, WebP or GIF")
		return
	}

	resp, err := s.identifier.IdentifyImage(r.Context(), data, info.MIME)
	if err != nil {
		s.recordEvent(r.Context(), "identify-image", "error", err.Error())
		s.internalError(w, r, http.StatusBadGateway, "identification failed", err)
		return
	}
	s.recordEvent(r.Context(), "identify-image", "ok", resp.Item)
	s.writeJSON(w, http.StatusOK, normalizeResponse(resp))
}

func normalizeResponse(resp identify.Response) identify.Response {
	if resp.Candidates == nil {
		resp.Candidates = []identify.Candidate{}
	}
	return resp
}

func splitURLs(raw string) []string {
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func (s *Server) dimensions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := dimensions.Query{
		ID:   strings.TrimSpace(query.Get("id")),
		Text: strings.TrimSpace(query.Get("q")),
		URLs: splitURLs(query.Get("urls")),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	result, resolved, err := s.dims.Fetch(ctx, q)
	switch {
	case errors.Is(err, dimensions.ErrNoQuery):
		s.writeDetail(w, http.StatusBadRequest, "one of id, q or urls is required")
		return
	case errors.Is(err, dimensions.ErrNotFound):
		s.recordEvent(r.Context(), "dimensions", "not_found", q.ID+q.Text)
		s.writeDetail(w, http.StatusNotFound, "Dimensions not found")
		return
	case err != nil:
		s.internalError(w, r, http.StatusBadGateway, "dimension lookup failed", err)
		return
	}

	if result.Cached {
		s.metrics.cache.WithLabelValues("hit").Inc()
	} else {
		s.metrics.cache.WithLabelValues("miss").Inc()
	}
	s.metrics.lookups.WithLabelValues(result.Source).Inc()

	out := *result
	if resolved != "" {
		out.ItemID = resolved
	} else if out.ItemID == "" {
		out.ItemID = q.ID
	}
	out.Confidence = math.Round(out.Confidence*100) / 100
	if out.Evidence == nil {
		out.Evidence = []string{}
	}
	s.recordEvent(r.Context(), "dimensions", "ok", out.ItemID+" via "+out.Source)
	s.writeJSON(w, http.StatusOK, out)
}

type proposalsRequest struct {
	ItemID  string          `json:"item_id"`
	Dims    gridfinity.Dims `json:"dims_mm"`
	Options map[string]any  `json:"options"`
}

func (s *Server) proposals(w http.ResponseWriter, r *http.Request) {
	var req proposalsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := req.Dims.Validate(); err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"proposals": gridfinity.GenerateProposals(req.Dims)})
}

// logsHandler returns the activity log, newest first
func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		s.writeDetail(w, http.StatusServiceUnavailable, "Logging not available")
		return
	}

	limit := 100
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = min(parsedLimit, 1000)
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	events, err := s.activity.GetEvents(ctx, limit, offset)
	if err != nil {
		s.internalError(w, r, http.StatusInternalServerError, "failed to retrieve logs", err)
		return
	}
	if events == nil {
		events = []storage.Event{}
	}
	total, err := s.activity.GetEventsCount(ctx)
	if err != nil {
		s.logger.Warn("failed to get logs count", zap.Error(err))
		total = -1
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"logs":   events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
