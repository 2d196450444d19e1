package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hannes/gridfinity-cutout/export"
	"github.com/hannes/gridfinity-cutout/files"
	"github.com/hannes/gridfinity-cutout/gridfinity"
)

type stlRequest struct {
	ItemID   string                  `json:"item_id"`
	Dims     gridfinity.Dims         `json:"dims_mm"`
	Proposal gridfinity.Proposal     `json:"proposal"`
	Options  gridfinity.BuildOptions `json:"options"`
	Label    string                  `json:"label"`
}

type generatedFile struct {
	Type       gridfinity.ProposalType `json:"type"`
	URL        string                  `json:"url"`
	PreviewURL string                  `json:"preview_url,omitempty"`
}

// stl builds the container for one proposal and stores it under a
// stable name.
func (s *Server) stl(w http.ResponseWriter, r *http.Request) {
	req := stlRequest{Options: gridfinity.DefaultBuildOptions()}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	itemID := "item"
	if raw := strings.TrimSpace(req.ItemID); raw != "" {
		itemID = files.SanitizeName(raw)
	}

	if err := s.checkProposalLimits(req.Proposal); err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	cfg, err := gridfinity.FromProposal(req.Proposal, req.Dims, req.Options)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	gen, err := gridfinity.NewGenerator(cfg)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.builds.Acquire(r.Context(), 1); err != nil {
		s.writeDetail(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	solid := gen.Build()
	s.builds.Release(1)

	name := req.Label
	if name == "" {
		name = itemID
	}
	rel, err := s.files.SaveNamed(req.Proposal.FileName(itemID), func(dst io.Writer) error {
		return export.WriteSTL(dst, solid, name)
	})
	if err != nil {
		s.recordEvent(r.Context(), "stl", "error", err.Error())
		s.internalError(w, r, http.StatusInternalServerError, "failed to write STL", err)
		return
	}
	s.metrics.files.WithLabelValues("stl").Inc()
	out := generatedFile{Type: req.Proposal.Type, URL: "/files/" + rel}

	if req.Options.Preview {
		opts := export.DefaultPreviewOptions()
		if s.cfg.Generator.PreviewSize > 0 {
			opts.Size = s.cfg.Generator.PreviewSize
		}
		pngName := strings.TrimSuffix(req.Proposal.FileName(itemID), ".stl") + ".png"
		prel, err := s.files.SaveNamed(pngName, func(dst io.Writer) error {
			return export.WritePreview(dst, solid, opts)
		})
		if err != nil {
			// the STL is already there, so a missing thumbnail is not fatal
			s.logger.Warn("failed to render preview", zap.String("name", pngName), zap.Error(err))
		} else {
			s.metrics.files.WithLabelValues("preview").Inc()
			out.PreviewURL = "/files/" + prel
		}
	}

	s.recordEvent(r.Context(), "stl", "ok", rel)
	s.writeJSON(w, http.StatusOK, map[string]any{"files": []generatedFile{out}})
}

// checkProposalLimits caps the bin size and compartment count a client may
// ask for, since build time grows with both.
func (s *Server) checkProposalLimits(p gridfinity.Proposal) error {
	g := s.cfg.Generator
	if g.MaxSlots > 0 && (p.XSlots > g.MaxSlots || p.YSlots > g.MaxSlots || p.ZUnits > g.MaxSlots) {
		return fmt.Errorf("x_slots, y_slots and z_units must be at most %d", g.MaxSlots)
	}
	if g.MaxCompartments > 0 && p.Compartments > g.MaxCompartments {
		return fmt.Errorf("compartments must be at most %d", g.MaxCompartments)
	}
	return nil
}

// positiveInt reads an integer query parameter, falling back to def when
// it is absent.
func positiveInt(r *http.Request, key string, def, maxVal int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	if maxVal > 0 && v > maxVal {
		return 0, fmt.Errorf("%s must be at most %d", key, maxVal)
	}
	return v, nil
}

func parseFiletype(r *http.Request) (export.Format, error) {
	raw := strings.ToLower(r.URL.Query().Get("filetype"))
	if raw == "" {
		raw = string(export.FormatSTL)
	}
	return export.ParseFormat(raw)
}

// generate writes a plain box to a token file for the legacy download flow.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Generator.MaxSizeMM
	width, err := positiveInt(r, "width", 42, maxSize)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	length, err := positiveInt(r, "length", 42, maxSize)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	height, err := positiveInt(r, "height", 20, maxSize)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	format, err := parseFiletype(r)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if n, err := s.files.Cleanup(); err != nil {
		s.logger.Warn("cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Debug("removed expired files", zap.Int("count", n))
	}

	solid := gridfinity.SimpleBox(float64(width), float64(length), float64(height))
	token, err := s.files.CreateToken(string(format), func(dst io.Writer) error {
		return export.Write(dst, format, solid, "gridfinity_container")
	})
	if err != nil {
		s.recordEvent(r.Context(), "generate", "error", err.Error())
		s.internalError(w, r, http.StatusInternalServerError, "failed to generate file", err)
		return
	}
	s.metrics.files.WithLabelValues(string(format)).Inc()
	s.recordEvent(r.Context(), "generate", "ok", fmt.Sprintf("%dx%dx%d %s", width, length, height, format))
	s.writeJSON(w, http.StatusOK, map[string]string{
		"download_url": "/download/" + token + "?filetype=" + string(format),
	})
}

var contentTypes = map[export.Format]string{
	export.FormatSTL:  "model/stl",
	export.FormatSTEP: "model/step",
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	format, err := parseFiletype(r)
	if err != nil {
		s.writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	token := r.PathValue("token")

	f, err := s.files.Open(token, string(format))
	switch {
	case errors.Is(err, files.ErrNotFound):
		s.writeLegacyError(w, http.StatusNotFound, "File not found or expired.")
		return
	case errors.Is(err, files.ErrExpired):
		s.writeLegacyError(w, http.StatusGone, "File expired.")
		return
	case err != nil:
		s.internalError(w, r, http.StatusInternalServerError, "failed to open file", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.internalError(w, r, http.StatusInternalServerError, "failed to open file", err)
		return
	}
	name := "gridfinity_container_" + token + "." + string(format)
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
