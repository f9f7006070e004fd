package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/snowsense/internal/analysis"
	"github.com/couchcryptid/snowsense/internal/catalog"
	"github.com/couchcryptid/snowsense/internal/domain"
	"github.com/couchcryptid/snowsense/internal/preview"
	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/couchcryptid/snowsense/internal/session"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const maxRequestBody = 1 << 20

// classesMask is the pseudo-stage that renders dry and wet snow together.
const classesMask = "classes"

// Analyzer runs one snow analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (analysis.Result, error)
}

// RegionLister lists the regions requests may name.
type RegionLister interface {
	Regions() []catalog.Region
}

// API holds the services behind the /api/v1 routes. With a nil Sessions
// store every session route answers 404.
type API struct {
	Analyzer Analyzer
	Regions  RegionLister
	Sessions session.Store
}

type handlers struct {
	API
	logger *slog.Logger
}

func (a API) register(mux *http.ServeMux, logger *slog.Logger) {
	h := &handlers{API: a, logger: logger}
	mux.HandleFunc("GET /api/v1/regions", h.listRegions)
	mux.HandleFunc("POST /api/v1/analyses", h.createAnalysis)
	mux.HandleFunc("GET /api/v1/sessions/{id}/preview.png", h.previewPNG)
	mux.HandleFunc("GET /api/v1/sessions/{id}/masks/{file}", h.maskPNG)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.deleteSession)
}

type regionResponse struct {
	Key     string      `json:"key"`
	Name    string      `json:"name"`
	Aliases []string    `json:"aliases,omitempty"`
	Bounds  *[4]float64 `json:"bounds,omitempty"`
	Clips   []string    `json:"clips"`
}

func (h *handlers) listRegions(w http.ResponseWriter, _ *http.Request) {
	regions := h.Regions.Regions()
	out := make([]regionResponse, 0, len(regions))
	for _, r := range regions {
		rr := regionResponse{Key: r.Key, Name: r.Name, Aliases: r.Aliases, Clips: r.ClipNames()}
		if !r.Bounds.IsZero() {
			rr.Bounds = &[4]float64{r.Bounds.Min.X(), r.Bounds.Min.Y(), r.Bounds.Max.X(), r.Bounds.Max.Y()}
		}
		out = append(out, rr)
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"regions": out})
}

func (h *handlers) createAnalysis(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		h.sendError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	req, err := domain.DecodeRequest(body)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err)
		return
	}
	if req.KeepArtifacts && h.Sessions == nil {
		h.sendError(w, http.StatusBadRequest, errors.New("session storage is not enabled"))
		return
	}

	res, err := h.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		h.sendError(w, statusFor(err), err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res.Report)
}

func (h *handlers) previewPNG(w http.ResponseWriter, r *http.Request) {
	factor, err := downsample(r, preview.DefaultDownsample)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := h.session(r)
	if err != nil {
		h.sendError(w, statusFor(err), err)
		return
	}
	img, err := preview.RGB(entry.Stack, factor)
	if err != nil {
		h.sendError(w, statusFor(err), err)
		return
	}
	h.writePNG(w, img)
}

func (h *handlers) maskPNG(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok {
		http.NotFound(w, r)
		return
	}
	factor, err := downsample(r, 1)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := h.session(r)
	if err != nil {
		h.sendError(w, statusFor(err), err)
		return
	}

	img, err := renderMask(entry, name, factor)
	if err != nil {
		h.sendError(w, statusFor(err), err)
		return
	}
	h.writePNG(w, img)
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		h.sendError(w, http.StatusNotFound, session.ErrNotFound)
		return
	}
	if err := h.Sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.sendError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) session(r *http.Request) (session.Entry, error) {
	if h.Sessions == nil {
		return session.Entry{}, session.ErrNotFound
	}
	return h.Sessions.Get(r.Context(), r.PathValue("id"))
}

func renderMask(entry session.Entry, name string, factor int) (image.Image, error) {
	if name == classesMask {
		dry, err := entry.Mask(session.StageDry)
		if err != nil {
			return nil, err
		}
		wet, err := entry.Mask(session.StageWet)
		if err != nil {
			return nil, err
		}
		return preview.Classes(dry, wet, factor)
	}

	stage, err := session.ParseStage(name)
	if err != nil || stage == session.StageStack {
		return nil, fmt.Errorf("%w: no mask named %q", session.ErrNotFound, name)
	}
	m, err := entry.Mask(stage)
	if err != nil {
		return nil, err
	}
	return preview.Mask(m, factor)
}

func downsample(r *http.Request, def int) (int, error) {
	s := r.URL.Query().Get("downsample")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 64 {
		return 0, errors.New("downsample must be an integer in [1, 64]")
	}
	return n, nil
}

// writePNG encodes into a buffer first so an encoding failure can still be
// reported with a proper status.
func (h *handlers) writePNG(w http.ResponseWriter, img image.Image) {
	var buf bytes.Buffer
	if err := preview.Encode(&buf, img); err != nil {
		h.sendError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck // client went away
}

func (h *handlers) sendError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err, "status", status)
		msg = http.StatusText(status)
	}
	sharedobs.WriteJSON(w, status, map[string]any{"error": msg, "status": status})
}

// statusFor maps analysis and session errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		polygonErr   *raster.InvalidPolygonError
		missingErr   *raster.MissingBandError
		noOverlapErr *raster.NoIntersectionError
		shapeErr     *raster.ShapeMismatchError
		dimErr       *raster.DimensionMismatchError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.As(err, &polygonErr):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrRegionNotFound), errors.Is(err, session.ErrNotFound), errors.As(err, &missingErr):
		return http.StatusNotFound
	case errors.As(err, &noOverlapErr), errors.As(err, &shapeErr), errors.As(err, &dimErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
