// Package api exposes asset management and hazard profiling over HTTP.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/asset"
	"github.com/sells-group/exposure-cli/internal/config"
	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
	"github.com/sells-group/exposure-cli/internal/profile"
	"github.com/sells-group/exposure-cli/internal/resilience"
	"github.com/sells-group/exposure-cli/internal/risk"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

// Server serves the exposure HTTP API.
type Server struct {
	store     asset.Store
	engine    *profile.Engine
	validator *geometry.Validator
	layers    []risk.HazardLayerRef
	breakers  *resilience.Breakers
	origins   []string
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithBreakers reports circuit breaker states on the health endpoint.
func WithBreakers(b *resilience.Breakers) Option {
	return func(s *Server) { s.breakers = b }
}

// WithAllowedOrigins sets the CORS origin allowlist.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates an API server.
func New(store asset.Store, engine *profile.Engine, validator *geometry.Validator, layers []risk.HazardLayerRef, opts ...Option) *Server {
	s := &Server{
		store:     store,
		engine:    engine,
		validator: validator,
		layers:    layers,
		origins:   []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/layers", s.handleLayers)
		r.Post("/validate", s.handleValidate)
		r.Route("/assets", func(r chi.Router) {
			r.Get("/", s.handleListAssets)
			r.Post("/", s.handleCreateAsset)
			r.Get("/{id}", s.handleGetAsset)
			r.Delete("/{id}", s.handleDeleteAsset)
			r.Post("/{id}/profiles", s.handleProfile)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":     "ok",
		"grid_cache": s.engine.Grids().Stats(),
	}
	if s.breakers != nil {
		resp["breakers"] = s.breakers.States()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"layers": s.layers})
}

// handleValidate reports validation results without persisting anything.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	draft, ok := s.decodeFeature(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.validator.Validate(draft.Ring))
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	draft, ok := s.decodeFeature(w, r)
	if !ok {
		return
	}
	a, res, err := draft.Build(s.validator)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "polygon failed validation",
			"validation": res,
		})
		return
	}
	if err := s.store.Save(r.Context(), a); err != nil {
		s.internalError(w, "save asset", err)
		return
	}
	zap.L().Info("api: asset created",
		zap.String("asset_id", a.ID()),
		zap.Float64("area_km2", a.AreaKm2()),
	)
	writeJSON(w, http.StatusCreated, a.Feature())
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	assets, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, "list assets", err)
		return
	}
	writeJSON(w, http.StatusOK, asset.FeatureCollection(assets))
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadAsset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Feature())
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		if asset.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "asset not found")
			return
		}
		s.internalError(w, "delete asset", err)
		return
	}
	s.engine.Grids().Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

type profileRequest struct {
	Hazards []string `json:"hazards"`
}

// handleProfile profiles a stored asset against the requested hazards.
// Per-hazard failures are reported in the response body.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadAsset(w, r)
	if !ok {
		return
	}

	var req profileRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	refs, err := config.SelectLayers(s.layers, req.Hazards)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := s.engine.ProfileAll(r.Context(), a, refs)
	if err != nil {
		s.internalError(w, "profile asset", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) loadAsset(w http.ResponseWriter, r *http.Request) (*asset.PolygonAsset, bool) {
	a, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if asset.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "asset not found")
			return nil, false
		}
		s.internalError(w, "get asset", err)
		return nil, false
	}
	return a, true
}

func (s *Server) decodeFeature(w http.ResponseWriter, r *http.Request) (asset.Draft, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return asset.Draft{}, false
	}
	draft, err := asset.ParseFeature(body)
	if err != nil {
		if fault.Is(err, fault.KindGeometry) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return asset.Draft{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid geojson")
		return asset.Draft{}, false
	}
	return draft, true
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
