// Package httpapi HTTP интерфейс команд приложения к координатору звонков.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/callkit/pkg/audio"
	"github.com/arzzra/callkit/pkg/callkit"
)

// Coordinator операции координатора, доступные через HTTP
type Coordinator interface {
	Register(ctx context.Context, id string, direction callkit.Direction, meta callkit.Metadata) error
	Answer(ctx context.Context, id string) error
	Connected(ctx context.Context, id string) error
	Hold(ctx context.Context, id string, onHold bool) error
	Disconnect(ctx context.Context, id string, cause callkit.DisconnectCause) error
	EndAll(ctx context.Context) error
	SetAudioRoute(ctx context.Context, id string, route audio.Route) bool
	ActiveSessions() []callkit.SessionSummary
	Session(id string) (callkit.SessionSummary, error)
	AudioState() callkit.AudioState
}

// Config параметры обработчика
type Config struct {
	Logger *slog.Logger
	// Gatherer источник метрик для /metrics; nil отключает маршрут
	Gatherer prometheus.Gatherer
	// Events обработчик подписки на события (/ws); nil отключает маршрут
	Events http.Handler
}

// Handler HTTP обработчик команд
type Handler struct {
	coord  Coordinator
	cfg    Config
	logger *slog.Logger
}

// NewHandler создает обработчик
func NewHandler(coord Coordinator, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		coord:  coord,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "httpapi")),
	}
}

// NewRouter возвращает маршрутизатор со всеми маршрутами API
func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/calls", func(r chi.Router) {
		r.Get("/", h.listCalls)
		r.Post("/", h.registerCall)
		r.Delete("/", h.endAll)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getCall)
			r.Delete("/", h.disconnectCall)
			r.Post("/answer", h.answerCall)
			r.Post("/connected", h.connectedCall)
			r.Post("/hold", h.holdCall)
			r.Put("/route", h.setRoute)
		})
	})

	r.Get("/audio", h.audioState)

	if h.cfg.Events != nil {
		r.Get("/ws", h.cfg.Events.ServeHTTP)
	}
	if h.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

type registerRequest struct {
	ID         string         `json:"id"`
	Direction  string         `json:"direction"`
	CallerName string         `json:"nameCaller"`
	Handle     string         `json:"handle"`
	Extra      map[string]any `json:"extra"`
}

type holdRequest struct {
	OnHold bool `json:"isOnHold"`
}

type routeRequest struct {
	Route string `json:"route"`
}

type routeResponse struct {
	ID      string `json:"id"`
	Route   string `json:"route"`
	Applied bool   `json:"applied"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
}

func (h *Handler) registerCall(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	direction, err := callkit.ParseDirection(req.Direction)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	meta := callkit.Metadata{
		CallerName: req.CallerName,
		Handle:     req.Handle,
		Extra:      req.Extra,
	}
	if err := h.coord.Register(r.Context(), req.ID, direction, meta); err != nil {
		h.writeCallError(w, r, err)
		return
	}

	summary, err := h.coord.Session(req.ID)
	if err != nil {
		h.writeCallError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) listCalls(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coord.ActiveSessions())
}

func (h *Handler) getCall(w http.ResponseWriter, r *http.Request) {
	summary, err := h.coord.Session(chi.URLParam(r, "id"))
	if err != nil {
		h.writeCallError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) answerCall(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.coord.Answer(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) connectedCall(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.coord.Connected(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) holdCall(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	h.command(w, r, h.coord.Hold(r.Context(), chi.URLParam(r, "id"), req.OnHold))
}

func (h *Handler) disconnectCall(w http.ResponseWriter, r *http.Request) {
	cause, err := callkit.ParseCause(r.URL.Query().Get("cause"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	h.command(w, r, h.coord.Disconnect(r.Context(), chi.URLParam(r, "id"), cause))
}

func (h *Handler) endAll(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.coord.EndAll(r.Context()))
}

func (h *Handler) setRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	route, err := audio.ParseRoute(req.Route)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	id := chi.URLParam(r, "id")
	applied := h.coord.SetAudioRoute(r.Context(), id, route)
	h.writeJSON(w, http.StatusOK, routeResponse{ID: id, Route: route.String(), Applied: applied})
}

func (h *Handler) audioState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coord.AudioState())
}

func (h *Handler) command(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.writeCallError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeCallError отображает ошибку координатора в HTTP статус
func (h *Handler) writeCallError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, callkit.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, callkit.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, callkit.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, callkit.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	h.writeError(w, r, status, err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	resp := errorResponse{Error: err.Error()}

	var callErr *callkit.CallError
	if errors.As(err, &callErr) {
		resp.Code = callErr.Code
		resp.Category = string(callErr.Category)
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Any("error", err))

	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
