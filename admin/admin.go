// Package admin exposes a module tree over HTTP: its state, its modules and
// the errors it captured, plus optional endpoints that start and stop it.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/GoCodeAlone/modtree"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Tree is the part of *modtree.Tree the admin endpoints use.
type Tree interface {
	Name() string
	State() modtree.State
	Module(name string) (modtree.ModuleInfo, bool)
	Modules() []modtree.ModuleInfo
	Errors() []error
	Init(ctx context.Context) (*modtree.Handle, error)
	Deinit(ctx context.Context) *modtree.Handle
}

// Config controls the admin router.
type Config struct {
	// AllowControl enables POST /tree/init and POST /tree/deinit.
	AllowControl bool `json:"allow_control" yaml:"allow_control" toml:"allow_control"`

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler `json:"-" yaml:"-" toml:"-"`
}

// TreeResponse is the body of GET /tree.
type TreeResponse struct {
	Name    string        `json:"name"`
	State   modtree.State `json:"state"`
	Modules int           `json:"modules"`
	Errors  int           `json:"errors"`
}

// ErrorResponse describes one captured error.
type ErrorResponse struct {
	Module string        `json:"module,omitempty"`
	Phase  modtree.Phase `json:"phase,omitempty"`
	Error  string        `json:"error"`
}

// Handler serves the admin endpoints of one tree.
type Handler struct {
	tree   Tree
	logger modtree.Logger
}

// NewRouter creates the admin router for tree. A nil logger logs through
// slog's default logger.
//
// Routes:
//   - GET /tree - tree summary
//   - GET /tree/ready - 200 when the tree is up, 503 otherwise
//   - GET /modules - every module
//   - GET /modules/{name} - one module
//   - GET /errors - captured errors
//   - POST /tree/init, POST /tree/deinit - when AllowControl is set
//   - GET /metrics - when Metrics is set
func NewRouter(tree Tree, logger modtree.Logger, cfg Config) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{tree: tree, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/tree", func(r chi.Router) {
		r.Get("/", h.Tree)
		r.Get("/ready", h.Ready)
		if cfg.AllowControl {
			r.Post("/init", h.Init)
			r.Post("/deinit", h.Deinit)
		}
	})
	r.Route("/modules", func(r chi.Router) {
		r.Get("/", h.Modules)
		r.Get("/{name}", h.Module)
	})
	r.Get("/errors", h.Errors)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/tree", http.StatusTemporaryRedirect)
	})

	return r
}

func (h *Handler) summary() TreeResponse {
	return TreeResponse{
		Name:    h.tree.Name(),
		State:   h.tree.State(),
		Modules: len(h.tree.Modules()),
		Errors:  len(h.tree.Errors()),
	}
}

// Tree handles GET /tree.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(h.summary()))
}

// Ready handles GET /tree/ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if state := h.tree.State(); state != modtree.StateUp {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("tree is "+state.String()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(h.summary()))
}

// Modules handles GET /modules.
func (h *Handler) Modules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(h.tree.Modules()))
}

// Module handles GET /modules/{name}.
func (h *Handler) Module(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, ok := h.tree.Module(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse("module "+name+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(info))
}

// Errors handles GET /errors.
func (h *Handler) Errors(w http.ResponseWriter, r *http.Request) {
	errs := h.tree.Errors()
	resp := make([]ErrorResponse, 0, len(errs))
	for _, err := range errs {
		entry := ErrorResponse{Error: err.Error()}
		var moduleErr *modtree.ModuleError
		if errors.As(err, &moduleErr) {
			entry.Module = moduleErr.Module
			entry.Phase = moduleErr.Phase
			entry.Error = moduleErr.Err.Error()
		}
		resp = append(resp, entry)
	}
	writeJSON(w, http.StatusOK, okResponse(resp))
}

// Init handles POST /tree/init. It starts the tree and answers without
// waiting for it to come up.
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	if _, err := h.tree.Init(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, modtree.ErrInvalidState) {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse(err.Error()))
		return
	}
	h.logger.Info("Tree init requested", "tree", h.tree.Name())
	writeJSON(w, http.StatusAccepted, okResponse(h.summary()))
}

// Deinit handles POST /tree/deinit. It starts the shutdown and answers
// without waiting for it to finish.
func (h *Handler) Deinit(w http.ResponseWriter, r *http.Request) {
	h.tree.Deinit(r.Context())
	h.logger.Info("Tree deinit requested", "tree", h.tree.Name())
	writeJSON(w, http.StatusAccepted, okResponse(h.summary()))
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug("Admin request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
