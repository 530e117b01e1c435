package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const apiPrefix = "/chart/api/v1"

// Router chart API routes on top of httprouter.
type Router struct {
	mux    *httprouter.Router
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, req *http.Request, v interface{}) {
		logger.Error("Handler panic",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Any("panic", v),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
	return &Router{mux: mux, logger: logger}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterViewRoutes chart view lifecycle and export.
func (r *Router) RegisterViewRoutes(h *ViewHandler) {
	r.mux.POST(apiPrefix+"/views", h.Open)
	r.mux.GET(apiPrefix+"/views/:id", h.Get)
	r.mux.PUT(apiPrefix+"/views/:id/scope", h.SetScope)
	r.mux.PUT(apiPrefix+"/views/:id/visibility", h.SetVisibility)
	r.mux.GET(apiPrefix+"/views/:id/export", h.Export)
	r.mux.DELETE(apiPrefix+"/views/:id", h.Close)
}

// RegisterCommentRoutes annotation list and insert.
func (r *Router) RegisterCommentRoutes(h *CommentHandler) {
	r.mux.GET(apiPrefix+"/comments", h.List)
	r.mux.POST(apiPrefix+"/comments", h.Insert)
}

// RegisterMetrics exposes gatherer on /metrics.
func (r *Router) RegisterMetrics(gatherer prometheus.Gatherer) {
	r.mux.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
