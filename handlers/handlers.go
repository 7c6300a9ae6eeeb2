// Package handlers exposes delay predictions over HTTP.
package handlers

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"supply-chain-risk/inference"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves requests from one immutable inference context.
type Handler struct {
	infer  *inference.Context
	logger *slog.Logger
}

// New creates a handler over infer.
func New(infer *inference.Context) *Handler {
	return &Handler{infer: infer, logger: slog.Default()}
}

// SetLogger overrides the default logger.
func (h *Handler) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/predict")
	})

	r.GET("/predict", h.PredictPage)
	r.POST("/predict", h.PredictForm)

	api := r.Group("/api")
	{
		api.POST("/predict", h.PostPredict)
		api.GET("/options", h.GetOptions)
		api.GET("/stats", h.GetStats)
	}

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Health reports liveness and whether a model is loaded.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model_loaded": h.infer.Ready()})
}

// predictError maps a prediction failure to its status code and the
// message shown to the user.
func predictError(err error) (int, string) {
	switch {
	case errors.Is(err, inference.ErrModelNotFound):
		return http.StatusServiceUnavailable, "Model not found: train a model before requesting predictions"
	case errors.Is(err, inference.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Prediction runtime error"
	}
}
