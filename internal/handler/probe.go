package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nojsfp/internal/ingest"
	"nojsfp/internal/logger"
	"nojsfp/internal/metrics"
	"nojsfp/internal/probe"
	"nojsfp/internal/repository"
	"nojsfp/internal/signal"
)

// ProbeHandler serves the fingerprinting page and the probe requests it triggers.
type ProbeHandler struct {
	Registry *signal.Registry
	Store    repository.Storage
	Ingest   *ingest.Service
	Logger   *zap.Logger
	Metrics  metrics.Recorder
}

func (h *ProbeHandler) Register(r *gin.Engine) {
	r.GET("/", h.page)
	r.GET("/signal/:visitId/:signalKey/*signalValue", h.activation)
	r.GET("/headers/:visitId/:resourceType", h.headers)
}

// requestHeader reads a request header the way ingestion expects: absent headers report false and
// repeated ones are joined.
func requestHeader(r *http.Request) func(name string) (string, bool) {
	return func(name string) (string, bool) {
		values := r.Header.Values(name)
		if len(values) == 0 {
			return "", false
		}
		return strings.Join(values, ", "), true
	}
}

// @Summary Fingerprinting page
// @Description Starts a visit and renders the CSS probes, header probes and the result frame.
// @Tags probe
// @Produce html
// @Success 200 {string} string "HTML page"
// @Failure 500 {string} string
// @Router / [get]
func (h *ProbeHandler) page(c *gin.Context) {
	ctx := c.Request.Context()
	visitID, err := h.Store.CreateVisit(ctx, repository.VisitMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		metrics.OrNoop(h.Metrics).StoreError("create visit")
		logger.OrNop(h.Logger).Error("create visit failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to start a visit. Please try again.")
		return
	}
	metrics.OrNoop(h.Metrics).VisitCreated()

	// The page request is the header probe for ResourcePage.
	_ = h.Ingest.Headers(ctx, visitID, signal.ResourcePage, requestHeader(c.Request))

	markup := probe.Build(h.Registry, visitID, ActivationURL)
	headerProbes := probe.HeaderProbeURLs(visitID, HeaderProbeURL)

	c.Header("Accept-CH", strings.Join(probe.ClientHintHeaders(h.Registry), ", "))
	c.Header("Cache-Control", "no-store")
	renderHTML(c, http.StatusOK, "page", pageView{
		CSS:           cssBlock(markup.CSS),
		HTML:          htmlBlock(markup.HTML),
		StyleProbeURL: headerProbes[signal.ResourceStyle],
		ImageProbeURL: headerProbes[signal.ResourceImage],
		VideoProbeURL: headerProbes[signal.ResourceVideo],
		AudioProbeURL: headerProbes[signal.ResourceAudio],
		WaitResultURL: waitResultURL(visitID),
	})
}

// @Summary Signal activation
// @Description Requested by the browser when a CSS probe matches. Invalid input is ignored.
// @Tags probe
// @Param visitId path string true "Visit id"
// @Param signalKey path string true "Signal source key"
// @Param signalValue path string false "Activation value"
// @Success 204
// @Router /signal/{visitId}/{signalKey}/{signalValue} [get]
func (h *ProbeHandler) activation(c *gin.Context) {
	value := strings.TrimPrefix(c.Param("signalValue"), "/")
	_ = h.Ingest.Activation(c.Request.Context(), c.Param("visitId"), c.Param("signalKey"), value)
	c.Status(http.StatusNoContent)
}

// @Summary Header probe
// @Description Subresource requested by the page so its request headers can be recorded.
// @Tags probe
// @Param visitId path string true "Visit id"
// @Param resourceType path string true "page, image, video, audio or style"
// @Success 204
// @Router /headers/{visitId}/{resourceType} [get]
func (h *ProbeHandler) headers(c *gin.Context) {
	resource, ok := signal.ParseResourceType(c.Param("resourceType"))
	if ok {
		_ = h.Ingest.Headers(c.Request.Context(), c.Param("visitId"), resource, requestHeader(c.Request))
	}
	c.Status(http.StatusNoContent)
}
