package handler

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nojsfp/internal/logger"
	"nojsfp/internal/metrics"
	"nojsfp/internal/repository"
	"nojsfp/internal/signal"
)

const defaultDownlink = 1.5

// ResultHandler finalizes visits and shows their fingerprints.
type ResultHandler struct {
	Registry *signal.Registry
	Store    repository.Storage
	Logger   *zap.Logger
	Metrics  metrics.Recorder
	// DefaultDownlink (Mbit/s) replaces a missing or unusable Downlink client hint.
	DefaultDownlink float64
}

func (h *ResultHandler) Register(r *gin.Engine) {
	r.GET("/wait-result/:visitId", h.waitResult)
	r.GET("/result-frame/:visitId", h.resultFrame)
	r.GET("/result/:visitId", h.result)
	r.GET("/api/visits/:visitId", h.getVisit)
}

// ResultDelay is how long the wait frame hides the result link, in seconds: enough for the
// probe requests of a page view to arrive over a downlink of the given Mbit/s.
func ResultDelay(meanRequests float64, downlinkHeader string, fallback float64) float64 {
	downlink, err := strconv.ParseFloat(strings.TrimSpace(downlinkHeader), 64)
	if err != nil || downlink <= 0 || math.IsInf(downlink, 0) || math.IsNaN(downlink) {
		downlink = fallback
	}
	if downlink <= 0 {
		downlink = defaultDownlink
	}
	return 1 + meanRequests/12/downlink
}

func (h *ResultHandler) finalize(c *gin.Context, includeSignals bool) (*repository.VisitInfo, error) {
	rec := metrics.OrNoop(h.Metrics)
	info, err := h.Store.FinalizeAndGetVisit(c.Request.Context(), c.Param("visitId"), includeSignals)
	switch {
	case err != nil:
		rec.VisitFinalized(metrics.OutcomeError)
		rec.StoreError("finalize visit")
		logger.OrNop(h.Logger).Error("finalize visit failed",
			zap.String("visit_id", c.Param("visitId")),
			zap.Error(err),
		)
	case info == nil:
		rec.VisitFinalized(metrics.OutcomeNotFound)
	default:
		rec.VisitFinalized(metrics.OutcomeFound)
	}
	return info, err
}

// @Summary Result placeholder frame
// @Description Hides the result link until the probe requests have had time to arrive.
// @Tags result
// @Produce html
// @Param visitId path string true "Visit id"
// @Param Downlink header number false "Downlink client hint, Mbit/s"
// @Success 200 {string} string "HTML frame"
// @Router /wait-result/{visitId} [get]
func (h *ResultHandler) waitResult(c *gin.Context) {
	delay := ResultDelay(h.Registry.MeanRequests(), c.GetHeader("Downlink"), h.DefaultDownlink)
	c.Header("Cache-Control", "no-cache, must-revalidate")
	renderHTML(c, http.StatusOK, "wait_result", waitResultView{
		Delay:          strconv.FormatFloat(delay, 'f', 2, 64),
		ResultFrameURL: resultFrameURL(c.Param("visitId")),
	})
}

// @Summary Result frame
// @Description Finalizes the visit and shows its fingerprint.
// @Tags result
// @Produce html
// @Param visitId path string true "Visit id"
// @Success 200 {string} string "HTML frame"
// @Failure 404 {string} string
// @Failure 500 {string} string
// @Router /result-frame/{visitId} [get]
func (h *ResultHandler) resultFrame(c *gin.Context) {
	info, err := h.finalize(c, false)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to load the visit. Please try again.")
		return
	}
	if info == nil {
		renderNotFound(c)
		return
	}
	renderHTML(c, http.StatusOK, "result_frame", resultFrameView{
		Fingerprint: info.Fingerprint,
		ResultURL:   resultURL(c.Param("visitId")),
	})
}

// @Summary Result details
// @Description Finalizes the visit and lists every signal source with its value.
// @Tags result
// @Produce html
// @Param visitId path string true "Visit id"
// @Success 200 {string} string "HTML page"
// @Failure 404 {string} string
// @Failure 500 {string} string
// @Router /result/{visitId} [get]
func (h *ResultHandler) result(c *gin.Context) {
	info, err := h.finalize(c, true)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to load the visit. Please try again.")
		return
	}
	if info == nil {
		renderNotFound(c)
		return
	}
	summaries := h.Registry.Summaries(info.Signals)
	sources := make([]sourceView, 0, len(summaries))
	for _, s := range summaries {
		sources = append(sources, sourceView{
			Title:     s.Title,
			Kind:      string(s.Kind),
			Detail:    s.Detail,
			Value:     s.Value,
			Discarded: s.Discarded,
		})
	}
	renderHTML(c, http.StatusOK, "result", resultView{Fingerprint: info.Fingerprint, Sources: sources})
}

type visitResponse struct {
	VisitID     string            `json:"visit_id"`
	FinalizedAt time.Time         `json:"finalized_at"`
	Fingerprint string            `json:"fingerprint"`
	Signals     signal.Collection `json:"signals"`
	Sources     []sourceResponse  `json:"sources,omitempty"`
}

type sourceResponse struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
	Discarded bool   `json:"discarded"`
}

// @Summary Get visit
// @Description Finalizes the visit and returns its fingerprint and signals.
// @Tags api
// @Produce json
// @Param visitId path string true "Visit id"
// @Param include_signals query bool false "Include signals and source summaries (default true)"
// @Success 200 {object} visitResponse
// @Failure 404 {object} apiResponse
// @Failure 500 {object} apiResponse
// @Router /api/visits/{visitId} [get]
func (h *ResultHandler) getVisit(c *gin.Context) {
	includeSignals := true
	if raw := c.Query("include_signals"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid include_signals", nil)
			return
		}
		includeSignals = v
	}

	info, err := h.finalize(c, includeSignals)
	if err != nil {
		Error(c, http.StatusInternalServerError, "storage failure", nil)
		return
	}
	if info == nil {
		Error(c, http.StatusNotFound, "visit not found", nil)
		return
	}

	resp := visitResponse{
		VisitID:     c.Param("visitId"),
		FinalizedAt: info.FinalizedAt,
		Fingerprint: info.Fingerprint,
		Signals:     info.Signals,
	}
	if includeSignals {
		for _, s := range h.Registry.Summaries(info.Signals) {
			resp.Sources = append(resp.Sources, sourceResponse{
				Key:       s.Key,
				Title:     s.Title,
				Kind:      string(s.Kind),
				Value:     s.Value,
				Discarded: s.Discarded,
			})
		}
	}
	Ok(c, resp, nil)
}
