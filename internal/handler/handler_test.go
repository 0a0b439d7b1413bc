package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nojsfp/internal/fingerprint"
	"nojsfp/internal/ingest"
	"nojsfp/internal/repository"
	"nojsfp/internal/repository/memory"
	"nojsfp/internal/signal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var waitResultPattern = regexp.MustCompile(`/wait-result/([0-9a-f]{32})`)

func newTestEngine(store repository.Storage) *gin.Engine {
	return newTestEngineFor(signal.Default, store)
}

func newTestEngineFor(registry *signal.Registry, store repository.Storage) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID(), AccessLog(zap.NewNop(), nil))
	(&ProbeHandler{
		Registry: registry,
		Store:    store,
		Ingest:   &ingest.Service{Registry: registry, Store: store},
	}).Register(engine)
	(&ResultHandler{Registry: registry, Store: store, DefaultDownlink: 1.5}).Register(engine)
	(&HealthHandler{Store: store}).Register(engine)
	return engine
}

func do(engine *gin.Engine, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for name, values := range header {
		req.Header[name] = values
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func startVisit(t *testing.T, engine *gin.Engine, header http.Header) string {
	t.Helper()
	w := do(engine, "/", header)
	require.Equal(t, http.StatusOK, w.Code)
	m := waitResultPattern.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 2, "page must embed the wait-result frame")
	return m[1]
}

func TestPageRendersProbes(t *testing.T) {
	store := memory.New(fingerprint.For(signal.Default), time.Hour)
	engine := newTestEngine(store)

	w := do(engine, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Downlink", w.Header().Get("Accept-CH"))
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.NotEmpty(t, w.Header().Get(requestIDHeader))

	body := w.Body.String()
	visitID := waitResultPattern.FindStringSubmatch(body)[1]
	require.Contains(t, body, `<link rel="stylesheet" href="/headers/`+visitID+`/style" />`)
	require.Contains(t, body, `<img src="/headers/`+visitID+`/image" alt="" />`)
	require.Contains(t, body, `<video src="/headers/`+visitID+`/video"></video>`)
	require.Contains(t, body, `<audio src="/headers/`+visitID+`/audio"></audio>`)
	require.Contains(t, body, "@supports(-moz-appearance: inherit) { .css_probe_2 { background: url('/signal/"+visitID+"/cssGecko/') } }")
	require.Contains(t, body, `<div class="css_probe_1"></div>`)
	require.Contains(t, body, "src: local('Roboto'), url('/signal/"+visitID+"/robotoFontAbsence/') format('truetype')")
	require.Contains(t, body, "/signal/"+visitID+"/cssScreenWidth/%2C320")
}

func TestPageIngestsOwnHeaders(t *testing.T) {
	store := memory.New(fingerprint.For(signal.Default), time.Hour)
	engine := newTestEngine(store)

	visitID := startVisit(t, engine, http.Header{
		"Accept-Language": {"de-DE,de;q=0.9"},
		"Accept":          {"text/html"},
	})
	info, err := store.FinalizeAndGetVisit(context.Background(), visitID, true)
	require.NoError(t, err)
	require.Equal(t, signal.Collection{"languageHeader": "de-DE", "pageAcceptHeader": "text/html"}, info.Signals)
}

func TestProbeRequestsAlwaysNoContent(t *testing.T) {
	store := memory.New(fingerprint.For(signal.Default), time.Hour)
	engine := newTestEngine(store)
	visitID := startVisit(t, engine, nil)

	for _, path := range []string{
		"/signal/" + visitID + "/cssGecko/",
		"/signal/" + visitID + "/cssHover/hover",
		"/signal/" + visitID + "/cssScreenWidth/1280%2C1410",
		"/signal/" + visitID + "/cssResolution/%2C0.5",
		"/signal/" + visitID + "/cssHover/maybe",
		"/signal/" + visitID + "/cssScreenWidth/%2C",
		"/signal/" + visitID + "/noSuchKey/1",
		"/signal/unknownvisit/cssGecko/",
		"/headers/" + visitID + "/image",
		"/headers/" + visitID + "/bogus",
	} {
		w := do(engine, path, http.Header{"Accept": {"image/webp,*/*"}})
		require.Equal(t, http.StatusNoContent, w.Code, path)
	}

	info, err := store.FinalizeAndGetVisit(context.Background(), visitID, true)
	require.NoError(t, err)
	require.Equal(t, signal.Collection{
		"cssGecko":          "",
		"cssHover":          "hover",
		"cssScreenWidth":    "1280,1410",
		"cssResolution":     ",0.5",
		"imageAcceptHeader": "image/webp,*/*",
	}, info.Signals)
}

func TestWaitResultDelay(t *testing.T) {
	engine := newTestEngine(memory.New(fingerprint.For(signal.Default), time.Hour))
	mean := signal.Default.MeanRequests()

	w := do(engine, "/wait-result/abc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "no-cache, must-revalidate", w.Header().Get("Cache-Control"))
	require.Contains(t, w.Body.String(), "animation-duration: "+formatDelay(1+mean/12/1.5)+"s;")
	require.Contains(t, w.Body.String(), `href="/result-frame/abc"`)

	w = do(engine, "/wait-result/abc", http.Header{"Downlink": {"10"}})
	require.Contains(t, w.Body.String(), "animation-duration: "+formatDelay(1+mean/12/10)+"s;")
}

func formatDelay(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func TestResultDelay(t *testing.T) {
	require.InDelta(t, 2.0, ResultDelay(18, "", 1.5), 1e-9)
	require.InDelta(t, 2.0, ResultDelay(18, "garbage", 1.5), 1e-9)
	require.InDelta(t, 2.0, ResultDelay(18, "0", 1.5), 1e-9)
	require.InDelta(t, 2.0, ResultDelay(18, "-3", 1.5), 1e-9)
	require.InDelta(t, 1.5, ResultDelay(18, " 3 ", 1.5), 1e-9)
	require.InDelta(t, 2.0, ResultDelay(18, "", 0), 1e-9)
}

func TestResultFrameFinalizes(t *testing.T) {
	store := memory.New(fingerprint.For(signal.Default), time.Hour)
	engine := newTestEngine(store)
	visitID := startVisit(t, engine, nil)
	do(engine, "/signal/"+visitID+"/cssBlink/", nil)

	w := do(engine, "/result-frame/"+visitID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	info, err := store.FinalizeAndGetVisit(context.Background(), visitID, false)
	require.NoError(t, err)
	require.Contains(t, w.Body.String(), `<div class="fp-block__fingerprint">`+info.Fingerprint+`</div>`)
	require.Contains(t, w.Body.String(), `href="/result/`+visitID+`" target="_top"`)

	do(engine, "/signal/"+visitID+"/cssGecko/", nil)
	again := do(engine, "/result-frame/"+visitID, nil)
	require.Contains(t, again.Body.String(), info.Fingerprint)
}

func TestResultPageListsSources(t *testing.T) {
	store := memory.New(fingerprint.For(signal.Default), time.Hour)
	engine := newTestEngine(store)
	visitID := startVisit(t, engine, nil)
	do(engine, "/signal/"+visitID+"/cssScreenWidth/1280%2C1410", nil)
	do(engine, "/signal/"+visitID+"/cssTorGecko/", nil)

	w := do(engine, "/result/"+visitID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "<div>Title: Screen width</div>")
	require.Contains(t, body, "<div>Value: ≥1280px, &lt;1410px</div>")
	require.NotContains(t, body, "line-through")
	require.Equal(t, signal.Default.Len(), strings.Count(body, "<li"))
}

func TestResultPageStrikesDiscardedSources(t *testing.T) {
	registry := signal.MustRegistry(
		&signal.CSS{Meta: signal.Meta{Key: "cssTrigger", Title: "Trigger"}, Condition: "display: grid"},
		&signal.CSS{
			Meta: signal.Meta{
				Key:   "cssNoisy",
				Title: "Noisy",
				Discard: func(all signal.Collection) bool {
					_, ok := all["cssTrigger"]
					return ok
				},
			},
			Condition: "display: flex",
		},
	)
	store := memory.New(fingerprint.For(registry), time.Hour)
	engine := newTestEngineFor(registry, store)
	visitID := startVisit(t, engine, nil)
	do(engine, "/signal/"+visitID+"/cssTrigger/", nil)
	do(engine, "/signal/"+visitID+"/cssNoisy/", nil)

	w := do(engine, "/result/"+visitID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, strings.Count(w.Body.String(), `<li style="text-decoration: line-through">`))
}

func TestUnknownVisitNotFound(t *testing.T) {
	engine := newTestEngine(memory.New(fingerprint.For(signal.Default), time.Hour))
	for _, path := range []string{"/result-frame/nope", "/result/nope", "/api/visits/nope", "/result/%ff", "/api/visits/%ff%fe"} {
		w := do(engine, path, nil)
		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestAPIGetVisit(t *testing.T) {
	store := memory.New(fingerprint.For(signal.Default), time.Hour)
	engine := newTestEngine(store)
	visitID := startVisit(t, engine, nil)
	do(engine, "/signal/"+visitID+"/cssHover/none", nil)

	w := do(engine, "/api/visits/"+visitID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code      int           `json:"code"`
		RequestID string        `json:"request_id"`
		Data      visitResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.Code)
	require.Equal(t, w.Header().Get("X-Request-ID"), resp.RequestID)
	require.Equal(t, visitID, resp.Data.VisitID)
	require.Regexp(t, `^[0-9a-f]{32}$`, resp.Data.Fingerprint)
	require.Equal(t, "none", resp.Data.Signals["cssHover"])
	require.Len(t, resp.Data.Sources, signal.Default.Len())

	w = do(engine, "/api/visits/"+visitID+"?include_signals=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bare struct {
		Data visitResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bare))
	require.Equal(t, resp.Data.Fingerprint, bare.Data.Fingerprint)
	require.Empty(t, bare.Data.Signals)
	require.Empty(t, bare.Data.Sources)

	w = do(engine, "/api/visits/"+visitID+"?include_signals=maybe", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

type brokenStore struct{}

var errBroken = repository.StorageError("test", errors.New("down"))

func (brokenStore) CreateVisit(context.Context, repository.VisitMeta) (string, error) {
	return "", errBroken
}

func (brokenStore) AddSignals(context.Context, string, signal.Collection) error { return errBroken }

func (brokenStore) FinalizeAndGetVisit(context.Context, string, bool) (*repository.VisitInfo, error) {
	return nil, errBroken
}

func (brokenStore) Ping(context.Context) error { return errBroken }

func TestStoreFailures(t *testing.T) {
	engine := newTestEngine(brokenStore{})

	require.Equal(t, http.StatusInternalServerError, do(engine, "/", nil).Code)
	require.Equal(t, http.StatusNoContent, do(engine, "/signal/abc/cssGecko/", nil).Code)
	require.Equal(t, http.StatusNoContent, do(engine, "/headers/abc/style", nil).Code)
	require.Equal(t, http.StatusInternalServerError, do(engine, "/result-frame/abc", nil).Code)
	require.Equal(t, http.StatusInternalServerError, do(engine, "/result/abc", nil).Code)
	require.Equal(t, http.StatusInternalServerError, do(engine, "/api/visits/abc", nil).Code)
	require.Equal(t, http.StatusServiceUnavailable, do(engine, "/readyz", nil).Code)
}

func TestHealth(t *testing.T) {
	engine := newTestEngine(memory.New(fingerprint.For(signal.Default), time.Hour))
	require.Equal(t, http.StatusOK, do(engine, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, do(engine, "/readyz", nil).Code)
}

func TestRequestIDEchoed(t *testing.T) {
	engine := newTestEngine(memory.New(fingerprint.For(signal.Default), time.Hour))
	w := do(engine, "/healthz", http.Header{requestIDHeader: {"abc-123"}})
	require.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
