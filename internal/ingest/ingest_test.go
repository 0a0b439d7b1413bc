package ingest

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"nojsfp/internal/fingerprint"
	"nojsfp/internal/metrics"
	"nojsfp/internal/repository"
	"nojsfp/internal/repository/memory"
	"nojsfp/internal/signal"
)

type recordedSignal struct{ kind, outcome string }

type fakeRecorder struct {
	metrics.Recorder
	signals     []recordedSignal
	storeErrors int
}

func (r *fakeRecorder) SignalIngested(kind, outcome string) {
	r.signals = append(r.signals, recordedSignal{kind, outcome})
}

func (r *fakeRecorder) StoreError(string) { r.storeErrors++ }

type failingStore struct{ repository.Storage }

func (failingStore) AddSignals(context.Context, string, signal.Collection) error {
	return repository.StorageError("add signals", errors.New("connection refused"))
}

func newService(t *testing.T) (*Service, *memory.Store, string, *fakeRecorder) {
	t.Helper()
	store := memory.New(fingerprint.For(signal.Default), time.Hour)
	id, err := store.CreateVisit(context.Background(), repository.VisitMeta{})
	require.NoError(t, err)
	rec := &fakeRecorder{Recorder: metrics.Noop()}
	return &Service{Registry: signal.Default, Store: store, Logger: zap.NewNop(), Metrics: rec}, store, id, rec
}

func finalized(t *testing.T, store repository.Storage, id string) signal.Collection {
	t.Helper()
	info, err := store.FinalizeAndGetVisit(context.Background(), id, true)
	require.NoError(t, err)
	require.NotNil(t, info)
	return info.Signals
}

func TestActivationStoresAcceptedValues(t *testing.T) {
	svc, store, id, rec := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Activation(ctx, id, "cssGecko", "ignored"))
	require.NoError(t, svc.Activation(ctx, id, "cssHover", "hover"))
	require.NoError(t, svc.Activation(ctx, id, "cssScreenWidth", "1280,1410"))
	require.NoError(t, svc.Activation(ctx, id, "cssResolution", ",0.5"))
	require.NoError(t, svc.Activation(ctx, id, "robotoFontAbsence", ""))

	require.Equal(t, signal.Collection{
		"cssGecko":          "",
		"cssHover":          "hover",
		"cssScreenWidth":    "1280,1410",
		"cssResolution":     ",0.5",
		"robotoFontAbsence": "",
	}, finalized(t, store, id))
	require.Len(t, rec.signals, 5)
	for _, s := range rec.signals {
		require.Equal(t, metrics.OutcomeAccepted, s.outcome)
	}
}

func TestActivationDropsInvalidInput(t *testing.T) {
	svc, store, id, rec := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Activation(ctx, id, "noSuchSource", "x"))
	require.NoError(t, svc.Activation(ctx, id, "cssHover", "sometimes"))
	require.NoError(t, svc.Activation(ctx, id, "cssScreenWidth", ","))
	require.NoError(t, svc.Activation(ctx, id, "cssScreenWidth", "abc,"))
	require.NoError(t, svc.Activation(ctx, id, "cssScreenWidth", "1.,2"))
	require.NoError(t, svc.Activation(ctx, id, "pageAcceptHeader", "text/html"))
	require.NoError(t, svc.Activation(ctx, "", "cssGecko", ""))

	require.Empty(t, finalized(t, store, id))
	require.Equal(t, []recordedSignal{
		{"unknown", metrics.OutcomeUnknownKey},
		{"cssMediaEnum", metrics.OutcomeRejected},
		{"cssMediaNumber", metrics.OutcomeRejected},
		{"cssMediaNumber", metrics.OutcomeRejected},
		{"cssMediaNumber", metrics.OutcomeRejected},
		{"httpHeader", metrics.OutcomeRejected},
		{"unknown", metrics.OutcomeRejected},
	}, rec.signals)
}

func TestActivationUnknownVisitIsNoop(t *testing.T) {
	svc, _, _, _ := newService(t)
	require.NoError(t, svc.Activation(context.Background(), "0123456789abcdef0123456789abcdef", "cssGecko", ""))
}

func TestHeadersPageResource(t *testing.T) {
	svc, store, id, _ := newService(t)
	header := http.Header{}
	header.Set("Accept-Language", "en-US,en;q=0.9")
	header.Set("Accept", "text/html")
	header.Set("Accept-Encoding", "")

	require.NoError(t, svc.Headers(context.Background(), id, signal.ResourcePage, func(name string) (string, bool) {
		values, ok := header[http.CanonicalHeaderKey(name)]
		if !ok || len(values) == 0 {
			return "", false
		}
		return values[0], true
	}))

	require.Equal(t, signal.Collection{
		"languageHeader":       "en-US",
		"pageAcceptHeader":     "text/html",
		"acceptEncodingHeader": "",
	}, finalized(t, store, id))
}

func TestHeadersAbsentStoresNothing(t *testing.T) {
	svc, store, id, rec := newService(t)
	absent := func(string) (string, bool) { return "", false }

	require.NoError(t, svc.Headers(context.Background(), id, signal.ResourceImage, absent))
	require.NoError(t, svc.Headers(context.Background(), id, signal.ResourceVideo, absent))

	require.Empty(t, finalized(t, store, id))
	require.Equal(t, []recordedSignal{{"httpHeader", metrics.OutcomeAbsent}}, rec.signals)
}

func TestHeadersPerResource(t *testing.T) {
	svc, store, id, _ := newService(t)
	accept := func(value string) func(string) (string, bool) {
		return func(name string) (string, bool) {
			if name == "Accept" {
				return value, true
			}
			return "", false
		}
	}
	ctx := context.Background()
	require.NoError(t, svc.Headers(ctx, id, signal.ResourceImage, accept("image/avif,image/webp,*/*")))
	require.NoError(t, svc.Headers(ctx, id, signal.ResourceStyle, accept("text/css,*/*;q=0.1")))

	require.Equal(t, signal.Collection{
		"imageAcceptHeader": "image/avif,image/webp,*/*",
		"styleAcceptHeader": "text/css,*/*;q=0.1",
	}, finalized(t, store, id))
}

func TestStoreFailureIsLoggedAndReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := &fakeRecorder{Recorder: metrics.Noop()}
	svc := &Service{Registry: signal.Default, Store: failingStore{}, Logger: zap.New(core), Metrics: rec}
	ctx := context.Background()
	id := repository.NewVisitID()

	err := svc.Activation(ctx, id, "cssGecko", "")
	require.ErrorIs(t, err, repository.ErrStorage)

	err = svc.Headers(ctx, id, signal.ResourceStyle, func(string) (string, bool) { return "text/css", true })
	require.ErrorIs(t, err, repository.ErrStorage)

	require.Equal(t, 2, rec.storeErrors)
	require.Equal(t, 2, logs.Len())
	require.Equal(t, "store activation failed", logs.All()[0].Message)
	require.Equal(t, "store headers failed", logs.All()[1].Message)
}

func TestNilLoggerAndMetrics(t *testing.T) {
	store := memory.New(fingerprint.For(signal.Default), time.Hour)
	id, err := store.CreateVisit(context.Background(), repository.VisitMeta{})
	require.NoError(t, err)
	svc := &Service{Registry: signal.Default, Store: store}
	require.NoError(t, svc.Activation(context.Background(), id, "cssHover", "bogus"))
	require.NoError(t, svc.Activation(context.Background(), id, "cssHover", "none"))
	require.Equal(t, signal.Collection{"cssHover": "none"}, finalized(t, store, id))
}
