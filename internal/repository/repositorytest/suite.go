// Package repositorytest holds the behaviour every repository.Storage must share.
package repositorytest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"nojsfp/internal/fingerprint"
	"nojsfp/internal/repository"
	"nojsfp/internal/signal"
)

// Fingerprint is the function stores under test must be built with.
var Fingerprint = fingerprint.For(signal.Default)

// Run exercises a store created fresh by newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) repository.Storage) {
	t.Run("EndToEnd", func(t *testing.T) { testEndToEnd(t, newStore(t)) })
	t.Run("FinalizeIsIdempotent", func(t *testing.T) { testFinalizeIdempotent(t, newStore(t)) })
	t.Run("WriteAfterFinalizeIsNoop", func(t *testing.T) { testWriteAfterFinalize(t, newStore(t)) })
	t.Run("UnknownVisit", func(t *testing.T) { testUnknownVisit(t, newStore(t)) })
	t.Run("LastWriteWins", func(t *testing.T) { testLastWriteWins(t, newStore(t)) })
	t.Run("SignalsOmittedUnlessRequested", func(t *testing.T) { testSignalsOmitted(t, newStore(t)) })
	t.Run("InvalidUTF8", func(t *testing.T) { testInvalidUTF8(t, newStore(t)) })
	t.Run("LongValuesTruncated", func(t *testing.T) { testLongValuesTruncated(t, newStore(t)) })
	t.Run("UniqueVisitIDs", func(t *testing.T) { testUniqueIDs(t, newStore(t)) })
	t.Run("ConcurrentAddAndFinalize", func(t *testing.T) { testConcurrentAddAndFinalize(t, newStore(t)) })
}

func testEndToEnd(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	id, err := store.CreateVisit(ctx, repository.VisitMeta{IP: "203.0.113.7", UserAgent: "test-agent"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"a": "1"}))

	info, err := store.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, signal.Collection{"a": "1"}, info.Signals)
	require.Equal(t, Fingerprint(signal.Collection{"a": "1"}), info.Fingerprint)
	require.False(t, info.FinalizedAt.IsZero())

	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"a": "2"}))
	again, err := store.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	require.Equal(t, signal.Collection{"a": "1"}, again.Signals)
	require.Equal(t, info.Fingerprint, again.Fingerprint)
}

func testFinalizeIdempotent(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	id, err := store.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"cssBlink": "", "cssHover": "hover"}))

	first, err := store.FinalizeAndGetVisit(ctx, id, false)
	require.NoError(t, err)
	second, err := store.FinalizeAndGetVisit(ctx, id, false)
	require.NoError(t, err)
	require.Equal(t, first.Fingerprint, second.Fingerprint)
	require.True(t, first.FinalizedAt.Equal(second.FinalizedAt), "%v != %v", first.FinalizedAt, second.FinalizedAt)
}

func testWriteAfterFinalize(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	id, err := store.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"cssHover": "none"}))

	before, err := store.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)

	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"cssHover": "hover", "cssGecko": ""}))

	after, err := store.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	require.Equal(t, before.Fingerprint, after.Fingerprint)
	require.Equal(t, signal.Collection{"cssHover": "none"}, after.Signals)
}

func testUnknownVisit(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	require.NoError(t, store.AddSignals(ctx, "doesnotexist", signal.Collection{"a": "1"}))
	info, err := store.FinalizeAndGetVisit(ctx, "doesnotexist", true)
	require.NoError(t, err)
	require.Nil(t, info)

	tooLong := "0123456789abcdef0123456789abcdef0123"
	require.NoError(t, store.AddSignals(ctx, tooLong, signal.Collection{"a": "1"}))
	info, err = store.FinalizeAndGetVisit(ctx, tooLong, false)
	require.NoError(t, err)
	require.Nil(t, info)
}

// testInvalidUTF8 feeds the store bytes a browser can send through a percent-encoded path or an
// obs-text header.
func testInvalidUTF8(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	require.NoError(t, store.AddSignals(ctx, "\xff", signal.Collection{"a": "1"}))
	info, err := store.FinalizeAndGetVisit(ctx, "\xff", true)
	require.NoError(t, err)
	require.Nil(t, info)

	id, err := store.CreateVisit(ctx, repository.VisitMeta{IP: "\xfe", UserAgent: "agent\xff"})
	require.NoError(t, err)
	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{
		"languageHeader":       "\xffen",
		"acceptEncodingHeader": "gzip",
	}))

	info, err = store.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	want := signal.Collection{"languageHeader": "\uFFFDen", "acceptEncodingHeader": "gzip"}
	require.Equal(t, want, info.Signals)
	require.Equal(t, Fingerprint(want), info.Fingerprint)
}

func testLongValuesTruncated(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	id, err := store.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	long := strings.Repeat("é", repository.SignalValueMaxLength+10)
	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"pageAcceptHeader": long}))

	info, err := store.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	want := signal.Collection{"pageAcceptHeader": strings.Repeat("é", repository.SignalValueMaxLength)}
	require.Equal(t, want, info.Signals)
	require.Equal(t, Fingerprint(want), info.Fingerprint)
}

func testLastWriteWins(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	id, err := store.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"cssHover": "none", "cssGecko": ""}))
	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"cssHover": "hover"}))
	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{}))

	info, err := store.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	require.Equal(t, signal.Collection{"cssHover": "hover", "cssGecko": ""}, info.Signals)
}

func testSignalsOmitted(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	id, err := store.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	require.NoError(t, store.AddSignals(ctx, id, signal.Collection{"cssGecko": ""}))

	info, err := store.FinalizeAndGetVisit(ctx, id, false)
	require.NoError(t, err)
	require.NotNil(t, info.Signals)
	require.Empty(t, info.Signals)
	require.Equal(t, Fingerprint(signal.Collection{"cssGecko": ""}), info.Fingerprint)
}

func testUniqueIDs(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := store.CreateVisit(ctx, repository.VisitMeta{})
		require.NoError(t, err)
		require.True(t, repository.ValidVisitID(id))
		require.False(t, seen[id])
		seen[id] = true
	}
}

// testConcurrentAddAndFinalize races writers against several finalizers. Whatever the
// interleaving, every finalizer must see one fingerprint, and it must match the signals the
// store reports for the visit.
func testConcurrentAddAndFinalize(t *testing.T, store repository.Storage) {
	ctx := context.Background()
	id, err := store.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)

	const writers = 16
	const finalizers = 4
	fingerprints := make([]string, finalizers)

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			return store.AddSignals(ctx, id, signal.Collection{fmt.Sprintf("key%d", i): "v"})
		})
	}
	for i := 0; i < finalizers; i++ {
		g.Go(func() error {
			info, err := store.FinalizeAndGetVisit(ctx, id, false)
			if err != nil {
				return err
			}
			fingerprints[i] = info.Fingerprint
			return nil
		})
	}
	require.NoError(t, g.Wait())

	final, err := store.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	for _, fp := range fingerprints {
		require.Equal(t, final.Fingerprint, fp)
	}
	require.Equal(t, Fingerprint(final.Signals), final.Fingerprint)
}
