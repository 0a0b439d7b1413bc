package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nojsfp/internal/repository"
	"nojsfp/internal/repository/repositorytest"
	"nojsfp/internal/signal"
)

func TestStoreContract(t *testing.T) {
	repositorytest.Run(t, func(t *testing.T) repository.Storage {
		return New(repositorytest.Fingerprint, time.Hour)
	})
}

func TestStoreExpiresVisits(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(repositorytest.Fingerprint, time.Minute)
	s.now = func() time.Time { return now }

	id, err := s.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	require.NoError(t, s.AddSignals(ctx, id, signal.Collection{"cssGecko": ""}))

	now = now.Add(59 * time.Second)
	info, err := s.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	require.NotNil(t, info)

	now = now.Add(time.Second)
	info, err = s.FinalizeAndGetVisit(ctx, id, true)
	require.NoError(t, err)
	require.Nil(t, info)
	require.Equal(t, 0, s.Len())
}

func TestStoreSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(repositorytest.Fingerprint, time.Minute)
	s.now = func() time.Time { return now }

	_, err := s.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	kept, err := s.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	require.Equal(t, 1, s.Sweep(now.Add(45*time.Second)))
	require.Equal(t, 1, s.Len())

	info, err := s.FinalizeAndGetVisit(ctx, kept, false)
	require.NoError(t, err)
	require.NotNil(t, info)
}

func TestStoreWithoutLifetimeKeepsVisits(t *testing.T) {
	ctx := context.Background()
	s := New(repositorytest.Fingerprint, 0)
	_, err := s.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	require.Equal(t, 0, s.Sweep(time.Now().Add(100*365*24*time.Hour)))
	require.Equal(t, 1, s.Len())
}

func TestStoreTruncatesMeta(t *testing.T) {
	ctx := context.Background()
	s := New(repositorytest.Fingerprint, time.Hour)
	id, err := s.CreateVisit(ctx, repository.VisitMeta{
		IP:        strings.Repeat("1", 100),
		UserAgent: strings.Repeat("ü", 400),
	})
	require.NoError(t, err)

	v := s.lookup(id)
	require.NotNil(t, v)
	require.Len(t, v.meta.IP, repository.VisitorIPMaxLength)
	require.Equal(t, strings.Repeat("ü", repository.VisitorUserAgentMaxLength), v.meta.UserAgent)
}

func TestStoreFingerprintsOnce(t *testing.T) {
	ctx := context.Background()
	calls := 0
	s := New(func(c signal.Collection) string {
		calls++
		return "fp"
	}, time.Hour)

	id, err := s.CreateVisit(ctx, repository.VisitMeta{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		info, err := s.FinalizeAndGetVisit(ctx, id, false)
		require.NoError(t, err)
		require.Equal(t, "fp", info.Fingerprint)
	}
	require.Equal(t, 1, calls)
}
