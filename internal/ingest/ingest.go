// Package ingest turns probe requests into stored signal values. Input comes straight from
// untrusted browsers: anything malformed is dropped without touching the store.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"nojsfp/internal/logger"
	"nojsfp/internal/metrics"
	"nojsfp/internal/repository"
	"nojsfp/internal/signal"
)

const kindUnknown = "unknown"

type Service struct {
	Registry *signal.Registry
	Store    repository.Storage
	Logger   *zap.Logger
	Metrics  metrics.Recorder
}

// Activation records that the browser fetched the activation URL of key with raw as the value.
// Only a store failure is returned; rejected input is not an error.
func (s *Service) Activation(ctx context.Context, visitID, key, raw string) error {
	rec := metrics.OrNoop(s.Metrics)
	if !repository.ValidVisitID(visitID) {
		rec.SignalIngested(kindUnknown, metrics.OutcomeRejected)
		return nil
	}
	source, ok := s.Registry.Lookup(key)
	if !ok {
		rec.SignalIngested(kindUnknown, metrics.OutcomeUnknownKey)
		return nil
	}
	kind := string(source.Kind())
	value, ok := source.Accept(raw)
	if !ok {
		rec.SignalIngested(kind, metrics.OutcomeRejected)
		logger.OrNop(s.Logger).Debug("activation rejected",
			zap.String("visit_id", visitID),
			zap.String("key", key),
			zap.String("value", repository.Truncate(raw, repository.SignalValueMaxLength)),
		)
		return nil
	}
	if err := s.Store.AddSignals(ctx, visitID, signal.Collection{key: value}); err != nil {
		rec.StoreError("add signals")
		logger.OrNop(s.Logger).Warn("store activation failed",
			zap.String("visit_id", visitID),
			zap.String("key", key),
			zap.Error(err),
		)
		return err
	}
	rec.SignalIngested(kind, metrics.OutcomeAccepted)
	return nil
}

// Headers reads every header source registered for resource through getHeader and stores the
// ones present. An absent header stores nothing; a present but empty one stores "".
func (s *Service) Headers(ctx context.Context, visitID string, resource signal.ResourceType, getHeader func(name string) (string, bool)) error {
	rec := metrics.OrNoop(s.Metrics)
	if !repository.ValidVisitID(visitID) {
		return nil
	}
	collected := signal.Collection{}
	for _, source := range s.Registry.HeaderSources(resource) {
		value, ok := source.Read(getHeader)
		if !ok {
			rec.SignalIngested(string(signal.KindHTTPHeader), metrics.OutcomeAbsent)
			continue
		}
		collected[source.Key] = value
	}
	if len(collected) == 0 {
		return nil
	}
	if err := s.Store.AddSignals(ctx, visitID, collected); err != nil {
		rec.StoreError("add signals")
		logger.OrNop(s.Logger).Warn("store headers failed",
			zap.String("visit_id", visitID),
			zap.String("resource", string(resource)),
			zap.Error(err),
		)
		return err
	}
	for range collected {
		rec.SignalIngested(string(signal.KindHTTPHeader), metrics.OutcomeAccepted)
	}
	return nil
}
