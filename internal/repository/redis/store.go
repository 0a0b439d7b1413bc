package redisrepository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"nojsfp/internal/fingerprint"
	"nojsfp/internal/repository"
	"nojsfp/internal/signal"
)

const (
	maxTxAttempts     = 32
	maxCreateAttempts = 8

	fieldCreatedAt   = "created_at"
	fieldFinalizedAt = "finalized_at"
	fieldFingerprint = "fingerprint"
	fieldIP          = "ip"
	fieldUserAgent   = "user_agent"
)

var (
	errVisitExists       = errors.New("visit id taken")
	errTooMuchContention = errors.New("optimistic transaction kept conflicting")
)

// Store keeps each visit in two hashes: <prefix>visit:<id> for metadata and the fingerprint, and
// <prefix>visit:<id>:signals for the collected values. Both share the visit's TTL.
//
// Writers WATCH the visit hash and finalize writes to it, so a write racing a finalize is re-run
// and then sees the visit finalized. Finalize WATCHes the signal hash too, so it re-reads when a
// write lands between its read and its commit.
type Store struct {
	client      redis.UniversalClient
	fingerprint fingerprint.Func
	prefix      string
	lifetime    time.Duration
}

func New(client redis.UniversalClient, fp fingerprint.Func, prefix string, lifetime time.Duration) *Store {
	return &Store{client: client, fingerprint: fp, prefix: prefix, lifetime: lifetime}
}

// NewFromURL connects using a redis:// or rediss:// URL.
func NewFromURL(rawURL string, fp fingerprint.Func, prefix string, lifetime time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(opt), fp, prefix, lifetime), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return repository.StorageError("ping", s.client.Ping(ctx).Err())
}

func (s *Store) visitKey(id string) string   { return s.prefix + "visit:" + id }
func (s *Store) signalsKey(id string) string { return s.prefix + "visit:" + id + ":signals" }

func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errTooMuchContention
}

func (s *Store) CreateVisit(ctx context.Context, meta repository.VisitMeta) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := repository.NewVisitID()
		key := s.visitKey(id)
		err := s.watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return errVisitExists
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					fieldCreatedAt, time.Now().UTC().Format(time.RFC3339Nano),
					fieldIP, repository.Truncate(meta.IP, repository.VisitorIPMaxLength),
					fieldUserAgent, repository.Truncate(meta.UserAgent, repository.VisitorUserAgentMaxLength),
				)
				if s.lifetime > 0 {
					pipe.PExpire(ctx, key, s.lifetime)
				}
				return nil
			})
			return err
		}, key)
		if errors.Is(err, errVisitExists) {
			continue
		}
		if err != nil {
			return "", repository.StorageError("create visit", err)
		}
		return id, nil
	}
	return "", repository.StorageError("create visit", errVisitExists)
}

func (s *Store) AddSignals(ctx context.Context, visitID string, signals signal.Collection) error {
	if !repository.ValidVisitID(visitID) || len(signals) == 0 {
		return nil
	}
	visitKey, signalsKey := s.visitKey(visitID), s.signalsKey(visitID)
	values := make(map[string]any, len(signals))
	for key, value := range signals {
		values[key] = repository.Truncate(value, repository.SignalValueMaxLength)
	}

	err := s.watch(ctx, func(tx *redis.Tx) error {
		state, err := tx.HMGet(ctx, visitKey, fieldCreatedAt, fieldFinalizedAt).Result()
		if err != nil {
			return err
		}
		if state[0] == nil || state[1] != nil {
			return nil
		}
		ttl, err := tx.PTTL(ctx, visitKey).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, signalsKey, values)
			if ttl > 0 {
				pipe.PExpire(ctx, signalsKey, ttl)
			}
			return nil
		})
		return err
	}, visitKey)
	return repository.StorageError("add signals", err)
}

func (s *Store) FinalizeAndGetVisit(ctx context.Context, visitID string, includeSignals bool) (*repository.VisitInfo, error) {
	if !repository.ValidVisitID(visitID) {
		return nil, nil
	}
	visitKey, signalsKey := s.visitKey(visitID), s.signalsKey(visitID)

	var info *repository.VisitInfo
	err := s.watch(ctx, func(tx *redis.Tx) error {
		info = nil
		visit, err := tx.HGetAll(ctx, visitKey).Result()
		if err != nil {
			return err
		}
		if len(visit) == 0 {
			return nil
		}
		stored, err := tx.HGetAll(ctx, signalsKey).Result()
		if err != nil {
			return err
		}
		collected := signal.Collection(stored)

		if fp, ok := visit[fieldFingerprint]; ok {
			finalizedAt, err := time.Parse(time.RFC3339Nano, visit[fieldFinalizedAt])
			if err != nil {
				return err
			}
			info = newVisitInfo(finalizedAt, fp, collected, includeSignals)
			return nil
		}

		fp := s.fingerprint(collected)
		now := time.Now().UTC()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, visitKey,
				fieldFinalizedAt, now.Format(time.RFC3339Nano),
				fieldFingerprint, fp,
			)
			return nil
		})
		if err != nil {
			return err
		}
		info = newVisitInfo(now, fp, collected, includeSignals)
		return nil
	}, visitKey, signalsKey)
	if err != nil {
		return nil, repository.StorageError("finalize visit", err)
	}
	return info, nil
}

func newVisitInfo(finalizedAt time.Time, fp string, collected signal.Collection, includeSignals bool) *repository.VisitInfo {
	info := &repository.VisitInfo{
		FinalizedAt: finalizedAt,
		Fingerprint: fp,
		Signals:     signal.Collection{},
	}
	if includeSignals {
		info.Signals = collected
	}
	return info
}
