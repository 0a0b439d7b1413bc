package gormrepository

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nojsfp/internal/fingerprint"
	"nojsfp/internal/models"
	"nojsfp/internal/repository"
	"nojsfp/internal/signal"
)

const maxCreateAttempts = 8

var errVisitIDExhausted = errors.New("no free visit id")

type Store struct {
	db          *gorm.DB
	fingerprint fingerprint.Func
}

func New(db *gorm.DB, fp fingerprint.Func) *Store {
	return &Store{db: db, fingerprint: fp}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return repository.StorageError("ping", err)
	}
	return repository.StorageError("ping", sqlDB.PingContext(ctx))
}

// CreateVisit inserts a row under a fresh public id, drawing another id whenever the insert hits an
// existing one. The id is returned only once the row is committed.
func (s *Store) CreateVisit(ctx context.Context, meta repository.VisitMeta) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		item := models.Visit{
			PublicID:         repository.NewVisitID(),
			VisitorIP:        repository.Truncate(meta.IP, repository.VisitorIPMaxLength),
			VisitorUserAgent: repository.Truncate(meta.UserAgent, repository.VisitorUserAgentMaxLength),
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "public_id"}},
			DoNothing: true,
		}).Create(&item)
		if res.Error != nil {
			return "", repository.StorageError("create visit", res.Error)
		}
		if res.RowsAffected == 1 {
			return item.PublicID, nil
		}
	}
	return "", repository.StorageError("create visit", errVisitIDExhausted)
}

// AddSignals holds a shared lock on the visit row while upserting, so it can run alongside other
// writers but never alongside a finalize.
func (s *Store) AddSignals(ctx context.Context, visitID string, signals signal.Collection) error {
	if !repository.ValidVisitID(visitID) || len(signals) == 0 {
		return nil
	}
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		return addSignals(tx, visitID, signals)
	})
	return repository.StorageError("add signals", err)
}

func addSignals(tx *gorm.DB, visitID string, signals signal.Collection) error {
	var visit models.Visit
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Select("id", "finalized_at").
		Where("public_id = ?", visitID).
		Take(&visit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if visit.FinalizedAt != nil {
		return nil
	}
	rows := signalRows(visit.ID, signals)
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "visit_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}

// signalRows orders rows by key so concurrent upserts into one visit take row locks in the same
// order.
func signalRows(visitID uint64, signals signal.Collection) []models.VisitSignal {
	keys := make([]string, 0, len(signals))
	for key := range signals {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([]models.VisitSignal, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, models.VisitSignal{
			VisitID: visitID,
			Key:     key,
			Value:   repository.Truncate(signals[key], repository.SignalValueMaxLength),
		})
	}
	return rows
}

// FinalizeAndGetVisit locks the visit row exclusively and then the signal table in share mode, so
// no insert committed after the read can be missed. Locks are taken in the same order as
// AddSignals.
func (s *Store) FinalizeAndGetVisit(ctx context.Context, visitID string, includeSignals bool) (*repository.VisitInfo, error) {
	if !repository.ValidVisitID(visitID) {
		return nil, nil
	}
	var info *repository.VisitInfo
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		info, err = s.finalize(tx, visitID, includeSignals)
		return err
	})
	if err != nil {
		return nil, repository.StorageError("finalize visit", err)
	}
	return info, nil
}

func (s *Store) finalize(tx *gorm.DB, visitID string, includeSignals bool) (*repository.VisitInfo, error) {
	var visit models.Visit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("public_id = ?", visitID).
		Take(&visit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	finalized := visit.FinalizedAt != nil && visit.Fingerprint != nil
	var collected signal.Collection
	if !finalized || includeSignals {
		if !finalized {
			if err := tx.Exec("LOCK TABLE visit_signals IN SHARE MODE").Error; err != nil {
				return nil, err
			}
		}
		collected, err = loadSignals(tx, visit.ID)
		if err != nil {
			return nil, err
		}
	}

	if !finalized {
		fp := s.fingerprint(collected)
		now := time.Now().UTC()
		if err := tx.Model(&models.Visit{}).
			Where("id = ?", visit.ID).
			Updates(map[string]any{"fingerprint": fp, "finalized_at": now}).Error; err != nil {
			return nil, err
		}
		visit.Fingerprint = &fp
		visit.FinalizedAt = &now
	}

	info := &repository.VisitInfo{
		FinalizedAt: *visit.FinalizedAt,
		Fingerprint: *visit.Fingerprint,
		Signals:     signal.Collection{},
	}
	if includeSignals {
		info.Signals = collected
	}
	return info, nil
}

func loadSignals(tx *gorm.DB, visitID uint64) (signal.Collection, error) {
	var rows []models.VisitSignal
	if err := tx.Model(&models.VisitSignal{}).
		Select("key", "value").
		Where("visit_id = ?", visitID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	collected := make(signal.Collection, len(rows))
	for _, row := range rows {
		collected[row.Key] = row.Value
	}
	return collected, nil
}

// DeleteVisitsBefore removes visits created before cutoff. Their signals go with them through the
// ON DELETE CASCADE foreign key, so only visit rows are locked here, as in AddSignals.
func (s *Store) DeleteVisitsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Visit{})
	if res.Error != nil {
		return 0, repository.StorageError("delete visits", res.Error)
	}
	return res.RowsAffected, nil
}
