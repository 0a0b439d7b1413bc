package models

import (
	"time"
)

// Visit is one page load being fingerprinted. PublicID is the id embedded in probe URLs.
type Visit struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	PublicID string `gorm:"type:varchar(32);not null;uniqueIndex"`

	// Fingerprint stays NULL until the visit is finalized.
	Fingerprint *string `gorm:"type:varchar(64)"`

	VisitorIP        string `gorm:"type:varchar(64);not null;default:''"`
	VisitorUserAgent string `gorm:"type:varchar(300);not null;default:''"`

	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	FinalizedAt *time.Time `gorm:"type:timestamptz"`
}

func (Visit) TableName() string {
	return "visits"
}
