package models

import "time"

// VisitSignal is the latest value of one signal key within a visit.
type VisitSignal struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	VisitID uint64 `gorm:"not null;uniqueIndex:visit_signals_visit_id_and_key,priority:1"`
	Key     string `gorm:"type:varchar(100);not null;uniqueIndex:visit_signals_visit_id_and_key,priority:2"`
	Value   string `gorm:"type:varchar(250);not null;default:''"`

	Visit *Visit `gorm:"foreignKey:VisitID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (VisitSignal) TableName() string {
	return "visit_signals"
}
