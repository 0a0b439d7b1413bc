package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"nojsfp/internal/signal"
)

const (
	// VisitIDMaxLength bounds public ids; longer ids can never match a visit.
	VisitIDMaxLength          = 32
	VisitorIPMaxLength        = 64
	VisitorUserAgentMaxLength = 300
	SignalValueMaxLength      = 250
)

// ErrStorage marks failures of the backing store (connection loss, constraint violations).
var ErrStorage = errors.New("visit storage failure")

// VisitMeta is what the page request knows about the visitor when the visit starts.
type VisitMeta struct {
	IP        string
	UserAgent string
}

// VisitInfo is a finalized visit. Signals is empty unless requested.
type VisitInfo struct {
	FinalizedAt time.Time
	Fingerprint string
	Signals     signal.Collection
}

// Storage keeps visits and their signals.
//
// AddSignals is a no-op for unknown or finalized visits. FinalizeAndGetVisit returns nil, nil for
// unknown visits; otherwise it finalizes the visit on the first call and every later call returns
// the same fingerprint.
type Storage interface {
	CreateVisit(ctx context.Context, meta VisitMeta) (string, error)
	AddSignals(ctx context.Context, visitID string, signals signal.Collection) error
	FinalizeAndGetVisit(ctx context.Context, visitID string, includeSignals bool) (*VisitInfo, error)
}

// Pinger is implemented by stores backed by an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewVisitID returns a random 32-character hex id.
func NewVisitID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidVisitID rejects ids no store could have issued. Path parameters arrive percent-decoded, so
// the id may hold arbitrary bytes.
func ValidVisitID(visitID string) bool {
	return visitID != "" &&
		utf8.ValidString(visitID) &&
		utf8.RuneCountInString(visitID) <= VisitIDMaxLength
}

// Truncate replaces invalid UTF-8 with U+FFFD and cuts value to at most limit runes. Header values
// may carry obs-text bytes that postgres refuses to store.
func Truncate(value string, limit int) string {
	value = strings.ToValidUTF8(value, "\uFFFD")
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

// StorageError wraps a backend failure so callers can match ErrStorage.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
