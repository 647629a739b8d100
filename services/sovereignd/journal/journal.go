package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sovereign/crypto"
	"sovereign/native/sovereign"
)

// ErrNotFound is returned when a receipt id is unknown.
var ErrNotFound = errors.New("journal: receipt not found")

// Entry is one journaled intent receipt.
type Entry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Intent      string    `gorm:"size:64;index" json:"intent"`
	SovereignID string    `gorm:"size:128;index" json:"sovereignId"`
	Caller      string    `gorm:"size:64;index" json:"caller"`
	PhaseBefore string    `gorm:"size:32" json:"phaseBefore"`
	PhaseAfter  string    `gorm:"size:32" json:"phaseAfter"`
	Receipt     string    `gorm:"type:text" json:"receipt"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

// TableName pins the table name across drivers.
func (Entry) TableName() string { return "intent_receipts" }

// Journal stores receipts of successful intents for audit and replay.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the configured backend and migrates the schema. Driver
// is "sqlite" or "postgres".
func Open(driver, dsn string) (*Journal, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("journal: dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(trimmed)
	case "postgres":
		dialector = postgres.Open(trimmed)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// SetNowFunc overrides the clock used for CreatedAt.
func (j *Journal) SetNowFunc(now func() time.Time) {
	if now != nil {
		j.now = now
	}
}

// Close releases the connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record journals a receipt and returns the stored entry.
func (j *Journal) Record(ctx context.Context, receipt *sovereign.Receipt) (*Entry, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("journal: not configured")
	}
	if receipt == nil {
		return nil, errors.New("journal: receipt required")
	}
	payload, err := json.Marshal(sovereign.NewReceiptView(receipt))
	if err != nil {
		return nil, fmt.Errorf("journal: encode receipt: %w", err)
	}
	entry := &Entry{
		ID:          uuid.New(),
		Intent:      receipt.Intent,
		SovereignID: receipt.SovereignID,
		Caller:      crypto.Address(receipt.Caller).String(),
		PhaseBefore: receipt.PhaseBefore.String(),
		PhaseAfter:  receipt.PhaseAfter.String(),
		Receipt:     string(payload),
		CreatedAt:   j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("journal: insert: %w", err)
	}
	return entry, nil
}

// Get loads an entry by id.
func (j *Journal) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	var entry Entry
	err := j.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get: %w", err)
	}
	return &entry, nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	SovereignID string
	Intent      string
	Caller      string
	Limit       int
}

// List returns entries newest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := j.db.WithContext(ctx).Model(&Entry{})
	if filter.SovereignID != "" {
		query = query.Where("sovereign_id = ?", filter.SovereignID)
	}
	if filter.Intent != "" {
		query = query.Where("intent = ?", filter.Intent)
	}
	if filter.Caller != "" {
		query = query.Where("caller = ?", filter.Caller)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []Entry
	if err := query.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return entries, nil
}
