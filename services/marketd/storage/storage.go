package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nhbmarket/core/events"
	"nhbmarket/core/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ErrPathRequired is returned when the backing store location is missing.
var ErrPathRequired = errors.New("marketd event store must be configured")

// EventRecord is one committed market or escrow event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Collection string    `gorm:"index:idx_event_asset"`
	AssetID    string    `gorm:"index:idx_event_asset"`
	Attributes string    `gorm:"type:text;not null"`
	RecordedAt time.Time `gorm:"not null"`
}

// TableName pins the table name across drivers.
func (EventRecord) TableName() string { return "market_events" }

// Decode returns the attribute map stored with the record.
func (r EventRecord) Decode() (map[string]string, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}

// Filter narrows ListEvents results. Zero values match everything.
type Filter struct {
	Type       string
	Collection string
	AssetID    string
	After      uint64
	Limit      int
}

// Store persists committed events for indexers and the RPC history endpoint.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	mu   sync.Mutex
	next uint64
}

// Open connects to PostgreSQL or SQLite depending on dsn and migrates the
// schema.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	var dialector gorm.Dialector
	if IsPostgres(trimmed) {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	var last EventRecord
	err := db.Order("sequence DESC").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	return &Store{db: db, now: time.Now, next: last.Sequence + 1}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends evt to the log and returns the stored record.
func (s *Store) Record(ctx context.Context, evt *types.Event) (EventRecord, error) {
	if s == nil || s.db == nil {
		return EventRecord{}, fmt.Errorf("storage not configured")
	}
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return EventRecord{}, fmt.Errorf("event type required")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode attributes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record := EventRecord{
		ID:         uuid.New(),
		Sequence:   s.next,
		Type:       evt.Type,
		Collection: attrs["collection"],
		AssetID:    attrs["assetId"],
		Attributes: string(encoded),
		RecordedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return EventRecord{}, fmt.Errorf("insert event: %w", err)
	}
	s.next++
	return record, nil
}

// ListEvents returns events in commit order.
func (s *Store) ListEvents(ctx context.Context, filter Filter) ([]EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := s.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", filter.After)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Collection != "" {
		query = query.Where("collection = ?", filter.Collection)
	}
	if filter.AssetID != "" {
		query = query.Where("asset_id = ?", filter.AssetID)
	}
	var records []EventRecord
	if err := query.Order("sequence ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return records, nil
}

// Sink adapts the store to events.Emitter. Emit has no error path, so failures
// are logged.
type Sink struct {
	store   *Store
	logger  *slog.Logger
	timeout time.Duration
}

// NewSink creates an emitter writing into store.
func NewSink(store *Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger, timeout: 5 * time.Second}
}

// Emit implements events.Emitter.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || s.store == nil || evt == nil {
		return
	}
	payload := &types.Event{Type: evt.EventType()}
	if p, ok := evt.(events.Payload); ok && p.Event() != nil {
		payload = p.Event()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.store.Record(ctx, payload); err != nil {
		s.logger.Error("record event", "type", payload.Type, "error", err)
	}
}
