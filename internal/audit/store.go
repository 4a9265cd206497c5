package audit

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/bus"
)

// Record is one committed order persisted for audit queries. The
// sequence number makes re-inserted events idempotent.
type Record struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	Seq           uint64 `gorm:"uniqueIndex"`
	EntryID       string `gorm:"size:32;index"`
	Symbol        string `gorm:"size:32;index"`
	Size          float64
	Price         float64
	Direction     int8
	Leverage      float64
	PreStateHash  string `gorm:"size:64"`
	PostStateHash string `gorm:"size:64"`
	CommittedAt   int64
}

// TableName sets the audit table name.
func (Record) TableName() string {
	return "order_audit"
}

// Store persists commit events to a relational database. It consumes
// the event bus, so a slow or failing database never blocks admission.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the audit table and returns the store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, errors.Wrap(err, "migrate audit table")
	}
	return &Store{db: db}, nil
}

// Handler returns the bus handler persisting ORDER_COMMITTED events.
// Insert failures are logged, never propagated; the log remains the
// source of truth.
func (s *Store) Handler() bus.Handler {
	return func(event bus.Event) {
		record := recordFromEvent(event)
		if err := s.db.Create(&record).Error; err != nil {
			logs.Errorf("persist audit record seq %d: %v", record.Seq, err)
		}
	}
}

// Recent returns the latest records in descending sequence order.
func (s *Store) Recent(limit int) ([]Record, error) {
	var records []Record
	err := s.db.Order("seq desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "query audit records")
	}
	return records, nil
}

// BySymbol returns the symbol's records in ascending sequence order.
func (s *Store) BySymbol(symbol string, limit int) ([]Record, error) {
	var records []Record
	err := s.db.Where("symbol = ?", symbol).Order("seq asc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, errors.Wrapf(err, "query audit records for %s", symbol)
	}
	return records, nil
}

func recordFromEvent(event bus.Event) Record {
	return Record{
		Seq:           event.Entry.Seq,
		EntryID:       event.Entry.EntryID,
		Symbol:        event.Order.Symbol,
		Size:          event.Order.Size,
		Price:         event.Order.Price,
		Direction:     int8(event.Order.Direction),
		Leverage:      event.Order.EffectiveLeverage(),
		PreStateHash:  event.Entry.PreStateHash,
		PostStateHash: event.Entry.PostStateHash,
		CommittedAt:   event.Entry.Timestamp,
	}
}
