package deadletter

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"github.com/yanun0323/go-link/pkg/exception"
	"github.com/yanun0323/go-link/pkg/link"
)

const saveTimeout = 5 * time.Second

// Record is a message given up after its last transmission attempt.
type Record struct {
	ID        uint64    `gorm:"column:id;primaryKey"`
	ReqID     string    `gorm:"column:req_id;size:64;index"`
	Code      uint8     `gorm:"column:code"`
	Body      []byte    `gorm:"column:body"`
	Tries     int       `gorm:"column:tries"`
	DroppedAt time.Time `gorm:"column:dropped_at;index"`
}

func (Record) TableName() string {
	return "link_dead_letters"
}

// Message rebuilds the dropped message.
func (r Record) Message() link.Message {
	return link.Message{Code: link.Code(r.Code), ReqID: r.ReqID, Body: r.Body}
}

// Store persists dropped messages.
type Store struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewStore wraps db. A nil clk uses the wall clock.
func NewStore(db *gorm.DB, clk clock.Clock) (*Store, error) {
	if db == nil {
		return nil, exception.ErrNilInstance
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Store{db: db, clock: clk}, nil
}

// Migrate creates or updates the dead-letter table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return errors.Wrap(err, "migrate dead letters")
	}
	return nil
}

// Save stores msg with the number of transmissions it got.
func (s *Store) Save(ctx context.Context, msg link.Message, tries int) error {
	rec := Record{
		ReqID:     msg.ReqID,
		Code:      uint8(msg.Code),
		Body:      msg.Body,
		Tries:     tries,
		DroppedAt: s.clock.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "save dead letter").With("reqId", msg.ReqID)
	}
	return nil
}

// Recent returns the latest dropped messages, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []Record
	if err := s.db.WithContext(ctx).Order("dropped_at desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "query dead letters")
	}
	return records, nil
}

// Hook returns a link.Option.OnDrop handler backed by the store.
// Failures are logged; the message is gone either way.
func (s *Store) Hook() func(msg link.Message, tries int) {
	return func(msg link.Message, tries int) {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.Save(ctx, msg, tries); err != nil {
			logs.Errorf("dead letter lost, err: %+v", err)
		}
	}
}
