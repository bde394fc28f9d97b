package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edupath/attempt-engine/internal/utils"
)

// The journal records attempt lifecycle transitions (started, resumed,
// submitted, expired) for operations and analytics. It is off the
// answer hot path and never holds answer content; answers live
// upstream only.

// Entry is one lifecycle row.
type Entry struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	AttemptID int64          `json:"attempt_id" gorm:"not null;index"`
	QuizID    int64          `json:"quiz_id" gorm:"index"`
	Event     string         `json:"event" gorm:"not null;size:40;index"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Entry) TableName() string {
	return "attempt_journal"
}

// Recorder appends lifecycle entries.
type Recorder interface {
	Record(ctx context.Context, attemptID, quizID int64, event string, payload any) error
}

type gormRecorder struct {
	db     *gorm.DB
	logger utils.Logger
}

// NewGormRecorder creates a Postgres-backed recorder.
func NewGormRecorder(db *gorm.DB, logger utils.Logger) (Recorder, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate attempt journal: %w", err)
	}
	return &gormRecorder{db: db, logger: logger}, nil
}

func (r *gormRecorder) Record(ctx context.Context, attemptID, quizID int64, event string, payload any) error {
	entry := &Entry{
		AttemptID: attemptID,
		QuizID:    quizID,
		Event:     event,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal journal payload: %w", err)
		}
		entry.Payload = datatypes.JSON(raw)
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

type noopRecorder struct{}

// NewNoopRecorder returns a recorder that drops everything; used when
// no database is configured.
func NewNoopRecorder() Recorder {
	return noopRecorder{}
}

func (noopRecorder) Record(ctx context.Context, attemptID, quizID int64, event string, payload any) error {
	return nil
}
