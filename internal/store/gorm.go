package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-chat/backend/internal/models"
	apperrors "stock-chat/backend/pkg/errors"

	"gorm.io/gorm"
)

// GormStore persists the log through gorm (postgres in production, sqlite in dev and tests)
type GormStore struct {
	db        *gorm.DB
	validator Validator
	seq       *sequencer
}

// NewGormStore migrates the messages table and returns a store on db
func NewGormStore(db *gorm.DB, v Validator) (*GormStore, error) {
	if err := db.AutoMigrate(&models.Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate messages table: %w", err)
	}
	return &GormStore{db: db, validator: v, seq: newSequencer()}, nil
}

func (s *GormStore) Append(ctx context.Context, topic, author, content string) (models.Message, error) {
	in, err := s.validator.Message(topic, author, content)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := s.seq.append(ctx, in, s.tail, s.insert)
	if err != nil {
		return models.Message{}, apperrors.NewUnavailableError("message store unavailable", err)
	}
	return msg, nil
}

func (s *GormStore) tail(ctx context.Context, topic string) (int64, time.Time, error) {
	var last models.Message
	err := s.db.WithContext(ctx).
		Where("topic = ?", topic).
		Order("seq DESC").
		Limit(1).
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return last.Seq, last.CreatedAt.UTC(), nil
}

func (s *GormStore) insert(ctx context.Context, msg models.Message) error {
	return s.db.WithContext(ctx).Create(&msg).Error
}

func (s *GormStore) History(ctx context.Context, topic string, limit int) ([]models.Message, error) {
	topic, err := s.validator.Topic(topic)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	q := s.db.WithContext(ctx).Where("topic = ?", topic)
	if limit > 0 {
		q = q.Order("seq DESC").Limit(limit)
	} else {
		q = q.Order("seq ASC")
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, apperrors.NewUnavailableError("message store unavailable", err)
	}
	if limit > 0 {
		reverse(messages)
	}
	for i := range messages {
		messages[i].CreatedAt = messages[i].CreatedAt.UTC()
	}
	return messages, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
