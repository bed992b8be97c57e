package models

import (
	"time"
)

// Message is one persisted chat line in a topic. It is immutable once stored.
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	Topic     string    `json:"topic" gorm:"size:32;not null;uniqueIndex:idx_messages_topic_seq,priority:1" bson:"topic"`
	Seq       int64     `json:"seq" gorm:"not null;uniqueIndex:idx_messages_topic_seq,priority:2" bson:"seq"`
	Author    string    `json:"author" gorm:"size:255;not null" bson:"author"`
	Content   string    `json:"content" gorm:"type:text;not null" bson:"content"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;index" bson:"createdAt"`
}

// TableName pins the table name regardless of naming strategy
func (Message) TableName() string {
	return "messages"
}

// Before reports whether m sorts before o in a topic's history
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Seq < o.Seq
}
