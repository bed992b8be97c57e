package store

import (
	"regexp"
	"strings"

	apperrors "stock-chat/backend/pkg/errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DefaultMaxContentLength = 2000
	MaxTopicLength          = 32
)

var topicPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._\-]*$`)

// NormalizeTopic trims and upper-cases a symbol so "aapl " and "AAPL" share a room
func NormalizeTopic(topic string) string {
	return strings.ToUpper(strings.TrimSpace(topic))
}

// Validator checks message input before it reaches a backend
type Validator struct {
	MaxContentLength int
}

// NewValidator returns a Validator, falling back to DefaultMaxContentLength
func NewValidator(maxContentLength int) Validator {
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	return Validator{MaxContentLength: maxContentLength}
}

type messageInput struct {
	Topic   string `json:"topic"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

// Topic normalizes and validates a topic name
func (v Validator) Topic(topic string) (string, error) {
	topic = NormalizeTopic(topic)
	err := validation.Validate(topic,
		validation.Required,
		validation.Length(1, MaxTopicLength),
		validation.Match(topicPattern),
	)
	if err != nil {
		return "", apperrors.NewInvalidArgumentError("invalid topic").
			WithDetails(map[string]string{"topic": err.Error()})
	}
	return topic, nil
}

// Message normalizes topic and content and validates all fields
func (v Validator) Message(topic, author, content string) (messageInput, error) {
	in := messageInput{
		Topic:   NormalizeTopic(topic),
		Author:  author,
		Content: strings.TrimSpace(content),
	}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Topic, validation.Required, validation.Length(1, MaxTopicLength), validation.Match(topicPattern)),
		validation.Field(&in.Author, validation.Required),
		validation.Field(&in.Content, validation.Required, validation.Length(1, v.MaxContentLength)),
	)
	if err != nil {
		return messageInput{}, apperrors.NewInvalidArgumentError("invalid message").WithDetails(err)
	}
	return in, nil
}
