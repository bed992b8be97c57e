package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-chat/backend/internal/models"
	apperrors "stock-chat/backend/pkg/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messageCollectionName = "messages"

// MongoConfig describes how to reach MongoDB
type MongoConfig struct {
	URI              string
	Database         string
	OperationTimeout time.Duration
}

// MongoStore persists the log in a MongoDB collection
type MongoStore struct {
	client    *mongo.Client
	messages  *mongo.Collection
	validator Validator
	seq       *sequencer
	timeout   time.Duration
}

// NewMongoStore connects, pings and ensures the (topic, seq) unique index
func NewMongoStore(ctx context.Context, cfg MongoConfig, v Validator) (*MongoStore, error) {
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("stock-chat").
		SetConnectTimeout(timeout)

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occurred while connecting to mongo: %w", err)
	}
	if err = client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("error occurred while pinging mongo: %w", err)
	}

	messages := client.Database(cfg.Database).Collection(messageCollectionName)
	_, err = messages.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "topic", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("messages_topic_seq_unique"),
	})
	if err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("error occurred while creating message indexes: %w", err)
	}

	return &MongoStore{
		client:    client,
		messages:  messages,
		validator: v,
		seq:       newSequencer(),
		timeout:   timeout,
	}, nil
}

func (s *MongoStore) Append(ctx context.Context, topic, author, content string) (models.Message, error) {
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

func (s *MongoStore) tail(ctx context.Context, topic string) (int64, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var last models.Message
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	err := s.messages.FindOne(ctx, bson.D{{Key: "topic", Value: topic}}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	return last.Seq, last.CreatedAt.UTC(), nil
}

func (s *MongoStore) insert(ctx context.Context, msg models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.messages.InsertOne(ctx, msg)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("sequence conflict on %s/%d: %w", msg.Topic, msg.Seq, err)
	}
	return err
}

func (s *MongoStore) History(ctx context.Context, topic string, limit int) ([]models.Message, error) {
	topic, err := s.validator.Topic(topic)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find()
	if limit > 0 {
		opts.SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(int64(limit))
	} else {
		opts.SetSort(bson.D{{Key: "seq", Value: 1}})
	}

	cursor, err := s.messages.Find(ctx, bson.D{{Key: "topic", Value: topic}}, opts)
	if err != nil {
		return nil, apperrors.NewUnavailableError("message store unavailable", err)
	}
	defer cursor.Close(ctx)

	messages := make([]models.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
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

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
