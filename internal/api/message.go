package api

import (
	"context"
	"net/http"
	"strconv"

	"stock-chat/backend/internal/models"
	"stock-chat/backend/internal/store"
	apperrors "stock-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// DefaultHistoryLimit applies when the request carries no limit
const DefaultHistoryLimit = 50

// HistoryReader is the read side of the dispatcher
type HistoryReader interface {
	History(ctx context.Context, topic string, limit int) ([]models.Message, error)
}

// MessageController serves persisted chat history
type MessageController struct {
	history  HistoryReader
	maxLimit int
}

// HistoryResponse is the body of a history request
type HistoryResponse struct {
	Topic    string           `json:"topic"`
	Count    int              `json:"count"`
	Messages []models.Message `json:"messages"`
}

// NewMessageController creates a new message controller. maxLimit caps the
// number of messages a single request may ask for.
func NewMessageController(history HistoryReader, maxLimit int) *MessageController {
	if maxLimit <= 0 {
		maxLimit = 500
	}
	return &MessageController{history: history, maxLimit: maxLimit}
}

// RegisterRoutesV1 registers the versioned routes
func (c *MessageController) RegisterRoutesV1(v1 *gin.RouterGroup) {
	v1.GET("/messages/:topic", c.GetTopicMessages)
}

// RegisterRoutes registers the unversioned public path clients already use
func (c *MessageController) RegisterRoutes(router gin.IRoutes) {
	router.GET("/messages/:topic", c.GetTopicMessages)
}

// GetTopicMessages returns the most recent messages of a topic, oldest first
func (c *MessageController) GetTopicMessages(ctx *gin.Context) {
	limit, err := c.parseLimit(ctx.Query("limit"))
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	messages, err := c.history.History(ctx.Request.Context(), ctx.Param("topic"), limit)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	ctx.JSON(http.StatusOK, HistoryResponse{
		Topic:    store.NormalizeTopic(ctx.Param("topic")),
		Count:    len(messages),
		Messages: messages,
	})
}

func (c *MessageController) parseLimit(raw string) (int, error) {
	if raw == "" {
		return min(DefaultHistoryLimit, c.maxLimit), nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.NewInvalidArgumentError("limit must be a positive integer")
	}
	return min(limit, c.maxLimit), nil
}
