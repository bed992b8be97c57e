package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"stock-chat/backend/internal/models"
	"stock-chat/backend/internal/store"
	apperrors "stock-chat/backend/pkg/errors"
	"stock-chat/backend/pkg/health"
	"stock-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReader struct {
	store.Store
	lastLimit int
}

func (r *recordingReader) History(ctx context.Context, topic string, limit int) ([]models.Message, error) {
	r.lastLimit = limit
	return r.Store.History(ctx, topic, limit)
}

type failingReader struct{}

func (failingReader) History(context.Context, string, int) ([]models.Message, error) {
	return nil, apperrors.NewUnavailableError("message store unavailable", errors.New("connection refused"))
}

func newEngine(reader HistoryReader, maxLimit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	c := NewMessageController(reader, maxLimit)
	c.RegisterRoutesV1(r.Group("/api/v1"))
	c.RegisterRoutes(r)
	return r
}

func seed(t *testing.T, st store.Store, topic string, contents ...string) {
	t.Helper()
	for _, content := range contents {
		_, err := st.Append(context.Background(), topic, "alice", content)
		require.NoError(t, err)
	}
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetTopicMessages(t *testing.T) {
	st := store.NewMemoryStore(store.NewValidator(0))
	seed(t, st, "AAPL", "one", "two", "three")
	seed(t, st, "TSLA", "other")
	r := newEngine(st, 100)

	for _, path := range []string{"/api/v1/messages/aapl?limit=2", "/messages/AAPL?limit=2"} {
		w := get(r, path)
		require.Equal(t, http.StatusOK, w.Code, path)

		var resp HistoryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "AAPL", resp.Topic)
		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, "two", resp.Messages[0].Content)
		assert.Equal(t, "three", resp.Messages[1].Content)
	}
}

func TestGetTopicMessagesEmptyTopic(t *testing.T) {
	r := newEngine(store.NewMemoryStore(store.NewValidator(0)), 100)

	w := get(r, "/messages/MSFT")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"topic":"MSFT","count":0,"messages":[]}`, w.Body.String())
}

func TestGetTopicMessagesLimits(t *testing.T) {
	reader := &recordingReader{Store: store.NewMemoryStore(store.NewValidator(0))}
	r := newEngine(reader, 20)

	require.Equal(t, http.StatusOK, get(r, "/messages/AAPL").Code)
	assert.Equal(t, 20, reader.lastLimit)

	require.Equal(t, http.StatusOK, get(r, "/messages/AAPL?limit=1000").Code)
	assert.Equal(t, 20, reader.lastLimit)

	require.Equal(t, http.StatusOK, get(r, "/messages/AAPL?limit=5").Code)
	assert.Equal(t, 5, reader.lastLimit)

	for _, bad := range []string{"0", "-3", "ten"} {
		w := get(r, "/messages/AAPL?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
		assert.Contains(t, w.Body.String(), apperrors.CodeInvalidArgument)
	}
}

func TestGetTopicMessagesErrors(t *testing.T) {
	r := newEngine(store.NewMemoryStore(store.NewValidator(0)), 100)
	w := get(r, "/messages/$$$")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = newEngine(failingReader{}, 100)
	w = get(r, "/messages/AAPL")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeUnavailable)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestHealthRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := health.NewChecker(logger.NewNop(), 0)
	checker.RegisterPingCheck("store", true, func(context.Context) error { return errors.New("down") })
	checker.RunChecks(context.Background())

	r := gin.New()
	NewHealthHandler(checker, func() int { return 3 }).RegisterHealthRoutes(r)

	w := get(r, "/health/live")
	require.Equal(t, http.StatusOK, w.Code)
	var live HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	assert.Equal(t, "ok", live.Status)
	assert.Equal(t, 3, live.Sessions)

	w = get(r, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"store"`)
}
