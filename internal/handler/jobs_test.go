package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"clawpos/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDeadLetters struct {
	dead     []worker.DeadJob
	limit    int
	replayed int
}

func (s *stubDeadLetters) List(_ context.Context, queue string, limit int) ([]worker.DeadJob, error) {
	if queue != worker.QueueReceipt && queue != worker.QueueStockAlert {
		return nil, fmt.Errorf("%w: %s", worker.ErrUnknownQueue, queue)
	}
	s.limit = limit
	return s.dead, nil
}

func (s *stubDeadLetters) Replay(_ context.Context, queue string, limit int) (int, error) {
	if queue != worker.QueueReceipt && queue != worker.QueueStockAlert {
		return 0, fmt.Errorf("%w: %s", worker.ErrUnknownQueue, queue)
	}
	s.replayed = len(s.dead)
	if s.replayed > limit {
		s.replayed = limit
	}
	return s.replayed, nil
}

func jobsEngine(dlq DeadLetters) *gin.Engine {
	h := NewJobsHandler(dlq)
	r := gin.New()
	r.GET("/v1/jobs/dead", h.ListDead)
	r.POST("/v1/jobs/dead/replay", h.ReplayDead)
	return r
}

func TestListDead(t *testing.T) {
	stub := &stubDeadLetters{dead: []worker.DeadJob{{
		Queue:    worker.QueueReceipt,
		Job:      worker.Job{Type: worker.JobReceipt, Payload: json.RawMessage(`{}`), Attempts: 5},
		Error:    "relay down",
		FailedAt: time.Now().UTC(),
	}}}
	w := call(t, jobsEngine(stub), http.MethodGet, "/v1/jobs/dead?queue=jobs:receipt_email&limit=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, stub.limit)

	var got []worker.DeadJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "relay down", got[0].Error)
	assert.Equal(t, 5, got[0].Job.Attempts)
}

func TestListDead_BadInput(t *testing.T) {
	r := jobsEngine(&stubDeadLetters{})
	w := call(t, r, http.MethodGet, "/v1/jobs/dead?queue=jobs:nope", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = call(t, r, http.MethodGet, "/v1/jobs/dead?queue=jobs:receipt_email&limit=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplayDead(t *testing.T) {
	stub := &stubDeadLetters{dead: make([]worker.DeadJob, 3)}
	w := call(t, jobsEngine(stub), http.MethodPost, "/v1/jobs/dead/replay?queue=jobs:stock_alert&max=2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"replayed":2}`, w.Body.String())
}
