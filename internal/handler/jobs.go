package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"clawpos/internal/apierror"
	"clawpos/internal/worker"

	"github.com/gin-gonic/gin"
)

// DeadLetters is the part of worker.DeadLetters the jobs endpoints use.
type DeadLetters interface {
	List(ctx context.Context, queue string, limit int) ([]worker.DeadJob, error)
	Replay(ctx context.Context, queue string, limit int) (int, error)
}

type JobsHandler struct{ dlq DeadLetters }

func NewJobsHandler(dlq DeadLetters) *JobsHandler {
	return &JobsHandler{dlq: dlq}
}

// ListDead godoc
// @Summary      Dead-lettered background jobs (alert and receipt mail)
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        queue query string true  "jobs:stock_alert | jobs:receipt_email"
// @Param        limit query int    false "Max entries (default 50)"
// @Success      200 {array}  worker.DeadJob
// @Failure      400 {object} apierror.APIError
// @Router       /v1/jobs/dead [get]
func (h *JobsHandler) ListDead(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}
	jobs, err := h.dlq.List(c.Request.Context(), c.Query("queue"), limit)
	if h.failed(c, err) {
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// ReplayDead godoc
// @Summary      Put dead jobs back on their queue, oldest first
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        queue query string true  "jobs:stock_alert | jobs:receipt_email"
// @Param        max   query int    false "Max jobs to replay (default 100)"
// @Success      200 {object} map[string]int
// @Failure      400 {object} apierror.APIError
// @Router       /v1/jobs/dead/replay [post]
func (h *JobsHandler) ReplayDead(c *gin.Context) {
	limit, ok := intQuery(c, "max", 100)
	if !ok {
		return
	}
	n, err := h.dlq.Replay(c.Request.Context(), c.Query("queue"), limit)
	if h.failed(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": n})
}

func (h *JobsHandler) failed(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, worker.ErrUnknownQueue):
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
	default:
		_ = c.Error(err)
	}
	return true
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, apierror.New(name+" must be a positive integer"))
		return 0, false
	}
	return n, true
}
