package apihandlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rxreader/internal/jobs"
	"rxreader/internal/store"
)

type APIHandler struct {
	Jobs *jobs.Service
}

func NewAPIHandler(svc *jobs.Service) *APIHandler {
	return &APIHandler{Jobs: svc}
}

// SubmitPrescriptionHandler accepts a new extraction job and responds
// with the QUEUED view. Clients poll the status endpoint afterwards.
func (h *APIHandler) SubmitPrescriptionHandler(c *gin.Context) {
	var req jobs.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	view, err := h.Jobs.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidInput) {
			badRequest(c, err.Error())
			return
		}
		internalError(c, "failed to submit prescription job")
		return
	}
	c.JSON(http.StatusAccepted, view)
}

// GetJobStatusHandler returns the current JobView. Polling stops once
// status is COMPLETED or FAILED.
func (h *APIHandler) GetJobStatusHandler(c *gin.Context) {
	jobID := c.Param("id")
	view, err := h.Jobs.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(c, "no job with id "+jobID)
			return
		}
		internalError(c, "failed to load job status")
		return
	}
	c.JSON(http.StatusOK, view)
}
