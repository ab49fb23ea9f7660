package handler

import (
	"net/http"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/treasury"
	"github.com/gin-gonic/gin"
)

// CronHandler exposes each treasury job as an HTTP trigger for an external
// scheduler. A run returns 200 with its summary even when individual rows
// failed; only a run that could not start at all returns 500.
type CronHandler struct {
	pipeline *treasury.Pipeline
}

func NewCronHandler(pipeline *treasury.Pipeline) *CronHandler {
	return &CronHandler{pipeline: pipeline}
}

func (h *CronHandler) MonitorDeposits(c *gin.Context) {
	h.runJob(c, h.pipeline.Monitor)
}

func (h *CronHandler) BatchPayouts(c *gin.Context) {
	h.runJob(c, h.pipeline.Batcher)
}

func (h *CronHandler) ExecutePayouts(c *gin.Context) {
	h.runJob(c, h.pipeline.PayoutRun)
}

func (h *CronHandler) SweepFund(c *gin.Context) {
	h.runJob(c, h.pipeline.SweepFund)
}

func (h *CronHandler) SweepAdvance(c *gin.Context) {
	h.runJob(c, h.pipeline.SweepAdvance)
}

func (h *CronHandler) SweepVerify(c *gin.Context) {
	h.runJob(c, h.pipeline.SweepVerify)
}

func (h *CronHandler) GasCheck(c *gin.Context) {
	h.runJob(c, h.pipeline.Gas)
}

func (h *CronHandler) DispatchOutbox(c *gin.Context) {
	h.runJob(c, h.pipeline.Outbox)
}

func (h *CronHandler) CleanupIntents(c *gin.Context) {
	h.runJob(c, h.pipeline.Cleanup)
}

func (h *CronHandler) ProvisionAddresses(c *gin.Context) {
	h.runJob(c, h.pipeline.Provision)
}

func (h *CronHandler) runJob(c *gin.Context, job treasury.Job) {
	summary, err := job.Run(c.Request.Context())
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	SuccessResponse(c, http.StatusOK, job.Name()+" completed", summary)
}
