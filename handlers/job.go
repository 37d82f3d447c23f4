package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetJobStatus relays whatever the worker recorded; the upload subsystem
// never interprets or retries a failed job.
func GetJobStatus(c *gin.Context) {
	out, err := getServices().Job.GetStatus(c.Request.Context(), c.Param("jobId"))
	if respondServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, out)
}
