package handlers

import (
	"net/http"
	"os"

	"fileswift/config"

	"github.com/gin-gonic/gin"
)

// UploadHealth is the fast liveness gate the clients (and load tests) poll
// before starting an upload. It only checks that the chunk area is writable.
func UploadHealth(c *gin.Context) {
	ready := true
	if err := os.MkdirAll(config.AppConfig.Storage.BasePath, 0o755); err != nil {
		ready = false
	}
	c.JSON(http.StatusOK, gin.H{"uploadReady": ready})
}
