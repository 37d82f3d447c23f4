package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fileswift/config"
	"fileswift/services"
	"fileswift/utils"

	"github.com/gin-gonic/gin"
)

type initUploadRequest struct {
	UploadID string `json:"uploadId"`
	ToolID   string `json:"toolId"`
	FileName string `json:"filename"`
	FileSize int64  `json:"fileSize"`
}

// InitUpload creates an upload session up front. Optional: a session is also
// created lazily by the first chunk.
func InitUpload(c *gin.Context) {
	var req initUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	out, err := getServices().Upload.InitSession(c.Request.Context(), services.InitUploadInput{
		UploadID: req.UploadID,
		ToolID:   req.ToolID,
		FileName: req.FileName,
		FileSize: req.FileSize,
	})
	if respondServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, out)
}

// UploadChunk accepts one chunk of a session. Chunks arrive in any order and
// re-sending an index overwrites the previous bytes.
func UploadChunk(c *gin.Context) {
	uploadID := c.PostForm("uploadId")
	if uploadID == "" {
		utils.Error(c, http.StatusBadRequest, "Missing uploadId")
		return
	}

	index, err := strconv.Atoi(c.PostForm("index"))
	if err != nil || index < 0 {
		utils.Error(c, http.StatusBadRequest, "Invalid chunk index")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		file, header, err = c.Request.FormFile("chunk")
	}
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "Missing chunk payload")
		return
	}
	defer file.Close()

	if header.Size > config.AppConfig.Storage.MaxChunkSize {
		utils.Error(c, http.StatusBadRequest, "Chunk too large")
		return
	}

	out, svcErr := getServices().Upload.RecordChunk(c.Request.Context(), uploadID, index, file)
	if respondServiceError(c, svcErr) {
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListChunks reports the indices already stored for a session so an
// interrupted client can resume with only the missing pieces.
func ListChunks(c *gin.Context) {
	uploadID := c.Param("uploadId")
	out, err := getServices().Upload.ListChunks(c.Request.Context(), uploadID)
	if respondServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, out)
}

type completeUploadRequest struct {
	UploadID    string          `json:"uploadId"`
	ToolID      string          `json:"toolId"`
	FileName    string          `json:"filename"`
	TotalChunks int             `json:"totalChunks"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// CompleteUpload validates the chunk set, assembles the file and submits the
// processing job. Returns 202 with the new jobId.
func CompleteUpload(c *gin.Context) {
	var req completeUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UploadID == "" {
		utils.Error(c, http.StatusBadRequest, "Missing uploadId")
		return
	}

	job, err := getServices().Upload.CompleteUpload(c.Request.Context(), services.CompleteUploadInput{
		UploadID:    req.UploadID,
		ToolID:      req.ToolID,
		FileName:    req.FileName,
		TotalChunks: req.TotalChunks,
		Data:        req.Data,
	})
	if respondServiceError(c, err) {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.JobID})
}

// DirectUpload is the non-chunked path for small payloads: one multipart
// request carrying the file(s), the tool id and the options blob.
func DirectUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}

	var data json.RawMessage
	if raw := c.PostForm("data"); raw != "" {
		data = json.RawMessage(raw)
	}

	out, svcErr := getServices().Upload.DirectUpload(c.Request.Context(), services.DirectUploadInput{
		ToolID: c.PostForm("toolId"),
		Files:  files,
		Data:   data,
	})
	if respondServiceError(c, svcErr) {
		return
	}
	c.JSON(http.StatusAccepted, out)
}
