package handler

import (
	"context"
	"net/http"

	"pic-fusion/app/logger"
	"pic-fusion/app/service"

	"github.com/gin-gonic/gin"
)

// RemoteChecker 远端同名文件预检能力
type RemoteChecker interface {
	CheckFileExists(ctx context.Context, path string) (bool, error)
}

// UploadHandler 批量上传处理器
type UploadHandler struct {
	logger  *logger.Logger
	upload  *service.UploadService
	quota   *service.QuotaMonitor
	checker RemoteChecker
}

// NewUploadHandler 创建批量上传处理器
func NewUploadHandler(upload *service.UploadService, quota *service.QuotaMonitor, checker RemoteChecker, log *logger.Logger) *UploadHandler {
	return &UploadHandler{
		logger:  log,
		upload:  upload,
		quota:   quota,
		checker: checker,
	}
}

func (h *UploadHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    data,
	})
}

func (h *UploadHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, gin.H{
		"code":    errorCode,
		"message": message,
		"data":    nil,
	})
}

// UploadAll 上传批次内全部待上传文件
func (h *UploadHandler) UploadAll(c *gin.Context) {
	report, err := h.upload.UploadAll(c.Request.Context())
	if err != nil {
		h.error(c, http.StatusConflict, 409, err.Error())
		return
	}
	h.success(c, report, "批量上传已完成")
}

// RetryFailed 重试失败文件
func (h *UploadHandler) RetryFailed(c *gin.Context) {
	report, err := h.upload.RetryFailed(c.Request.Context())
	if err != nil {
		h.error(c, http.StatusConflict, 409, err.Error())
		return
	}
	h.success(c, report, "重试已完成")
}

// CheckExists 预检远端是否已存在同名文件
// 仅作为用户确认目录时的提示，不参与上传时的内容去重
func (h *UploadHandler) CheckExists(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		h.error(c, http.StatusBadRequest, 400, "缺少 path 参数")
		return
	}

	exists, err := h.checker.CheckFileExists(c.Request.Context(), path)
	if err != nil {
		h.error(c, http.StatusBadGateway, 502, "预检远端文件失败: "+err.Error())
		return
	}
	h.success(c, gin.H{"path": path, "exists": exists}, "success")
}

// Status 上传状态
func (h *UploadHandler) Status(c *gin.Context) {
	data := gin.H{
		"uploading": h.upload.IsUploading(),
	}
	if h.quota != nil {
		data["rate_limit"] = h.quota.Last()
	}
	h.success(c, data, "success")
}
