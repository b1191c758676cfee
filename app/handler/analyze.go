package handler

import (
	"fmt"
	"net/http"

	"pic-fusion/app/logger"
	"pic-fusion/app/service"

	"github.com/gin-gonic/gin"
)

// AnalyzeHandler AI 分析处理器
type AnalyzeHandler struct {
	logger   *logger.Logger
	analysis *service.AnalysisService
}

// NewAnalyzeHandler 创建 AI 分析处理器
func NewAnalyzeHandler(analysis *service.AnalysisService, log *logger.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		logger:   log,
		analysis: analysis,
	}
}

func (h *AnalyzeHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    data,
	})
}

func (h *AnalyzeHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, gin.H{
		"code":    errorCode,
		"message": message,
		"data":    nil,
	})
}

// AnalyzePending 分析批次内所有待分析的文件
// 分析是同步执行的，响应在整批分析结束后返回
func (h *AnalyzeHandler) AnalyzePending(c *gin.Context) {
	count, err := h.analysis.AnalyzePending(c.Request.Context())
	if err != nil {
		h.error(c, http.StatusConflict, 409, err.Error())
		return
	}
	h.success(c, gin.H{"analyzed": count}, fmt.Sprintf("已分析 %d 个文件", count))
}

// Status 分析进度
func (h *AnalyzeHandler) Status(c *gin.Context) {
	h.success(c, h.analysis.Status(), "success")
}
