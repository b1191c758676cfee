package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"
	"pic-fusion/app/service"

	"github.com/gin-gonic/gin"
)

// BatchHandler 批次管理处理器
type BatchHandler struct {
	config *config.Config
	logger *logger.Logger
	batch  *service.BatchService
}

// NewBatchHandler 创建批次管理处理器
func NewBatchHandler(cfg *config.Config, batch *service.BatchService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		config: cfg,
		logger: log,
		batch:  batch,
	}
}

func (h *BatchHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    data,
	})
}

func (h *BatchHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, gin.H{
		"code":    errorCode,
		"message": message,
		"data":    nil,
	})
}

// AddFiles 接收 multipart 上传的图片并加入批次
func (h *BatchHandler) AddFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "解析上传表单失败: "+err.Error())
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.error(c, http.StatusBadRequest, 400, "未选择任何文件")
		return
	}

	if err := os.MkdirAll(h.config.Upload.TempDir, 0755); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "创建临时目录失败")
		return
	}

	var added []any
	var failed []gin.H
	for _, fh := range files {
		tempPath := filepath.Join(h.config.Upload.TempDir,
			fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(fh.Filename)))

		if err := c.SaveUploadedFile(fh, tempPath); err != nil {
			failed = append(failed, gin.H{"name": fh.Filename, "error": "保存文件失败: " + err.Error()})
			continue
		}

		file, err := h.batch.AddFile(fh.Filename, tempPath, fh.Size)
		if err != nil {
			_ = os.Remove(tempPath)
			failed = append(failed, gin.H{"name": fh.Filename, "error": err.Error()})
			continue
		}
		added = append(added, file)
	}

	resp := gin.H{
		"added":  added,
		"failed": failed,
	}
	if h.batch.ShouldWarnBatchSize(len(added)) {
		resp["warning"] = fmt.Sprintf("本次加入了 %d 个文件，预计上传耗时约 %d 秒",
			len(added), h.batch.EstimateUploadSeconds(len(added)))
	}

	h.success(c, resp, fmt.Sprintf("已加入 %d 个文件", len(added)))
}

// List 列出批次内全部记录
func (h *BatchHandler) List(c *gin.Context) {
	h.success(c, h.batch.List(), "success")
}

// Remove 移除单条记录
func (h *BatchHandler) Remove(c *gin.Context) {
	id := c.Param("id")
	if !h.batch.Remove(id) {
		h.error(c, http.StatusNotFound, 404, "记录不存在")
		return
	}
	h.success(c, nil, "已移除")
}

// RemoveMany 批量移除记录
func (h *BatchHandler) RemoveMany(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	removed := h.batch.RemoveMany(req.IDs)
	h.success(c, gin.H{"removed": removed}, fmt.Sprintf("已移除 %d 条记录", removed))
}

// Clear 清空批次
func (h *BatchHandler) Clear(c *gin.Context) {
	h.batch.Clear()
	h.success(c, nil, "批次已清空")
}

// ClearSuccess 移除已成功的记录
func (h *BatchHandler) ClearSuccess(c *gin.Context) {
	removed := h.batch.ClearSuccess()
	h.success(c, gin.H{"removed": removed}, fmt.Sprintf("已清理 %d 条成功记录", removed))
}

// UpdateTargetRequest 更新目标分类请求
type UpdateTargetRequest struct {
	IDs         []string `json:"ids"`
	Series      string   `json:"series" binding:"required"`
	Category    string   `json:"category" binding:"required"`
	Subcategory string   `json:"subcategory"`
}

// UpdateTarget 更新单条记录的目标分类
func (h *BatchHandler) UpdateTarget(c *gin.Context) {
	id := c.Param("id")
	var req UpdateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	if !h.batch.UpdateTarget(id, req.Series, req.Category, req.Subcategory) {
		h.error(c, http.StatusConflict, 409, "记录不存在或已不可修改")
		return
	}
	h.success(c, h.batch.Get(id), "分类已更新")
}

// UpdateTargets 批量更新目标分类
func (h *BatchHandler) UpdateTargets(c *gin.Context) {
	var req UpdateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		h.error(c, http.StatusBadRequest, 400, "未指定任何记录")
		return
	}
	updated := h.batch.UpdateTargets(req.IDs, req.Series, req.Category, req.Subcategory)
	h.success(c, gin.H{"updated": updated}, fmt.Sprintf("已更新 %d 条记录", updated))
}

// ApplyAIRecommendation 应用单条记录的 AI 推荐分类
func (h *BatchHandler) ApplyAIRecommendation(c *gin.Context) {
	id := c.Param("id")
	if !h.batch.ApplyAIRecommendation(id) {
		h.error(c, http.StatusConflict, 409, "记录不存在、无 AI 推荐或已不可修改")
		return
	}
	h.success(c, h.batch.Get(id), "已应用 AI 推荐分类")
}

// ApplyAllAIRecommendations 批量应用 AI 推荐分类
func (h *BatchHandler) ApplyAllAIRecommendations(c *gin.Context) {
	applied := h.batch.ApplyAllAIRecommendations()
	h.success(c, gin.H{"applied": applied}, fmt.Sprintf("已应用 %d 条 AI 推荐", applied))
}
