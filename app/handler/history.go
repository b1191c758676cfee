package handler

import (
	"net/http"
	"strconv"

	"pic-fusion/app/logger"
	"pic-fusion/app/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HistoryHandler 上传历史处理器
type HistoryHandler struct {
	logger *logger.Logger
	db     *gorm.DB
}

// NewHistoryHandler 创建上传历史处理器
func NewHistoryHandler(db *gorm.DB, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		logger: log,
		db:     db,
	}
}

func (h *HistoryHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    data,
	})
}

func (h *HistoryHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, gin.H{
		"code":    errorCode,
		"message": message,
		"data":    nil,
	})
}

// List 分页查询上传历史，按时间倒序
func (h *HistoryHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := h.db.Model(&model.UploadHistory{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if series := c.Query("series"); series != "" {
		query = query.Where("series = ?", series)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询上传历史失败: "+err.Error())
		return
	}

	var records []model.UploadHistory
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询上传历史失败: "+err.Error())
		return
	}

	h.success(c, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"records":   records,
	}, "success")
}
