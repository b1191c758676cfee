package handler

import (
	"fmt"
	"net/http"

	"pic-fusion/app/logger"
	"pic-fusion/app/service"

	"github.com/gin-gonic/gin"
)

// HashCacheHandler 哈希缓存管理处理器
type HashCacheHandler struct {
	logger    *logger.Logger
	hashCache *service.HashCacheService
}

// NewHashCacheHandler 创建哈希缓存管理处理器
func NewHashCacheHandler(hashCache *service.HashCacheService, log *logger.Logger) *HashCacheHandler {
	return &HashCacheHandler{
		logger:    log,
		hashCache: hashCache,
	}
}

func (h *HashCacheHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    data,
	})
}

func (h *HashCacheHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, gin.H{
		"code":    errorCode,
		"message": message,
		"data":    nil,
	})
}

// Stats 缓存统计
func (h *HashCacheHandler) Stats(c *gin.Context) {
	h.success(c, gin.H{"count": h.hashCache.Count()}, "success")
}

// Lookup 查询指定摘要是否已上传过
func (h *HashCacheHandler) Lookup(c *gin.Context) {
	digest := c.Param("digest")
	entry := h.hashCache.Lookup(digest)
	h.success(c, gin.H{
		"exists": entry != nil,
		"entry":  entry,
	}, "success")
}

// PurgeExpired 主动清理过期条目
func (h *HashCacheHandler) PurgeExpired(c *gin.Context) {
	purged := h.hashCache.PurgeExpired()
	h.success(c, gin.H{"purged": purged}, fmt.Sprintf("已清理 %d 条过期记录", purged))
}

// Clear 清空缓存
func (h *HashCacheHandler) Clear(c *gin.Context) {
	if err := h.hashCache.Clear(); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "清空缓存失败: "+err.Error())
		return
	}
	h.success(c, nil, "缓存已清空")
}
