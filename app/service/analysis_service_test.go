package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pic-fusion/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalysisService(t *testing.T) (*AnalysisService, *BatchService) {
	t.Helper()
	cfg := testConfig(t)
	log := testLogger()
	batch := NewBatchService(cfg, log)
	return NewAnalysisService(cfg, batch, log), batch
}

func TestAnalyzeAllEveryFileOnce(t *testing.T) {
	analysis, batch := newTestAnalysisService(t)

	files := make([]*model.UploadFile, 0, 10)
	for i := 0; i < 10; i++ {
		files = append(files, addPendingFile(t, batch, fmt.Sprintf("img-%d.jpg", i), []byte(fmt.Sprintf("c%d", i))))
	}

	var mu sync.Mutex
	analyzed := make(map[string]int)
	var current, peak int64

	analyzeOne := func(ctx context.Context, file *model.UploadFile) (*model.AIMetadata, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&current, -1)

		mu.Lock()
		analyzed[file.ID]++
		mu.Unlock()
		return &model.AIMetadata{Series: "desktop", Category: "风景"}, nil
	}

	analysis.AnalyzeAll(context.Background(), files, analyzeOne, 3)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, analyzed, 10)
	for id, count := range analyzed {
		assert.Equal(t, 1, count, "文件 %s 被分析了多次", id)
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))

	for _, f := range files {
		require.NotNil(t, f.AIMetadata)
		assert.Equal(t, "风景", f.AIMetadata.Category)
	}

	status := analysis.Status()
	assert.False(t, status.Analyzing)
	assert.Zero(t, status.Remaining)
}

func TestAnalyzeAllFailureFallback(t *testing.T) {
	analysis, batch := newTestAnalysisService(t)

	good := addPendingFile(t, batch, "good.jpg", []byte("g"))
	bad := addPendingFile(t, batch, "bad.jpg", []byte("b"))

	analyzeOne := func(ctx context.Context, file *model.UploadFile) (*model.AIMetadata, error) {
		if file.ID == bad.ID {
			return nil, errors.New("模型超时")
		}
		return &model.AIMetadata{Series: "desktop", Category: "动漫"}, nil
	}

	analysis.AnalyzeAll(context.Background(), []*model.UploadFile{good, bad}, analyzeOne, 2)

	require.NotNil(t, good.AIMetadata)
	assert.Empty(t, good.AIMetadata.Error)

	// 失败的文件得到携带错误信息的回退元数据，不影响其他文件
	require.NotNil(t, bad.AIMetadata)
	assert.Equal(t, "通用", bad.AIMetadata.Category)
	assert.Contains(t, bad.AIMetadata.Error, "模型超时")
	assert.Equal(t, model.FileStatusPending, bad.Status)
}

func TestAnalyzeAutoAppliesRecommendation(t *testing.T) {
	analysis, batch := newTestAnalysisService(t)

	file := addPendingFile(t, batch, "a.jpg", []byte("a"))
	require.Equal(t, "风景", file.TargetL1)

	analyzeOne := func(ctx context.Context, f *model.UploadFile) (*model.AIMetadata, error) {
		return &model.AIMetadata{Series: "mobile", Category: "插画", Subcategory: "水彩"}, nil
	}
	analysis.AnalyzeAll(context.Background(), []*model.UploadFile{file}, analyzeOne, 1)

	assert.Equal(t, "mobile", file.TargetSeries)
	assert.Equal(t, "插画", file.TargetL1)
	assert.Equal(t, "水彩", file.TargetL2)
	assert.Equal(t, "wallpaper/mobile/插画/水彩", file.TargetPath)
}

func TestLateAnalysisResultIgnored(t *testing.T) {
	analysis, batch := newTestAnalysisService(t)

	file := addPendingFile(t, batch, "a.jpg", []byte("a"))

	// 文件在分析结果返回前已进入上传流程
	analyzeOne := func(ctx context.Context, f *model.UploadFile) (*model.AIMetadata, error) {
		file.Status = model.FileStatusUploading
		return &model.AIMetadata{Series: "mobile", Category: "插画"}, nil
	}
	analysis.AnalyzeAll(context.Background(), []*model.UploadFile{file}, analyzeOne, 1)

	assert.Nil(t, file.AIMetadata, "迟到的分析结果不应写入非 pending 记录")
	assert.Equal(t, "desktop", file.TargetSeries)
}

func TestAnalyzePendingRequiresEnabled(t *testing.T) {
	analysis, batch := newTestAnalysisService(t)
	analysis.cfg.AI.Enabled = false

	addPendingFile(t, batch, "a.jpg", []byte("a"))

	_, err := analysis.AnalyzePending(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未启用")
}
