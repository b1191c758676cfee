package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pic-fusion/app/model"
	"pic-fusion/app/utils/repoclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote 可编程的远端仓库替身
type fakeRemote struct {
	mu          sync.Mutex
	uploads     []string // 成功接收的图片路径
	manifests   []string // 成功接收的清单路径
	failWith    map[string]error
	manifestErr error
	delay       time.Duration // 模拟网络耗时
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{failWith: make(map[string]error)}
}

func (f *fakeRemote) UploadImage(ctx context.Context, path string, data []byte, message string) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, err := range f.failWith {
		if strings.Contains(path, name) {
			return err
		}
	}
	f.uploads = append(f.uploads, path)
	return nil
}

func (f *fakeRemote) CreateFile(ctx context.Context, owner, repo, branch, path string, content []byte, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.manifestErr != nil {
		return f.manifestErr
	}
	f.manifests = append(f.manifests, path)
	return nil
}

func (f *fakeRemote) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func newTestUploadService(t *testing.T) (*UploadService, *BatchService, *fakeRemote, *HashCacheService) {
	t.Helper()
	cfg := testConfig(t)
	log := testLogger()
	batch := NewBatchService(cfg, log)
	cache := newTestHashCache(t, 100, cfg.Upload.HashCacheTTL())
	remote := newFakeRemote()
	upload := NewUploadService(cfg, batch, cache, remote, testDB(t), log)
	return upload, batch, remote, cache
}

func TestUploadAllSuccess(t *testing.T) {
	upload, batch, remote, _ := newTestUploadService(t)

	f1 := addPendingFile(t, batch, "a.jpg", []byte("content-a"))
	f2 := addPendingFile(t, batch, "b.jpg", []byte("content-b"))

	report, err := upload.UploadAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, model.FileStatusSuccess, f1.Status)
	assert.Equal(t, model.FileStatusSuccess, f2.Status)
	assert.Equal(t, 100, f1.Progress)
	assert.Equal(t, 2, remote.uploadCount())

	// 清单应包含全部成功的图片
	require.NotNil(t, report.Manifest)
	assert.True(t, report.Manifest.Success)
	assert.Equal(t, 2, report.Manifest.Count)
}

func TestUploadAllRequiresTarget(t *testing.T) {
	upload, batch, _, _ := newTestUploadService(t)

	file, err := batch.AddFile("a.jpg", writeTempFile(t, "a.jpg", []byte("x")), 1)
	require.NoError(t, err)
	require.Empty(t, file.TargetPath)

	_, err = upload.UploadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未设置上传目录")
}

func TestUploadDuplicateContentSkipsNetwork(t *testing.T) {
	upload, batch, remote, _ := newTestUploadService(t)

	addPendingFile(t, batch, "first.jpg", []byte("same-bytes"))
	_, err := upload.UploadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, remote.uploadCount())

	// 同样内容换个名字再传，必须被哈希缓存拦下，不发起网络写入
	dup := addPendingFile(t, batch, "second.jpg", []byte("same-bytes"))
	report, err := upload.UploadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.FileStatusError, dup.Status)
	assert.Equal(t, model.ErrTypeDuplicate, dup.ErrorType)
	assert.Equal(t, 1, remote.uploadCount(), "重复内容不应触发上传")
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Success)
}

func TestUploadPermissionShortCircuit(t *testing.T) {
	upload, batch, remote, _ := newTestUploadService(t)

	files := make([]*model.UploadFile, 0, 5)
	for i := 0; i < 5; i++ {
		files = append(files, addPendingFile(t, batch, fmt.Sprintf("pic-%d.jpg", i), []byte(fmt.Sprintf("bytes-%d", i))))
	}
	remote.failWith["pic-1.jpg"] = &repoclient.Error{
		Type: repoclient.ErrPermissionDenied, StatusCode: 403, Message: "write access denied",
	}

	report, err := upload.UploadAll(context.Background())
	require.NoError(t, err)

	assert.True(t, report.PermissionError)
	assert.Equal(t, model.FileStatusSuccess, files[0].Status, "短路不应回退已成功的文件")
	assert.Equal(t, model.FileStatusError, files[1].Status)
	assert.Equal(t, model.ErrTypePermissionDenied, files[1].ErrorType)

	// 第 2 个之后的文件全部被标记为权限错误，且没有尝试上传
	for _, f := range files[2:] {
		assert.Equal(t, model.FileStatusError, f.Status)
		assert.Equal(t, model.ErrTypePermissionDenied, f.ErrorType)
	}
	assert.Equal(t, 1, remote.uploadCount())
	assert.Nil(t, report.Manifest, "权限短路后不应写清单")
}

func TestUploadAllConcurrentBatchAccess(t *testing.T) {
	upload, batch, remote, _ := newTestUploadService(t)
	remote.delay = 5 * time.Millisecond

	files := make([]*model.UploadFile, 0, 4)
	for i := 0; i < 4; i++ {
		files = append(files, addPendingFile(t, batch, fmt.Sprintf("c-%d.jpg", i), []byte(fmt.Sprintf("cc-%d", i))))
	}

	// 上传进行中持续读取批次，所有状态变更都必须经过批次锁
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				batch.List()
				batch.PendingFiles()
				batch.SetAIMetadata(files[len(files)-1].ID, &model.AIMetadata{Series: "mobile", Category: "插画"}, true)
			}
		}
	}()

	report, err := upload.UploadAll(context.Background())
	close(done)
	wg.Wait()

	require.NoError(t, err)
	require.Len(t, report.Results, 4)
	for _, f := range files {
		assert.Equal(t, model.FileStatusSuccess, f.Status)
		assert.NotEmpty(t, f.Digest)
	}
	assert.Equal(t, 4, remote.uploadCount())
}

func TestUploadErrorClassification(t *testing.T) {
	upload, batch, remote, _ := newTestUploadService(t)

	rated := addPendingFile(t, batch, "rated.jpg", []byte("r"))
	expired := addPendingFile(t, batch, "expired.jpg", []byte("e"))
	exists := addPendingFile(t, batch, "exists.jpg", []byte("x"))

	remote.failWith["rated.jpg"] = &repoclient.Error{Type: repoclient.ErrRateLimited, StatusCode: 429}
	remote.failWith["expired.jpg"] = &repoclient.Error{Type: repoclient.ErrTokenExpired, StatusCode: 401}
	remote.failWith["exists.jpg"] = &repoclient.Error{Type: repoclient.ErrAlreadyExists, StatusCode: 422}

	_, err := upload.UploadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.ErrTypeRateLimited, rated.ErrorType)
	assert.Equal(t, model.ErrTypeTokenExpired, expired.ErrorType)
	assert.Equal(t, model.ErrTypeAlreadyExists, exists.ErrorType)
}

func TestUploadManifestFailureIsBestEffort(t *testing.T) {
	upload, batch, remote, _ := newTestUploadService(t)
	remote.manifestErr = &repoclient.Error{Type: repoclient.ErrNetworkError, Message: "connection reset"}

	file := addPendingFile(t, batch, "a.jpg", []byte("content"))

	report, err := upload.UploadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.FileStatusSuccess, file.Status, "清单失败不应回退上传结果")
	require.NotNil(t, report.Manifest)
	assert.False(t, report.Manifest.Success)
	assert.NotEmpty(t, report.Manifest.Error)
}

func TestRetryFailed(t *testing.T) {
	upload, batch, remote, _ := newTestUploadService(t)

	good := addPendingFile(t, batch, "good.jpg", []byte("good"))
	bad := addPendingFile(t, batch, "bad.jpg", []byte("bad"))
	remote.failWith["bad.jpg"] = &repoclient.Error{Type: repoclient.ErrNetworkError, Message: "timeout"}

	_, err := upload.UploadAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.FileStatusSuccess, good.Status)
	require.Equal(t, model.FileStatusError, bad.Status)

	// 故障恢复后重试，只重传失败的那一个
	delete(remote.failWith, "bad.jpg")
	report, err := upload.RetryFailed(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, model.FileStatusSuccess, bad.Status)
}

func TestRetryFailedNothingToRetry(t *testing.T) {
	upload, _, _, _ := newTestUploadService(t)

	report, err := upload.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}
