package filewatcher

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"
	"pic-fusion/app/service"

	"github.com/fsnotify/fsnotify"
)

// IngestWatcher 监听本地投递目录，把新出现的图片自动加入上传批次
// 投递目录里的文件会被复制到上传临时目录后入批，源文件保留由用户处理
type IngestWatcher struct {
	cfg      *config.Config
	batch    *service.BatchService
	logger   *logger.Logger
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	wg       sync.WaitGroup
	watching bool
	mu       sync.Mutex
}

// NewIngestWatcher 创建投递目录监控器，未启用时返回 nil
func NewIngestWatcher(cfg *config.Config, batch *service.BatchService, log *logger.Logger) (*IngestWatcher, error) {
	if !cfg.Watcher.Enabled {
		return nil, nil
	}
	if cfg.Watcher.Dir == "" {
		return nil, fmt.Errorf("投递目录监控已启用但未配置目录")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &IngestWatcher{
		cfg:     cfg,
		batch:   batch,
		logger:  log,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start 启动监控
func (w *IngestWatcher) Start() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("投递目录监控器已经在运行")
	}

	if _, err := os.Stat(w.cfg.Watcher.Dir); os.IsNotExist(err) {
		return fmt.Errorf("投递目录不存在: %s", w.cfg.Watcher.Dir)
	}
	if err := w.watcher.Add(w.cfg.Watcher.Dir); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	w.watching = true
	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Infof("📺 投递目录监控已启动: %s", w.cfg.Watcher.Dir)
	return nil
}

// Stop 停止监控
func (w *IngestWatcher) Stop() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return nil
	}

	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()
	w.watching = false

	w.logger.Info("投递目录监控已停止")
	return nil
}

// watchLoop 监控事件循环
func (w *IngestWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("投递目录监控错误: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// handleEvent 处理文件系统事件，只关心新建的图片文件
func (w *IngestWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}

	name := filepath.Base(event.Name)
	if err := w.batch.ValidateFilename(name); err != nil {
		w.logger.Debugf("跳过非图片文件: %s", name)
		return
	}

	if err := w.waitForFileReady(event.Name); err != nil {
		w.logger.Warnf("等待文件就绪失败: %s, %v", event.Name, err)
		return
	}

	if err := w.ingest(event.Name); err != nil {
		w.logger.Errorf("❌ 投递文件入批失败: %s, %v", name, err)
	} else {
		w.logger.Infof("✅ 投递文件已加入批次: %s", name)
	}
}

// waitForFileReady 等待文件写入完成（大小连续两次不变视为写完）
func (w *IngestWatcher) waitForFileReady(filePath string) error {
	maxWait := 30 * time.Second
	checkInterval := 500 * time.Millisecond
	timeout := time.After(maxWait)

	var lastSize int64 = -1

	for {
		select {
		case <-timeout:
			return fmt.Errorf("等待文件就绪超时: %s", filePath)
		case <-time.After(checkInterval):
			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("获取文件信息失败: %w", err)
			}

			currentSize := info.Size()
			if currentSize == lastSize && currentSize > 0 {
				return nil
			}
			lastSize = currentSize
		}
	}
}

// ingest 把投递文件复制到上传临时目录并加入批次
func (w *IngestWatcher) ingest(sourcePath string) error {
	if err := os.MkdirAll(w.cfg.Upload.TempDir, 0755); err != nil {
		return fmt.Errorf("创建临时目录失败: %w", err)
	}

	name := filepath.Base(sourcePath)
	tempPath := filepath.Join(w.cfg.Upload.TempDir,
		fmt.Sprintf("%d-%s", time.Now().UnixNano(), name))

	size, err := copyFile(sourcePath, tempPath)
	if err != nil {
		return err
	}

	if _, err := w.batch.AddFile(name, tempPath, size); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

// copyFile 复制文件并返回写入字节数
func copyFile(src, dst string) (int64, error) {
	sourceFile, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("打开源文件失败: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer destFile.Close()

	n, err := io.Copy(destFile, sourceFile)
	if err != nil {
		return 0, fmt.Errorf("复制文件内容失败: %w", err)
	}
	return n, nil
}
