package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcechat/backend/internal/infrastructure/log"
)

// WatchConfig DirWatcher 配置
type WatchConfig struct {
	// Root 监听的根目录
	Root string
	// Patterns 关注的文件名 glob 模式
	Patterns []string
	// DebounceDelay 防抖延迟
	DebounceDelay time.Duration
}

// DefaultWatchConfig 返回默认配置
func DefaultWatchConfig(root string, patterns []string) WatchConfig {
	return WatchConfig{
		Root:          root,
		Patterns:      patterns,
		DebounceDelay: 500 * time.Millisecond,
	}
}

// DirWatcher 目录监听器
// 递归监听根目录，匹配模式的文件发生变化后经防抖合并触发一次回调
type DirWatcher struct {
	config  WatchConfig
	onBatch func()
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// 防抖相关
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	// 控制
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDirWatcher 创建目录监听器
// onBatch 在防抖窗口结束后被调用一次，由调用方执行增量入库
func NewDirWatcher(config WatchConfig, onBatch func()) (*DirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &DirWatcher{
		config:  config,
		onBatch: onBatch,
		watcher: watcher,
		logger:  log.NewModuleLogger("watcher", "dir_watcher"),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start 启动目录监听
func (dw *DirWatcher) Start() error {
	dw.logger.Info("Starting directory watcher",
		"root", dw.config.Root,
		"patterns", dw.config.Patterns,
	)

	if err := dw.addDirRecursive(dw.config.Root); err != nil {
		return err
	}

	dw.wg.Add(1)
	go dw.watchLoop()

	return nil
}

// Stop 停止目录监听
func (dw *DirWatcher) Stop() {
	dw.logger.Info("Stopping directory watcher")

	close(dw.stopCh)
	dw.watcher.Close()
	dw.wg.Wait()

	dw.debounceMu.Lock()
	if dw.debounceTimer != nil {
		dw.debounceTimer.Stop()
	}
	dw.debounceMu.Unlock()

	dw.logger.Info("Directory watcher stopped")
}

// addDirRecursive 递归添加目录监听
func (dw *DirWatcher) addDirRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // 忽略无法访问的目录
		}

		if info.IsDir() {
			// 跳过隐藏目录
			if name := info.Name(); strings.HasPrefix(name, ".") && path != dir {
				return filepath.SkipDir
			}
			if err := dw.watcher.Add(path); err != nil {
				dw.logger.Debug("Failed to add directory to watch",
					"path", path,
					"error", err,
				)
			}
		}
		return nil
	})
}

// watchLoop 事件监听循环
func (dw *DirWatcher) watchLoop() {
	defer dw.wg.Done()

	for {
		select {
		case <-dw.stopCh:
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			dw.handleFsEvent(event)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件
func (dw *DirWatcher) handleFsEvent(event fsnotify.Event) {
	// 新创建的子目录需要加入监听
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				dw.watcher.Add(event.Name)
			}
			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !dw.matches(event.Name) {
		return
	}

	dw.logger.Debug("File change detected", "path", event.Name, "op", event.Op.String())
	dw.scheduleBatch()
}

// matches 判断路径是否匹配关注的模式
func (dw *DirWatcher) matches(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range dw.config.Patterns {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

// scheduleBatch 重置防抖定时器
// 连续变更合并为一次回调
func (dw *DirWatcher) scheduleBatch() {
	dw.debounceMu.Lock()
	defer dw.debounceMu.Unlock()

	if dw.debounceTimer != nil {
		dw.debounceTimer.Stop()
	}
	dw.debounceTimer = time.AfterFunc(dw.config.DebounceDelay, dw.onBatch)
}
