package tracking

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcechat/backend/internal/domain/index"
	"github.com/sourcechat/backend/internal/infrastructure/log"
)

// Tracker 文件变更追踪器
// 持有 path -> TrackedFile 的内存映射，整体序列化为向量库旁的单个 JSON 文件。
// 单进程单写者，互斥锁仅用于监听模式下的重入保护。
type Tracker struct {
	path    string
	records map[string]index.TrackedFile
	mu      sync.Mutex
	logger  *slog.Logger
}

// TrackingPathFor 由向量数据库路径推导追踪文件路径
// 例：X.db -> X.tracking.json
func TrackingPathFor(dbPath string) string {
	ext := filepath.Ext(dbPath)
	return strings.TrimSuffix(dbPath, ext) + ".tracking.json"
}

// NewTracker 创建追踪器并装载现有追踪文件
// 追踪文件缺失或损坏按空库处理，从不视为致命错误
func NewTracker(dbPath string) *Tracker {
	t := &Tracker{
		path:    TrackingPathFor(dbPath),
		records: make(map[string]index.TrackedFile),
		logger:  log.NewModuleLogger("tracking", "tracker"),
	}
	t.load()
	return t
}

// load 装载追踪文件
func (t *Tracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("Failed to read tracking file, starting empty",
				"path", t.path,
				"error", err,
			)
		}
		return
	}

	var records map[string]index.TrackedFile
	if err := json.Unmarshal(data, &records); err != nil {
		t.logger.Warn("Tracking file is corrupt, starting empty",
			"path", t.path,
			"error", err,
		)
		return
	}
	t.records = records
}

// NeedsProcessing 判断文件是否需要（重新）处理
// 无记录或修改时间不同即需要处理；内容哈希只记录不参与判定
func (t *Tracker) NeedsProcessing(path string, modifiedAt time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[path]
	if !ok {
		return true
	}
	return rec.ModifiedAt != modifiedAt.Unix()
}

// RecordSuccess 写入/更新追踪记录，刷新最后处理时间
func (t *Tracker) RecordSuccess(path string, modifiedAt time.Time, contentHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[path] = index.TrackedFile{
		Path:        path,
		ModifiedAt:  modifiedAt.Unix(),
		ContentHash: contentHash,
		ProcessedAt: time.Now().Unix(),
	}
}

// ReconcileDeletions 删除不在当前发现集中的追踪记录并返回这些路径
// 只回收追踪记录；对应的向量行不删除（已知缺口，见 DESIGN.md）
func (t *Tracker) ReconcileDeletions(current map[string]struct{}) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []string
	for path := range t.records {
		if _, ok := current[path]; !ok {
			removed = append(removed, path)
			delete(t.records, path)
		}
	}
	sort.Strings(removed)
	return removed
}

// Paths 返回所有已追踪路径（升序）
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := make([]string, 0, len(t.records))
	for path := range t.records {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Get 查询单条追踪记录
func (t *Tracker) Get(path string) (index.TrackedFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[path]
	return rec, ok
}

// Persist 整体序列化写回追踪文件
func (t *Tracker) Persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.MarshalIndent(t.records, "", "  ")
	if err != nil {
		return index.WrapError(index.ErrFileTrackingSave, err, "failed to marshal tracking records")
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return index.WrapError(index.ErrFileTrackingSave, err, "failed to create tracking directory")
	}

	if err := os.WriteFile(t.path, data, 0644); err != nil {
		return index.WrapError(index.ErrFileTrackingSave, err, "failed to write tracking file %s", t.path)
	}
	return nil
}

// Clear 清空所有记录并删除追踪文件
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = make(map[string]index.TrackedFile)
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return index.WrapError(index.ErrFileTracking, err, "failed to remove tracking file %s", t.path)
	}
	return nil
}

// Path 返回追踪文件路径
func (t *Tracker) Path() string {
	return t.path
}
