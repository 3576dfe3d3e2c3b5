package ingest

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sourcechat/backend/internal/domain/index"
)

// SplitPatterns 拆分分号分隔的 glob 模式列表并去重
func SplitPatterns(patterns string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, p := range strings.Split(patterns, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result
}

// DiscoverFiles 在根目录下递归展开 glob 模式
// 返回按遍历顺序去重后的文件绝对路径集合；零匹配不是错误
func DiscoverFiles(root string, patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// 跳过隐藏目录（.git 等）
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		for _, pattern := range patterns {
			matched, err := filepath.Match(pattern, d.Name())
			if err != nil {
				return err
			}
			if matched {
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				if _, ok := seen[abs]; !ok {
					seen[abs] = struct{}{}
					files = append(files, abs)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, index.WrapError(index.ErrFileProcessing, err, "failed to discover files under %s", root)
	}

	return files, nil
}
