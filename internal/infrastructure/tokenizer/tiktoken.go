package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// 在包初始化时设置离线加载器，避免首次使用时联网下载编码文件
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator 基于 tiktoken 的 Token 估算器
type Estimator struct {
	encoding *tiktoken.Tiktoken
}

var (
	estimatorMu    sync.Mutex
	estimatorCache = make(map[string]*Estimator)
)

// Get 获取指定编码的 Estimator
// 按编码名缓存，避免重复加载 BPE 文件
func Get(encodingName string) (*Estimator, error) {
	estimatorMu.Lock()
	defer estimatorMu.Unlock()

	if est, ok := estimatorCache[encodingName]; ok {
		return est, nil
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encodingName, err)
	}

	est := &Estimator{encoding: enc}
	estimatorCache[encodingName] = est
	return est, nil
}

// CountTokens 计算文本的 Token 数量
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// Encode 编码文本为 Token 序列
func (e *Estimator) Encode(text string) []int {
	if text == "" {
		return nil
	}
	return e.encoding.Encode(text, nil, nil)
}

// Decode 将 Token 序列还原为文本
func (e *Estimator) Decode(tokens []int) string {
	if len(tokens) == 0 {
		return ""
	}
	return e.encoding.Decode(tokens)
}
