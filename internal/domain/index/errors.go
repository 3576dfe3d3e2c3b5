package index

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码
// 封闭的错误分类，调用方根据错误码分支处理，而不是捕获异常
type ErrorCode string

const (
	// ErrDirectoryNotFound 入库根目录不存在
	ErrDirectoryNotFound ErrorCode = "DirectoryNotFound"
	// ErrFileProcessing 单文件处理失败（包装底层读取/切块/嵌入错误）
	ErrFileProcessing ErrorCode = "FileProcessingError"
	// ErrFileProcessingFailed 切块管线报告了非成功结果但没有底层错误
	ErrFileProcessingFailed ErrorCode = "FileProcessingFailed"
	// ErrFileTracking 追踪记录读写失败
	ErrFileTracking ErrorCode = "FileTrackingError"
	// ErrFileTrackingSave 追踪文件持久化失败
	ErrFileTrackingSave ErrorCode = "FileTrackingSaveError"
	// ErrCollectionNotFound 向量集合不存在（尚未入库）
	ErrCollectionNotFound ErrorCode = "CollectionNotFound"
	// ErrCollectionAccess 向量集合打开/访问失败
	ErrCollectionAccess ErrorCode = "CollectionAccessError"
	// ErrQueryExecution 查询管线执行失败
	ErrQueryExecution ErrorCode = "QueryExecutionError"
	// ErrNoSearchResults 相似度搜索零命中
	ErrNoSearchResults ErrorCode = "NoSearchResults"
	// ErrDimensionMismatch 向量维度与集合维度不一致（整次入库致命）
	ErrDimensionMismatch ErrorCode = "DimensionMismatch"
	// ErrSummaryRetrieval 入库后抽样检索失败
	ErrSummaryRetrieval ErrorCode = "SummaryRetrievalError"
)

// Error 带错误码的领域错误
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // 可选的底层错误

	// 维度诊断信息，仅 DimensionMismatch 填写
	ExpectedDim int
	ActualDim   int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 创建领域错误
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError 包装底层错误
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewDimensionMismatch 创建维度不一致错误，携带期望/实际维度
func NewDimensionMismatch(expected, actual int) *Error {
	return &Error{
		Code:        ErrDimensionMismatch,
		Message:     fmt.Sprintf("collection dimension is %d but got vectors of dimension %d", expected, actual),
		ExpectedDim: expected,
		ActualDim:   actual,
	}
}

// CodeOf 提取错误码；非领域错误返回空串
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode 判断错误是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
