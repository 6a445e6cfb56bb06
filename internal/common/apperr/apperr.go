package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 业务错误分类（在传输层映射为 HTTP 状态码）。
type Kind int

const (
	KindInternal      Kind = iota // 未分类/内部错误
	KindValidation                // 参数校验失败（字段级错误）
	KindNotFound                  // 资源不存在
	KindAuthorization             // 调用者与资源关系不满足要求
	KindConflict                  // 请求合法但当前状态不允许
	KindPayment                   // 模拟支付失败（不产生任何状态变更）
)

// Error 携带分类与字段级信息的业务错误。
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // 仅 KindValidation 使用
	Err     error             // 底层错误（内部排查用，不直接下发）
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New 构造指定分类的业务错误。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation 字段级校验错误。
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// ValidationField 单字段校验错误的便捷构造。
func ValidationField(field, msg string) *Error {
	return Validation(map[string]string{field: msg})
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Payment(message string) *Error {
	return &Error{Kind: KindPayment, Message: message}
}

// Internal 包装底层错误；Message 对外，Err 对内。
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf 提取错误分类；非 *Error 一律视为内部错误。
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus 分类到 HTTP 状态码的映射。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindPayment:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
