package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind は取込・参照処理で発生するエラーの種別です。
type Kind string

const (
	ShapeMismatch       Kind = "ShapeMismatch"
	EmptyExtraction     Kind = "EmptyExtraction"
	ArrayLengthMismatch Kind = "ArrayLengthMismatch"
	TypeCoercion        Kind = "TypeCoercionError"
	NotFound            Kind = "NotFound"
	GatewayTimeout      Kind = "GatewayTimeout"
	GatewayError        Kind = "GatewayError"
	StorageError        Kind = "StorageError"
)

// Error は種別付きのアプリケーションエラーです。
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is は種別が一致すれば同じエラーとみなします。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel は errors.Is の比較対象に使う種別だけのエラーを返します。
//
//	errors.Is(err, apperrors.Sentinel(apperrors.NotFound))
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf はエラーチェーンから最初に見つかった種別を返します。
// 種別が付いていないエラーは StorageError として扱います。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return StorageError
}

// HTTPStatus は種別に対応するHTTPステータスコードです。
func HTTPStatus(kind Kind) int {
	switch kind {
	case ShapeMismatch, EmptyExtraction, ArrayLengthMismatch, TypeCoercion:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case GatewayTimeout:
		return http.StatusGatewayTimeout
	case GatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
