package domain

import "errors"

// Ошибки ядра. Сервисы оборачивают их через fmt.Errorf("%w: ...", ErrXxx),
// клиенты различают их по коду из CodeOf, а не по тексту.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientQuota = errors.New("insufficient quota")
	ErrNotEmpty          = errors.New("folder is not empty")
	ErrIO                = errors.New("storage i/o error")
	ErrInternal          = errors.New("internal error")

	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBelowUsedSpace  = errors.New("limit is below used space")
)

// ErrAlreadyExists - нарушение уникальности (owner, path) в хранилище метаданных
var ErrAlreadyExists = &wrapped{msg: "already exists", kind: ErrConflict}

type wrapped struct {
	msg  string
	kind error
}

func (e *wrapped) Error() string { return e.msg }
func (e *wrapped) Unwrap() error { return e.kind }

type ErrorCode string

const (
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeInsufficientQuota ErrorCode = "INSUFFICIENT_QUOTA"
	CodeNotEmpty          ErrorCode = "NOT_EMPTY"
	CodeIO                ErrorCode = "IO_ERROR"
	CodeInternal          ErrorCode = "INTERNAL"
	CodeInvalidName       ErrorCode = "INVALID_NAME"
	CodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	CodeBelowUsedSpace    ErrorCode = "BELOW_USED_SPACE"
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	// Internal проверяется первым: он может оборачивать исходную ошибку хранилища
	{ErrInternal, CodeInternal},
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrConflict, CodeConflict},
	{ErrInsufficientQuota, CodeInsufficientQuota},
	{ErrNotEmpty, CodeNotEmpty},
	{ErrInvalidName, CodeInvalidName},
	{ErrInvalidArgument, CodeInvalidArgument},
	{ErrBelowUsedSpace, CodeBelowUsedSpace},
	{ErrIO, CodeIO},
}

// CodeOf возвращает стабильный код ошибки. Неизвестные ошибки считаются INTERNAL.
func CodeOf(err error) ErrorCode {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
