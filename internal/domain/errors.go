package domain

import (
	"errors"
	"fmt"
)

// Ошибки предметной области, общие для сборок и выполнений.
var (
	// ErrNotFound — функция, деплоймент или сборка не найдены (или функция выключена).
	ErrNotFound = errors.New("not found")

	// ErrNotReady — сборка деплоймента ещё не в статусе ready.
	ErrNotReady = errors.New("build not ready")

	// ErrUnsupported — рантайм отсутствует в каталоге.
	ErrUnsupported = errors.New("runtime not supported")

	// ErrValidation — некорректные входные данные (например, нет entrypoint).
	ErrValidation = errors.New("validation failed")

	// ErrSourceTooLarge — исходники превышают лимит размера.
	ErrSourceTooLarge = errors.New("source too large")

	// ErrUnauthorized — у вызывающего нет прав на выполнение функции.
	ErrUnauthorized = errors.New("unauthorized")
)

// CodedError — ошибка с HTTP-подобным кодом, который попадает
// в statusCode выполнения.
type CodedError struct {
	Code    int
	Message string
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// ErrorCode возвращает код ошибки или fallback, если ошибка без кода.
func ErrorCode(err error, fallback int) int {
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code > 0 {
		return coded.Code
	}
	return fallback
}
