package valueobject

import (
	"errors"
	"net/http"
)

// ErrorKind классифицирует ошибку опроса для UI (Value Object).
// Пустое значение означает отсутствие ошибки.
type ErrorKind string

const (
	NoError      ErrorKind = ""
	RateLimited  ErrorKind = "rate-limited"
	ServerError  ErrorKind = "server-error"
	NetworkError ErrorKind = "network-error"
)

// StatusCoder реализуется ошибками, которые несут HTTP статус апстрима
type StatusCoder interface {
	HTTPStatus() int
}

// Validate проверяет валидность вида ошибки
func (k ErrorKind) Validate() error {
	switch k {
	case NoError, RateLimited, ServerError, NetworkError:
		return nil
	default:
		return errors.New("invalid error kind")
	}
}

// String возвращает строковое представление вида ошибки
func (k ErrorKind) String() string {
	return string(k)
}

// ClassifyError определяет вид ошибки по структурированной цепочке ошибок.
// Текст ошибки не анализируется: статус берется только из StatusCoder.
func ClassifyError(err error) ErrorKind {
	var sc StatusCoder
	if err == nil || !errors.As(err, &sc) {
		return NetworkError
	}

	switch sc.HTTPStatus() {
	case http.StatusTooManyRequests:
		return RateLimited
	case http.StatusInternalServerError, http.StatusBadGateway:
		return ServerError
	default:
		return NetworkError
	}
}
