package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultMaxPayloadBytes ограничение размера payload одного фида
const DefaultMaxPayloadBytes = 1 << 20

var ErrInvalidPayload = errors.New("invalid payload")

// PayloadValidator проверяет payload успешного опроса до передачи в контроллер (Domain Service)
type PayloadValidator struct {
	maxBytes int
}

// NewPayloadValidator создает новый PayloadValidator
func NewPayloadValidator(maxBytes int) *PayloadValidator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	return &PayloadValidator{maxBytes: maxBytes}
}

// Validate проверяет, что payload непустой, в пределах лимита и является JSON
func (v *PayloadValidator) Validate(payload json.RawMessage) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	if len(payload) > v.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", ErrInvalidPayload, len(payload), v.maxBytes)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: not JSON", ErrInvalidPayload)
	}

	// null тоже валидный JSON, но для виджета это пустые данные
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return fmt.Errorf("%w: null", ErrInvalidPayload)
	}

	return nil
}
