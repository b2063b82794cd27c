package service

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPayloadValidator_Validate(t *testing.T) {
	v := NewPayloadValidator(64)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"object", `{"tps":1}`, false},
		{"object with trailing newline", "{\"tps\":1}\n", false},
		{"array", `[1,2]`, false},
		{"empty", ``, true},
		{"html", `<html>maintenance</html>`, true},
		{"null", `null`, true},
		{"null with newline", "null\n", true},
		{"null with spaces", " null \t", true},
		{"too large", `{"x":"` + strings.Repeat("a", 64) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(json.RawMessage(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("Validate(%q) error = %v, want ErrInvalidPayload", tt.payload, err)
			}
		})
	}
}

func TestNewPayloadValidator_DefaultLimit(t *testing.T) {
	if v := NewPayloadValidator(0); v.maxBytes != DefaultMaxPayloadBytes {
		t.Fatalf("maxBytes = %d, want %d", v.maxBytes, DefaultMaxPayloadBytes)
	}
}
