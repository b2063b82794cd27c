package valueobject

import (
	"errors"
	"regexp"
)

var feedKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// ValidateFeedKey проверяет ключ фида: строчные буквы, цифры и дефис.
// Ключ попадает в NATS subject и ключи хранилищ, поэтому формат ограничен.
func ValidateFeedKey(key string) error {
	if key == "" {
		return errors.New("feed key cannot be empty")
	}
	if !feedKeyPattern.MatchString(key) {
		return errors.New("invalid feed key: " + key)
	}
	return nil
}
