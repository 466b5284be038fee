package cache

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go-upstream-guard/internal/interfaces"
)

// maxRawKeyLength bounds keys stored verbatim; longer keys are hashed
const maxRawKeyLength = 200

// Ensure KeyBuilderImpl implements interfaces.KeyBuilder
var _ interfaces.KeyBuilder = (*KeyBuilderImpl)(nil)

// KeyBuilderImpl implements the KeyBuilder interface
type KeyBuilderImpl struct{}

// NewKeyBuilder creates a new KeyBuilder instance
func NewKeyBuilder() interfaces.KeyBuilder {
	return &KeyBuilderImpl{}
}

// Build creates the storage key namespace:key. Keys that are not storage safe
// (path separators, whitespace, excessive length) are replaced by their md5 hash.
func (kb *KeyBuilderImpl) Build(namespace, key string) (string, error) {
	if namespace == "" {
		return "", errors.New("namespace cannot be empty")
	}

	if key == "" {
		return "", errors.New("key cannot be empty")
	}

	if !isSafeKey(key) {
		key = md5Hex([]byte(key))
	}

	return fmt.Sprintf("%s:%s", namespace, key), nil
}

// BuildFromParams creates a deterministic logical key from structured parameters
func (kb *KeyBuilderImpl) BuildFromParams(params interface{}) (string, error) {
	if params == nil {
		return "", errors.New("params cannot be nil")
	}

	// encoding/json sorts map keys, so equal maps hash equally
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}

	return md5Hex(paramsJSON), nil
}

func isSafeKey(key string) bool {
	if len(key) > maxRawKeyLength {
		return false
	}
	return !strings.ContainsAny(key, "/ \t\n\r")
}

func md5Hex(data []byte) string {
	hasher := md5.New()
	hasher.Write(data)
	return fmt.Sprintf("%x", hasher.Sum(nil))
}
