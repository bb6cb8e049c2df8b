package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrInvalidConfig = errors.New("store: container config is not valid JSON")

// LoadContainerConfig reads the container configuration served to
// containers and returns it as compact JSON text.
func LoadContainerConfig(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read container config: %w", err)
	}
	var out bytes.Buffer
	if err := json.Compact(&out, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return out.String(), nil
}
