package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrMissingParams is returned when no params file can be found.
var ErrMissingParams = errors.New("params file not found")

// ParamsExtensions are tried in order when looking up a params file.
var ParamsExtensions = []string{".json", ".yaml", ".yml", ".toml"}

// FindParams returns path when it is set, otherwise the first existing
// base+extension in the working directory.
func FindParams(path, base string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrMissingParams, path)
		}
		return path, nil
	}
	for _, ext := range ParamsExtensions {
		candidate := base + ext
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s{%s}", ErrMissingParams, base, strings.Join(ParamsExtensions, ","))
}

// LoadParams decodes the params file at path into out, choosing the decoder
// from the file extension.
func LoadParams(path string, out interface{}) error {
	data, err := os.ReadFile(path) // #nosec G304 - params path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingParams, path)
		}
		return fmt.Errorf("failed to read params file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	case ".toml":
		_, err = toml.Decode(string(data), out)
	default:
		return fmt.Errorf("unsupported params file extension %q (want .json, .yaml or .toml)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse params file %s: %w", path, err)
	}
	return nil
}
