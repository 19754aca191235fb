package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// unknownKeys decodes a config file strictly and reports keys vire does not
// know about. Syntax errors and mistyped known keys are errors.
func unknownKeys(path, format string, data []byte) ([]string, error) {
	var file fileSettings
	if format == "yaml" {
		return unknownYAMLKeys(path, data, &file)
	}
	meta, err := toml.Decode(string(data), &file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var warnings []string
	for _, key := range meta.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("%s: unknown key %q", path, key.String()))
	}
	return warnings, nil
}

func unknownYAMLKeys(path string, data []byte, file *fileSettings) ([]string, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(file)
	if err == nil || errors.Is(err, io.EOF) {
		return nil, nil
	}
	var typeErr *yaml.TypeError
	if !errors.As(err, &typeErr) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var warnings []string
	var invalid []string
	for _, message := range typeErr.Errors {
		if strings.Contains(message, "not found in type") {
			prefix, rest, _ := strings.Cut(message, "field ")
			key, _, _ := strings.Cut(rest, " not found in type")
			warnings = append(warnings, fmt.Sprintf("%s: %sunknown key %q", path, prefix, key))
			continue
		}
		invalid = append(invalid, message)
	}
	if len(invalid) > 0 {
		return warnings, fmt.Errorf("parse %s: %s", path, strings.Join(invalid, "; "))
	}
	return warnings, nil
}
