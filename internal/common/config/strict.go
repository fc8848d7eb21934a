package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// unmarshalStrict decodes YAML rejecting unknown fields so typos surface at startup
func unmarshalStrict(data []byte, v interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty document, defaults apply
		}
		errStr := err.Error()
		if strings.Contains(errStr, "field") && strings.Contains(errStr, "not found") {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}

	return nil
}
