package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LoadJSON loads configuration from a JSON file. Keys with no matching
// field are an error.
func LoadJSON(path string, target interface{}) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON %s: %w", path, err)
	}
	return nil
}

// SaveJSON writes configuration as indented JSON.
func SaveJSON(path string, config interface{}) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}
