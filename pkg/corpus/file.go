package corpus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadFile decodes a JSON or YAML array of row objects.
func ReadFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading corpus file: %w", err)
	}
	return Decode(data)
}

// Decode parses JSON or YAML row data. JSON is accepted because it is
// valid YAML.
func Decode(data []byte) ([]Row, error) {
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing corpus file: %w", err)
	}
	rows := make([]Row, len(raw))
	for i, r := range raw {
		rows[i] = Row(r)
	}
	return rows, nil
}

// LoadFile reads and loads a corpus in one step.
func LoadFile(path string) (*Corpus, error) {
	rows, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(rows)
}
