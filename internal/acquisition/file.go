package acquisition

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSource reads records from a local feed file. The format follows the
// extension: .json holds an array of objects (or an object with a
// "properties" array), .jsonl and .ndjson hold one object per line, .yaml
// and .yml hold a list of mappings (or a mapping with a "properties" list).
type FileSource struct {
	name  string
	path  string
	state string
}

// NewFileSource creates a FileSource. state, when non-empty, is applied to
// records that carry no state of their own.
func NewFileSource(name, path, state string) *FileSource {
	return &FileSource{name: name, path: path, state: state}
}

// Name implements Source.
func (s *FileSource) Name() string { return s.name }

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", s.name, ErrFetchFailed, err)
	}

	var rows []map[string]any
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".json":
		rows, err = decodeJSON(data)
	case ".jsonl", ".ndjson":
		rows, err = decodeJSONLines(data)
	case ".yaml", ".yml":
		rows, err = decodeYAML(data)
	default:
		return nil, fmt.Errorf("%s: unsupported feed format %q", s.name, filepath.Ext(s.path))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: decode %s: %w", s.name, s.path, err)
	}

	location := "file://" + s.path
	if abs, err := filepath.Abs(s.path); err == nil {
		location = "file://" + abs
	}

	records := make([]RawRecord, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, newRecord(row, location, s.state))
	}
	return records, nil
}

// listing is the wrapped form of a feed.
type listing struct {
	Properties []map[string]any `json:"properties" yaml:"properties"`
}

func decodeJSON(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '{' {
		var l listing
		if err := dec.Decode(&l); err != nil {
			return nil, err
		}
		return l.Properties, nil
	}

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func decodeJSONLines(data []byte) ([]map[string]any, error) {
	var rows []map[string]any

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func decodeYAML(data []byte) ([]map[string]any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	if node.Content[0].Kind == yaml.MappingNode {
		var l listing
		if err := node.Decode(&l); err != nil {
			return nil, err
		}
		return l.Properties, nil
	}

	var rows []map[string]any
	if err := node.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}
