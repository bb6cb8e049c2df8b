package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogEntry is one sample message. Data is taken literally unless
// Encoding is "base64".
type CatalogEntry struct {
	Data     string `json:"data" yaml:"data"`
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

type catalogFile struct {
	Messages []CatalogEntry `json:"messages" yaml:"messages"`
}

// LoadCatalog reads a JSON or YAML catalog, chosen by file extension.
func LoadCatalog(path string) ([][]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return ParseCatalog(b, format)
}

func ParseCatalog(b []byte, format string) ([][]byte, error) {
	var f catalogFile
	var err error
	if format == "yaml" {
		err = yaml.Unmarshal(b, &f)
	} else {
		err = json.Unmarshal(b, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s catalog: %w", format, err)
	}
	if len(f.Messages) == 0 {
		return nil, ErrEmptyCatalog
	}
	out := make([][]byte, 0, len(f.Messages))
	for i, e := range f.Messages {
		switch e.Encoding {
		case "", "text":
			out = append(out, []byte(e.Data))
		case "base64":
			d, err := base64.StdEncoding.DecodeString(e.Data)
			if err != nil {
				return nil, fmt.Errorf("catalog entry %d: %w", i, err)
			}
			out = append(out, d)
		default:
			return nil, fmt.Errorf("catalog entry %d: unknown encoding %q", i, e.Encoding)
		}
	}
	return out, nil
}
