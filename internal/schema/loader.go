package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type pagesFile struct {
	Pages []*Page `yaml:"pages"`
}

// Parse decodes and validates a pages document.
func Parse(data []byte) ([]*Page, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc pagesFile
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}

	seen := make(map[string]bool, len(doc.Pages))
	for _, p := range doc.Pages {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate page %s", p.Name)
		}
		seen[p.Name] = true
	}
	return doc.Pages, nil
}

// LoadFile reads the pages file at path and populates the registry.
func LoadFile(path string, reg *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pages file: %w", err)
	}
	pages, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	reg.Load(pages)
	return nil
}
