package config

import (
	"fmt"
	"io"
	"os"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"gopkg.in/yaml.v3"
)

// DesignFile is the YAML document listing candidate designs
type DesignFile struct {
	Designs []model.Candidate `yaml:"designs"`
}

// LoadCandidates reads and validates a candidate design file
func LoadCandidates(path string) ([]model.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open design file: %w", err)
	}
	defer f.Close()

	return ParseCandidates(f)
}

// ParseCandidates decodes a candidate design file. Unknown keys are rejected,
// unnamed designs are numbered and every design must be structurally valid.
func ParseCandidates(r io.Reader) ([]model.Candidate, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file DesignFile
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, errors.NewDesignerError(errors.ErrCodeInvalidConfiguration, "failed to parse design file", err)
	}

	seen := make(map[string]struct{}, len(file.Designs))
	for i := range file.Designs {
		c := &file.Designs[i]
		if c.Name == "" {
			c.Name = fmt.Sprintf("design-%d", i+1)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, errors.InvalidConfiguration("designs", fmt.Sprintf("duplicate design name '%s'", c.Name))
		}
		seen[c.Name] = struct{}{}

		if err := c.Design.Validate(); err != nil {
			return nil, fmt.Errorf("design '%s': %w", c.Name, err)
		}
	}
	return file.Designs, nil
}
