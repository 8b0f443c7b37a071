package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed subjects.yaml
var defaultCatalogYAML []byte

// Reserved handler names that cannot be used as subjects.
var reservedSubjectNames = map[string]bool{"general": true, "support": true}

// Catalog describes the tutors available at startup. It is immutable after load.
type Catalog struct {
	Subjects        []SubjectEntry      `yaml:"subjects"`
	StressKeywords  []string            `yaml:"stress_keywords"`
	MoodKeywords    map[string][]string `yaml:"mood_keywords"`
	UrgencyKeywords map[string][]string `yaml:"urgency_keywords"`
	SupportPersona  string              `yaml:"support_persona"`
	GeneralPersona  string              `yaml:"general_persona"`

	index map[string]int
}

// SubjectEntry is one subject tutor.
type SubjectEntry struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Style       string   `yaml:"style"`
	Topics      []string `yaml:"topics"`
	Keywords    []string `yaml:"keywords"`
	Persona     string   `yaml:"persona"`
}

// LoadCatalog reads the catalog from path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) normalize() error {
	var errs []string
	if len(c.Subjects) == 0 {
		errs = append(errs, "at least one subject is required")
	}

	c.index = make(map[string]int, len(c.Subjects))
	for i := range c.Subjects {
		s := &c.Subjects[i]
		s.Name = strings.ToLower(strings.TrimSpace(s.Name))
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Sprintf("subject #%d has no name", i+1))
			continue
		case reservedSubjectNames[s.Name]:
			errs = append(errs, fmt.Sprintf("subject name %q is reserved", s.Name))
			continue
		}
		if _, dup := c.index[s.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate subject %q", s.Name))
			continue
		}
		if strings.TrimSpace(s.Persona) == "" {
			errs = append(errs, fmt.Sprintf("subject %q has no persona", s.Name))
		}
		if s.DisplayName == "" {
			s.DisplayName = strings.ToUpper(s.Name[:1]) + s.Name[1:]
		}
		s.Keywords = lowerAll(s.Keywords)
		c.index[s.Name] = i
	}

	c.StressKeywords = lowerAll(c.StressKeywords)
	for k, v := range c.MoodKeywords {
		c.MoodKeywords[k] = lowerAll(v)
	}
	for k, v := range c.UrgencyKeywords {
		c.UrgencyKeywords[k] = lowerAll(v)
	}

	if strings.TrimSpace(c.SupportPersona) == "" {
		errs = append(errs, "support_persona is required")
	}
	if strings.TrimSpace(c.GeneralPersona) == "" {
		errs = append(errs, "general_persona is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Has reports whether name is a catalog subject.
func (c *Catalog) Has(name string) bool {
	_, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Subject returns the catalog entry for name.
func (c *Catalog) Subject(name string) (SubjectEntry, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return SubjectEntry{}, false
	}
	return c.Subjects[i], true
}

// SubjectNames returns subject names in catalog order.
func (c *Catalog) SubjectNames() []string {
	out := make([]string, len(c.Subjects))
	for i, s := range c.Subjects {
		out[i] = s.Name
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
