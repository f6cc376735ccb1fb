package followup

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fallbackText is the last-resort body when a step has no templates at all.
// The dispatcher must never send an empty message.
const fallbackText = "¡Hola {{name}}! Seguimos a tu disposición si necesitas más información."

const namePlaceholder = "{{name}}"

// TemplateSet maps a campaign step to its rotation of message variants.
type TemplateSet struct {
	Default string              `yaml:"default"`
	Steps   map[string][]string `yaml:"steps"`
}

// LoadTemplates reads the reminder templates from a YAML file.
func LoadTemplates(path string) (*TemplateSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var set TemplateSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}

	if set.Default == "" {
		set.Default = fallbackText
	}

	return &set, nil
}

// Resolve returns the message body for a step and variant, with the contact
// name substituted. Fallback order: requested variant, variant 0 of the same
// step, the default text. Every level substitutes the name, and a missing
// name becomes an empty string.
func (s *TemplateSet) Resolve(step string, variant int, name string) string {
	text := s.Default
	if bucket, ok := s.Steps[step]; ok && len(bucket) > 0 {
		if variant < 0 || variant >= len(bucket) {
			variant = 0
		}
		text = bucket[variant]
	}
	if text == "" {
		text = fallbackText
	}
	return strings.ReplaceAll(text, namePlaceholder, name)
}
