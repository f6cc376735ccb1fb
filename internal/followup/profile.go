package followup

import (
	"fmt"
	"time"
)

// Step is one point in the reminder sequence: a stable name (part of the job
// id) and the delay from the triggering event.
type Step struct {
	Name   string
	Offset time.Duration
}

// Profile is the campaign shape for a deployment: the ordered steps and how
// many template variants exist per step. It replaces the hardcoded delays and
// test-number branches the previous bot carried in code.
type Profile struct {
	Steps    []Step
	Variants int
}

// Validate checks the profile is usable for scheduling.
func (p *Profile) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("campaign profile has no steps")
	}
	seen := make(map[string]struct{}, len(p.Steps))
	for _, s := range p.Steps {
		if s.Name == "" {
			return fmt.Errorf("campaign step with empty name")
		}
		if s.Offset <= 0 {
			return fmt.Errorf("campaign step %q has non-positive offset", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate campaign step %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	if p.Variants <= 0 {
		return fmt.Errorf("campaign profile needs at least one template variant")
	}
	return nil
}

// ValidVariant reports whether v is one of the configured variant indices.
func (p *Profile) ValidVariant(v int) bool {
	return v >= 0 && v < p.Variants
}
