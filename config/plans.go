package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"gopkg.in/yaml.v3"
)

const defaultPlansYAML = `
plans:
  free:
    max_incidents_per_month: 50
  pro:
    max_incidents_per_month: 1000
  enterprise: {}
`

// Plans maps plan names to their limits
type Plans struct {
	Plans map[string]models.PlanLimits `yaml:"plans"`
}

// LoadPlans parses the built-in plan table and overlays the file at path, if any
func LoadPlans(path string) (*Plans, error) {
	plans, err := ParsePlans([]byte(defaultPlansYAML))
	if err != nil {
		return nil, err
	}
	if path == "" {
		return plans, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan limits: %w", err)
	}
	override, err := ParsePlans(data)
	if err != nil {
		return nil, err
	}
	for name, limits := range override.Plans {
		plans.Plans[name] = limits
	}
	return plans, nil
}

// ParsePlans decodes a YAML plan table
func ParsePlans(data []byte) (*Plans, error) {
	var plans Plans
	if err := yaml.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("failed to parse plan limits: %w", err)
	}
	normalized := make(map[string]models.PlanLimits, len(plans.Plans))
	for name, limits := range plans.Plans {
		normalized[strings.ToLower(name)] = limits
	}
	plans.Plans = normalized
	return &plans, nil
}

// LimitsFor returns the limits of a plan. Unknown plans are uncapped.
func (p *Plans) LimitsFor(plan string) models.PlanLimits {
	if p == nil {
		return models.PlanLimits{}
	}
	return p.Plans[strings.ToLower(plan)]
}
