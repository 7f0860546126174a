package evidence

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/moolen/sleuth/internal/models"
)

// Catalog is the authored source of diagnostic steps, grouped by incident.
type Catalog struct {
	Version   string            `yaml:"version"`
	Incidents []CatalogIncident `yaml:"incidents"`
}

// CatalogIncident is one authored incident and the steps used to diagnose it.
type CatalogIncident struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title"`
	RootCause string        `yaml:"root_cause"`
	Steps     []CatalogStep `yaml:"steps"`
}

// CatalogStep is a step as written in the catalog file. ID and RootCause
// default to "<incident>-<index>" and the incident's root cause.
type CatalogStep struct {
	ID           string `yaml:"id,omitempty"`
	ObservedFact string `yaml:"observed_fact"`
	Method       string `yaml:"method"`
	Analysis     string `yaml:"analysis"`
	RootCause    string `yaml:"root_cause,omitempty"`
}

// LoadCatalogFile reads and validates a YAML catalog. minVersion may be
// empty to skip the version check.
func LoadCatalogFile(path, minVersion string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data, minVersion)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte, minVersion string) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(minVersion); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the catalog version and that every step resolves to a
// unique id, an observed fact and a root cause.
func (c *Catalog) Validate(minVersion string) error {
	if c.Version == "" {
		return models.NewValidationError("catalog version is required")
	}
	catVer, err := version.NewVersion(c.Version)
	if err != nil {
		return models.NewValidationError("catalog has invalid version %q: %v", c.Version, err)
	}
	if minVersion != "" {
		minVer, err := version.NewVersion(minVersion)
		if err != nil {
			return fmt.Errorf("invalid minimum catalog version %q: %w", minVersion, err)
		}
		if catVer.LessThan(minVer) {
			return models.NewValidationError("catalog version %s is below minimum required version %s",
				catVer.String(), minVer.String())
		}
	}

	incidents := make(map[string]bool, len(c.Incidents))
	seen := make(map[string]string)
	for i, inc := range c.Incidents {
		if strings.TrimSpace(inc.ID) == "" {
			return models.NewValidationError("incident %d: id is required", i)
		}
		if incidents[inc.ID] {
			return models.NewValidationError("duplicate incident id %q", inc.ID)
		}
		incidents[inc.ID] = true

		for j, st := range inc.Steps {
			step := resolveStep(inc, j, st)
			if strings.TrimSpace(step.ObservedFact) == "" {
				return models.NewValidationError("incident %q step %d: observed_fact is required", inc.ID, j+1)
			}
			if strings.TrimSpace(step.RootCause) == "" {
				return models.NewValidationError("incident %q step %d: root_cause is required on the step or the incident", inc.ID, j+1)
			}
			if owner, dup := seen[step.ID]; dup {
				return models.NewValidationError("duplicate step id %q in incidents %q and %q", step.ID, owner, inc.ID)
			}
			seen[step.ID] = inc.ID
		}
	}
	return nil
}

// Steps flattens the catalog into diagnostic steps in file order.
func (c *Catalog) Steps() []models.DiagnosticStep {
	var out []models.DiagnosticStep
	for _, inc := range c.Incidents {
		for j, st := range inc.Steps {
			out = append(out, resolveStep(inc, j, st))
		}
	}
	return out
}

func resolveStep(inc CatalogIncident, j int, st CatalogStep) models.DiagnosticStep {
	index := j + 1
	id := st.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", inc.ID, index)
	}
	rootCause := st.RootCause
	if rootCause == "" {
		rootCause = inc.RootCause
	}
	return models.DiagnosticStep{
		ID:           id,
		IncidentID:   inc.ID,
		StepIndex:    index,
		ObservedFact: strings.TrimSpace(st.ObservedFact),
		Method:       strings.TrimSpace(st.Method),
		Analysis:     strings.TrimSpace(st.Analysis),
		RootCause:    strings.TrimSpace(rootCause),
	}
}
