package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

// SafetyRules is the rule set evaluated by SafetyAssessor.
type SafetyRules struct {
	PolypharmacyThreshold int               `yaml:"polypharmacy_threshold"`
	PolypharmacySeverity  domain.Severity   `yaml:"polypharmacy_severity"`
	Interactions          []InteractionRule `yaml:"interactions"`
	LabRanges             []LabRangeRule    `yaml:"lab_ranges"`
}

type InteractionRule struct {
	Drugs       []string        `yaml:"drugs"`
	Severity    domain.Severity `yaml:"severity"`
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
}

// LabRangeRule flags values strictly below Low or strictly above High. A nil
// bound is not checked.
type LabRangeRule struct {
	Analyte  string          `yaml:"analyte"`
	Unit     string          `yaml:"unit"`
	Low      *float64        `yaml:"low,omitempty"`
	High     *float64        `yaml:"high,omitempty"`
	Severity domain.Severity `yaml:"severity"`
	Title    string          `yaml:"title"`
}

func DefaultSafetyRules() SafetyRules {
	return SafetyRules{
		PolypharmacyThreshold: 4,
		PolypharmacySeverity:  domain.SeverityModerate,
		Interactions: []InteractionRule{
			{
				Drugs:       []string{"metformin", "insulin"},
				Severity:    domain.SeverityMajor,
				Title:       "Potential Drug Interaction: Metformin and Insulin",
				Description: "Concurrent use of Metformin and Insulin can increase the risk of hypoglycemia. Monitor blood glucose closely.",
			},
			{
				Drugs:       []string{"lisinopril", "potassium"},
				Severity:    domain.SeverityModerate,
				Title:       "Potential Drug Interaction: Lisinopril and Potassium",
				Description: "Lisinopril combined with potassium supplements can cause hyperkalemia. Monitor serum potassium.",
			},
		},
		LabRanges: []LabRangeRule{
			{
				Analyte:  "glucose",
				Unit:     "mg/dL",
				High:     floatPtr(180),
				Severity: domain.SeverityHigh,
				Title:    "High Blood Glucose Level",
			},
			{
				Analyte:  "potassium",
				Unit:     "mmol/L",
				Low:      floatPtr(3.5),
				High:     floatPtr(5.2),
				Severity: domain.SeverityHigh,
				Title:    "Abnormal Potassium Level",
			},
		},
	}
}

// LoadSafetyRules reads a YAML rule file. An empty path returns the defaults;
// keys missing from the file keep their default values.
func LoadSafetyRules(path string) (SafetyRules, error) {
	rules := DefaultSafetyRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return SafetyRules{}, fmt.Errorf("read safety rules: %w", err)
	}
	return ParseSafetyRules(data)
}

func ParseSafetyRules(data []byte) (SafetyRules, error) {
	rules := DefaultSafetyRules()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return SafetyRules{}, fmt.Errorf("parse safety rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return SafetyRules{}, err
	}
	return rules.normalized(), nil
}

func (r SafetyRules) Validate() error {
	if r.PolypharmacyThreshold < 1 {
		return domain.WrapError(domain.ErrInvalidInput, "validate safety rules", fmt.Errorf("polypharmacy_threshold must be positive"))
	}
	if !r.PolypharmacySeverity.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "validate safety rules", fmt.Errorf("unknown severity %q", r.PolypharmacySeverity))
	}
	for i, rule := range r.Interactions {
		if len(rule.Drugs) != 2 || strings.TrimSpace(rule.Drugs[0]) == "" || strings.TrimSpace(rule.Drugs[1]) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate safety rules", fmt.Errorf("interactions[%d] needs exactly two drugs", i))
		}
		if !rule.Severity.Valid() {
			return domain.WrapError(domain.ErrInvalidInput, "validate safety rules", fmt.Errorf("interactions[%d]: unknown severity %q", i, rule.Severity))
		}
	}
	for i, rule := range r.LabRanges {
		if strings.TrimSpace(rule.Analyte) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate safety rules", fmt.Errorf("lab_ranges[%d] has no analyte", i))
		}
		if rule.Low == nil && rule.High == nil {
			return domain.WrapError(domain.ErrInvalidInput, "validate safety rules", fmt.Errorf("lab_ranges[%d] has no bounds", i))
		}
		if rule.Low != nil && rule.High != nil && *rule.Low > *rule.High {
			return domain.WrapError(domain.ErrInvalidInput, "validate safety rules", fmt.Errorf("lab_ranges[%d]: low above high", i))
		}
		if !rule.Severity.Valid() {
			return domain.WrapError(domain.ErrInvalidInput, "validate safety rules", fmt.Errorf("lab_ranges[%d]: unknown severity %q", i, rule.Severity))
		}
	}
	return nil
}

// YAML renders the effective rule set.
func (r SafetyRules) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

func (r SafetyRules) normalized() SafetyRules {
	out := r
	// Pairs are the only interaction shape; anything else is dropped.
	out.Interactions = make([]InteractionRule, 0, len(r.Interactions))
	for _, rule := range r.Interactions {
		if len(rule.Drugs) != 2 {
			continue
		}
		rule.Drugs = []string{
			strings.ToLower(strings.TrimSpace(rule.Drugs[0])),
			strings.ToLower(strings.TrimSpace(rule.Drugs[1])),
		}
		out.Interactions = append(out.Interactions, rule)
	}
	out.LabRanges = make([]LabRangeRule, len(r.LabRanges))
	for i, rule := range r.LabRanges {
		rule.Analyte = strings.ToLower(strings.TrimSpace(rule.Analyte))
		out.LabRanges[i] = rule
	}
	return out
}

func floatPtr(v float64) *float64 {
	return &v
}
