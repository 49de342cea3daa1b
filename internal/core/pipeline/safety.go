package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

const (
	StageSafety = "assess_safety"

	noConcernsTitle       = "No significant safety concerns identified"
	noConcernsDescription = "Based on the available information, no critical drug interactions or abnormal lab values were detected."
)

var numberPattern = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?|\.[0-9]+`)

// SafetyAssessor evaluates entities against SafetyRules. It makes no model calls.
type SafetyAssessor struct {
	rules SafetyRules
}

func NewSafetyAssessor(rules SafetyRules) *SafetyAssessor {
	return &SafetyAssessor{rules: rules.normalized()}
}

func (a *SafetyAssessor) Rules() SafetyRules {
	return a.rules
}

// Assess returns polypharmacy, interaction and abnormal lab alerts in that
// order, or a single low severity alert when nothing matched. Knowledge is
// accepted for parity with the other stages and is not evaluated.
func (a *SafetyAssessor) Assess(entities []domain.MedicalEntity, _ []string) []domain.SafetyAlert {
	medications := distinctMedications(entities)

	alerts := make([]domain.SafetyAlert, 0, 4)
	if len(medications) > a.rules.PolypharmacyThreshold {
		alerts = append(alerts, domain.SafetyAlert{
			Severity:       a.rules.PolypharmacySeverity,
			Title:          "Polypharmacy Alert",
			Description:    fmt.Sprintf("Patient is on %d medications. Review for potential interactions and side effects.", len(medications)),
			ActionRequired: true,
		})
	}
	alerts = append(alerts, a.interactionAlerts(medications)...)
	alerts = append(alerts, a.labAlerts(entities)...)

	if len(alerts) == 0 {
		alerts = append(alerts, domain.SafetyAlert{
			Severity:       domain.SeverityLow,
			Title:          noConcernsTitle,
			Description:    noConcernsDescription,
			ActionRequired: false,
		})
	}
	return alerts
}

func (a *SafetyAssessor) interactionAlerts(medications []string) []domain.SafetyAlert {
	var alerts []domain.SafetyAlert
	for _, rule := range a.rules.Interactions {
		first := matchingMedication(medications, rule.Drugs[0], "")
		if first == "" {
			continue
		}
		if matchingMedication(medications, rule.Drugs[1], first) == "" {
			continue
		}
		title := rule.Title
		if title == "" {
			title = fmt.Sprintf("Potential Drug Interaction: %s and %s", rule.Drugs[0], rule.Drugs[1])
		}
		description := rule.Description
		if description == "" {
			description = fmt.Sprintf("Concurrent use of %s and %s requires review.", rule.Drugs[0], rule.Drugs[1])
		}
		alerts = append(alerts, domain.SafetyAlert{
			Severity:       rule.Severity,
			Title:          title,
			Description:    description,
			ActionRequired: true,
		})
	}
	return alerts
}

func (a *SafetyAssessor) labAlerts(entities []domain.MedicalEntity) []domain.SafetyAlert {
	var alerts []domain.SafetyAlert
	for _, entity := range entities {
		if entity.EntityType != domain.EntityLabValue {
			continue
		}
		for _, rule := range a.rules.LabRanges {
			value, ok := labReading(entity, rule.Analyte)
			if !ok {
				continue
			}
			if alert, abnormal := rule.evaluate(value); abnormal {
				alerts = append(alerts, alert)
			}
			break
		}
	}
	return alerts
}

func (r LabRangeRule) evaluate(value float64) (domain.SafetyAlert, bool) {
	formatted := formatFloat(value)
	unit := strings.TrimSpace(r.Unit)
	analyte := capitalize(r.Analyte)

	var description string
	switch {
	case r.High != nil && value > *r.High && r.Low == nil:
		description = fmt.Sprintf("%s is %s %s, above the %s %s threshold.", analyte, formatted, unit, formatFloat(*r.High), unit)
	case (r.High != nil && value > *r.High) || (r.Low != nil && value < *r.Low):
		description = fmt.Sprintf("%s is %s %s, outside the %s range.", analyte, formatted, unit, r.rangeText())
	default:
		return domain.SafetyAlert{}, false
	}

	title := r.Title
	if title == "" {
		title = "Abnormal " + analyte + " Level"
	}
	return domain.SafetyAlert{
		Severity:       r.Severity,
		Title:          title,
		Description:    strings.Join(strings.Fields(description), " "),
		ActionRequired: true,
	}, true
}

func (r LabRangeRule) rangeText() string {
	switch {
	case r.Low != nil && r.High != nil:
		return strings.TrimSpace(fmt.Sprintf("%s-%s %s", formatFloat(*r.Low), formatFloat(*r.High), r.Unit))
	case r.Low != nil:
		return strings.TrimSpace(fmt.Sprintf(">= %s %s", formatFloat(*r.Low), r.Unit))
	default:
		return strings.TrimSpace(fmt.Sprintf("<= %s %s", formatFloat(*r.High), r.Unit))
	}
}

// labReading finds the analyte in the entity value or metadata.test_name and
// parses the first number following it, falling back to the leading number of
// the whole value ("220 mg/dL glucose").
func labReading(entity domain.MedicalEntity, analyte string) (float64, bool) {
	value := strings.ToLower(entity.EntityValue)
	idx := strings.Index(value, analyte)
	token := ""
	switch {
	case idx >= 0:
		token = numberPattern.FindString(value[idx+len(analyte):])
	case strings.Contains(metadataString(entity.Metadata, "test_name"), analyte):
	default:
		return 0, false
	}
	if token == "" {
		token = numberPattern.FindString(value)
	}
	if token == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// distinctMedications returns lowercased medication names in first-seen order.
func distinctMedications(entities []domain.MedicalEntity) []string {
	seen := make(map[string]struct{}, len(entities))
	out := make([]string, 0, len(entities))
	for _, entity := range entities {
		if entity.EntityType != domain.EntityMedication {
			continue
		}
		name := strings.Join(strings.Fields(strings.ToLower(entity.EntityValue)), " ")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// matchingMedication returns the first medication equal to drug or starting
// with drug followed by a space, skipping exclude.
func matchingMedication(medications []string, drug, exclude string) string {
	for _, name := range medications {
		if name == exclude {
			continue
		}
		if name == drug || strings.HasPrefix(name, drug+" ") {
			return name
		}
	}
	return ""
}

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	value, ok := meta[key].(string)
	if !ok {
		return ""
	}
	return strings.ToLower(value)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
