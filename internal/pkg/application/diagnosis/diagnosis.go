package diagnosis

import (
	"strings"

	"github.com/aquasmart/pond-monitoring/pkg/types"
)

type Condition int

const (
	Healthy Condition = iota
	WhiteSpot
	BlackGill
	Coinfection
	Inconclusive
	Other
)

func (c Condition) String() string {
	switch c {
	case Healthy:
		return "Healthy"
	case WhiteSpot:
		return "White Spot Syndrome"
	case BlackGill:
		return "Black Gill Disease"
	case Coinfection:
		return "BG & WSSV Coinfection"
	case Inconclusive:
		return "Analysis Inconclusive"
	case Other:
		return "Other"
	}
	return "Other"
}

// ParseCondition maps the free text labels produced by the image classifier
// onto a Condition. Unknown labels map to Other.
func ParseCondition(label string) Condition {
	l := strings.ToLower(strings.TrimSpace(label))

	switch {
	case strings.HasPrefix(l, "healthy"):
		return Healthy
	case strings.Contains(l, "coinfection"), strings.Contains(l, "bg & wssv"):
		return Coinfection
	case strings.HasPrefix(l, "white spot"), l == "wssv":
		return WhiteSpot
	case strings.HasPrefix(l, "black gill"):
		return BlackGill
	case strings.Contains(l, "inconclusive"):
		return Inconclusive
	}

	return Other
}

type Level string

const (
	LevelLow       Level = "LOW"
	LevelModerate  Level = "MODERATE"
	LevelHigh      Level = "HIGH"
	LevelCritical  Level = "CRITICAL"
	LevelUncertain Level = "UNCERTAIN"
)

const StatusHealthy = "healthy"

type Assessment struct {
	Level    Level
	Severity string
	Note     string
}

func (a Assessment) ToType() types.RiskAssessment {
	return types.RiskAssessment{
		Level:    string(a.Level),
		Severity: a.Severity,
		Note:     a.Note,
	}
}

var notes = map[Level]string{
	LevelLow:       "No disease indicators detected. Continue routine monitoring of water quality.",
	LevelModerate:  "Early signs of disease. Increase observation frequency and verify water parameters.",
	LevelHigh:      "Disease indicators present. Apply the treatment plan and notify the farm manager.",
	LevelCritical:  "Severe outbreak risk. Isolate affected stock and begin emergency measures immediately.",
	LevelUncertain: "The classifier could not reach a conclusion. Capture a clearer image and review manually.",
}

func assess(level Level, severity string) Assessment {
	return Assessment{Level: level, Severity: severity, Note: notes[level]}
}

// Classify turns a classifier verdict into a risk level. Confidence is a
// percentage in the range 0 to 100.
func Classify(condition Condition, confidence float64, status string) Assessment {
	if condition == Inconclusive {
		return assess(LevelUncertain, "Review Required")
	}

	if strings.EqualFold(status, StatusHealthy) {
		if confidence >= 90 {
			return assess(LevelLow, "Stable")
		}
		return assess(LevelLow, "Monitor")
	}

	high := confidence >= 85

	switch condition {
	case Coinfection:
		return assess(LevelCritical, "Emergency")
	case WhiteSpot:
		if high {
			return assess(LevelCritical, "High")
		}
		return assess(LevelHigh, "High")
	case BlackGill:
		if high {
			return assess(LevelHigh, "Moderate-High")
		}
		return assess(LevelModerate, "Moderate")
	case Healthy, Other:
	}

	if high {
		return assess(LevelHigh, "High")
	}
	return assess(LevelModerate, "Moderate")
}

var (
	planWhiteSpot = []string{
		"Isolate affected stock immediately",
		"Stop water exchange with neighbouring ponds",
		"Disinfect nets, feeding trays and boots",
		"Keep water temperature stable and above 30 °C where possible",
		"Report the outbreak to the aquatic animal health authority",
	}
	planBlackGill = []string{
		"Remove organic sludge from the pond bottom",
		"Reduce the feeding rate by 30%",
		"Increase aeration and water exchange",
		"Check filtration and ammonia levels daily",
	}
	planCoinfection = []string{
		"Declare an emergency and quarantine the pond",
		"Stop feeding for 24 hours",
		"Consider an emergency harvest of unaffected stock",
		"Disinfect and dry the pond before restocking",
		"Consult a veterinary specialist",
	}
	planDefault = []string{
		"Maintain the current feeding schedule",
		"Keep dissolved oxygen above 5 mg/L",
		"Continue weekly health scans",
	}
)

func Plan(condition Condition) []string {
	var p []string

	switch condition {
	case WhiteSpot:
		p = planWhiteSpot
	case BlackGill:
		p = planBlackGill
	case Coinfection:
		p = planCoinfection
	case Healthy, Inconclusive, Other:
		p = planDefault
	}

	return append([]string(nil), p...)
}

func Behaviors(condition Condition) []string {
	switch condition {
	case WhiteSpot:
		return []string{"Lethargy", "Swimming near surface", "Reddish discoloration"}
	case BlackGill:
		return []string{"Respiratory distress", "Loss of appetite", "Gill fouling"}
	case Healthy, Coinfection, Inconclusive, Other:
	}
	return []string{"Normal activity", "Responsive to stimuli", "Clear shell"}
}

// Advice is used when the classifier response lacks an advice text.
func Advice(condition Condition) string {
	switch condition {
	case Healthy:
		return "Specimen appears healthy. Maintain water quality."
	case WhiteSpot:
		return "CRITICAL: Isolate affected stock immediately. Check pH and temperature stability."
	case BlackGill:
		return "WARNING: High organic load detected. Clean pond bottom and check filtration."
	case Coinfection, Inconclusive, Other:
	}
	return "Consult a specialist."
}
