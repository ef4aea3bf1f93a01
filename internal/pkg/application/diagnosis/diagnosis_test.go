package diagnosis

import (
	"testing"

	"github.com/matryer/is"
)

func TestInconclusiveIsAlwaysUncertain(t *testing.T) {
	is := is.New(t)

	for _, status := range []string{"healthy", "infected", ""} {
		for _, conf := range []float64{0, 50, 85, 90, 100} {
			a := Classify(Inconclusive, conf, status)
			is.Equal(a.Level, LevelUncertain)
			is.Equal(a.Severity, "Review Required")
		}
	}
}

func TestCoinfectionIgnoresConfidence(t *testing.T) {
	is := is.New(t)

	a := Classify(Coinfection, 10, "unhealthy")
	is.Equal(a.Level, LevelCritical)
	is.Equal(a.Severity, "Emergency")
}

func TestWhiteSpotBoundaryAt85(t *testing.T) {
	is := is.New(t)

	is.Equal(Classify(WhiteSpot, 85, "infected").Level, LevelCritical)
	is.Equal(Classify(WhiteSpot, 84.99, "infected").Level, LevelHigh)
}

func TestDecisionTable(t *testing.T) {
	is := is.New(t)

	cases := []struct {
		condition  Condition
		status     string
		confidence float64
		level      Level
		severity   string
	}{
		{Healthy, "healthy", 95, LevelLow, "Stable"},
		{Healthy, "healthy", 90, LevelLow, "Stable"},
		{Healthy, "healthy", 89, LevelLow, "Monitor"},
		{WhiteSpot, "healthy", 99, LevelLow, "Stable"},
		{Coinfection, "infected", 99, LevelCritical, "Emergency"},
		{WhiteSpot, "infected", 92, LevelCritical, "High"},
		{WhiteSpot, "infected", 60, LevelHigh, "High"},
		{BlackGill, "infected", 85, LevelHigh, "Moderate-High"},
		{BlackGill, "infected", 70, LevelModerate, "Moderate"},
		{Other, "infected", 88, LevelHigh, "High"},
		{Other, "infected", 40, LevelModerate, "Moderate"},
		{Healthy, "infected", 40, LevelModerate, "Moderate"},
	}

	for _, c := range cases {
		a := Classify(c.condition, c.confidence, c.status)
		is.Equal(a.Level, c.level)
		is.Equal(a.Severity, c.severity)
		is.True(a.Note != "")
	}
}

func TestParseCondition(t *testing.T) {
	is := is.New(t)

	is.Equal(ParseCondition("White Spot Syndrome"), WhiteSpot)
	is.Equal(ParseCondition("White Spot"), WhiteSpot)
	is.Equal(ParseCondition("Black Gill Disease"), BlackGill)
	is.Equal(ParseCondition("Black Gill"), BlackGill)
	is.Equal(ParseCondition("BG & WSSV Coinfection"), Coinfection)
	is.Equal(ParseCondition("Analysis Inconclusive"), Inconclusive)
	is.Equal(ParseCondition("Healthy (Simulated)"), Healthy)
	is.Equal(ParseCondition("Shell Necrosis"), Other)
	is.Equal(ParseCondition(""), Other)
	is.Equal(ParseCondition("  "), Other)
}

func TestPlansAreKeyedByCondition(t *testing.T) {
	is := is.New(t)

	is.Equal(Plan(Healthy), Plan(Other))
	is.True(Plan(WhiteSpot)[0] != Plan(BlackGill)[0])
	is.True(Plan(Coinfection)[0] != Plan(WhiteSpot)[0])

	p := Plan(Healthy)
	p[0] = "changed"
	is.True(Plan(Healthy)[0] != "changed")
}

func TestBehaviors(t *testing.T) {
	is := is.New(t)

	is.Equal(Behaviors(WhiteSpot), []string{"Lethargy", "Swimming near surface", "Reddish discoloration"})
	is.Equal(Behaviors(BlackGill), []string{"Respiratory distress", "Loss of appetite", "Gill fouling"})
	is.Equal(Behaviors(Healthy), []string{"Normal activity", "Responsive to stimuli", "Clear shell"})
}

func TestMissingLabelIsRatedOnStatus(t *testing.T) {
	is := is.New(t)

	is.Equal(Classify(ParseCondition(""), 92, "infected").Level, LevelHigh)
	is.True(Classify(ParseCondition(""), 40, "infected").Level != LevelUncertain)
}
