// Package risk implements the deterministic adherence risk policy.
// Weights and thresholds are fixed policy constants; downstream dashboards
// depend on exact values, so they are never derived or smoothed.
package risk

// Level is the traffic-light risk tier.
type Level string

const (
	LevelRed    Level = "RED"
	LevelYellow Level = "YELLOW"
	LevelGreen  Level = "GREEN"
)

// Policy constants.
const (
	weightMissed   = 10
	weightCritical = 25
	weightPolyRx   = 10
	weightElderly  = 10

	polyRxThreshold  = 5
	elderlyThreshold = 60

	redThreshold    = 40
	yellowThreshold = 20
)

// Input aggregates a patient's recent dose outcomes.
type Input struct {
	// MissedLast48h counts doses marked missed in the trailing 48 hours.
	MissedLast48h int
	// CriticalMissed counts those whose medication carries the critical flag.
	CriticalMissed int
	// MedsCount is the number of distinct medications, not doses.
	MedsCount int
	// Age in whole years.
	Age int
}

// Score computes the integer risk score.
func Score(in Input) int {
	score := in.MissedLast48h * weightMissed
	score += in.CriticalMissed * weightCritical
	if in.MedsCount >= polyRxThreshold {
		score += weightPolyRx
	}
	if in.Age >= elderlyThreshold {
		score += weightElderly
	}
	return score
}

// LevelFor maps a score to its tier. Boundaries are inclusive.
func LevelFor(score int) Level {
	switch {
	case score >= redThreshold:
		return LevelRed
	case score >= yellowThreshold:
		return LevelYellow
	default:
		return LevelGreen
	}
}

// Assessment pairs a score with its tier and the inputs that produced it.
type Assessment struct {
	Score int   `json:"score"`
	Level Level `json:"level"`
	Input Input `json:"input"`
}

// Assess scores the input and maps it in one step.
func Assess(in Input) Assessment {
	s := Score(in)
	return Assessment{Score: s, Level: LevelFor(s), Input: in}
}
