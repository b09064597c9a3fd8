package risk

import "testing"

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want int
	}{
		{"zero", Input{}, 0},
		{"one missed", Input{MissedLast48h: 1}, 10},
		{"four missed hits red boundary", Input{MissedLast48h: 4}, 40},
		{"critical missed", Input{CriticalMissed: 1}, 25},
		{"polypharmacy boundary", Input{MedsCount: 5}, 10},
		{"below polypharmacy", Input{MedsCount: 4}, 0},
		{"elderly boundary", Input{Age: 60}, 10},
		{"below elderly", Input{Age: 59}, 0},
		{"combined", Input{MissedLast48h: 2, CriticalMissed: 1, MedsCount: 6, Age: 70}, 65},
	}
	for _, tt := range tests {
		if got := Score(tt.in); got != tt.want {
			t.Errorf("%s: Score = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestLevelBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  Level
	}{
		{0, LevelGreen},
		{19, LevelGreen},
		{20, LevelYellow},
		{39, LevelYellow},
		{40, LevelRed},
		{100, LevelRed},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestScoreMonotonicInEachInput(t *testing.T) {
	base := Input{MissedLast48h: 1, CriticalMissed: 1, MedsCount: 3, Age: 40}
	baseScore := Score(base)

	bump := []struct {
		name string
		in   Input
	}{
		{"missed", Input{2, 1, 3, 40}},
		{"critical", Input{1, 2, 3, 40}},
		{"meds", Input{1, 1, 8, 40}},
		{"age", Input{1, 1, 3, 80}},
	}
	for _, tt := range bump {
		if got := Score(tt.in); got < baseScore {
			t.Errorf("increasing %s decreased score: %d < %d", tt.name, got, baseScore)
		}
	}
}

func TestAssess(t *testing.T) {
	a := Assess(Input{MissedLast48h: 4})
	if a.Score != 40 || a.Level != LevelRed {
		t.Errorf("Assess(4 missed) = %+v, want score 40 RED", a)
	}
	if a := Assess(Input{}); a.Level != LevelGreen {
		t.Errorf("Assess(zero) level = %s, want GREEN", a.Level)
	}
}
