// Package adherence rolls dose outcomes up into daily statistics and
// streaks for patient and doctor reports.
package adherence

import (
	"math"

	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
)

// DefaultWindowDays is the trailing window shown on adherence reports.
const DefaultWindowDays = 7

// DayStat is one calendar day's dose outcome, in the clinic timezone.
//
// A day with no scheduled doses reports 0%, not "no data"; the chart shows
// the zero while the streak walk skips the day. Both behaviors are relied
// on downstream, keep the asymmetry.
type DayStat struct {
	Date       clinic.Date `json:"-"`
	Label      string      `json:"date"`
	Taken      int         `json:"taken"`
	Total      int         `json:"total"`
	Percentage int         `json:"percentage"`
}

// Summary is the windowed adherence report for one patient.
type Summary struct {
	Days           []DayStat `json:"days"`
	Streak         int       `json:"streak"`
	TotalDoses     int       `json:"total_doses"`
	TakenDoses     int       `json:"taken_doses"`
	MissedDoses    int       `json:"missed_doses"`
	SkippedDoses   int       `json:"skipped_doses"`
	OverallPercent int       `json:"overall_percent"`
}

// Summarize groups doses by civil day over the windowDays-day window ending
// at lastDay (inclusive, oldest first) and derives totals and the streak.
func Summarize(doses []dose.Dose, lastDay clinic.Date, windowDays int) Summary {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	byDay := make(map[clinic.Date]*DayStat, windowDays)
	first := lastDay.AddDays(-(windowDays - 1))
	for i := 0; i < windowDays; i++ {
		d := first.AddDays(i)
		byDay[d] = &DayStat{Date: d, Label: d.String()}
	}

	var s Summary
	for _, d := range doses {
		day := clinic.DateOf(d.ScheduledAt)
		stat, ok := byDay[day]
		if !ok {
			continue // outside the window
		}
		stat.Total++
		s.TotalDoses++
		switch d.Status {
		case dose.StatusTaken:
			stat.Taken++
			s.TakenDoses++
		case dose.StatusMissed:
			s.MissedDoses++
		case dose.StatusSkipped:
			s.SkippedDoses++
		}
	}

	s.Days = make([]DayStat, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		stat := byDay[first.AddDays(i)]
		stat.Percentage = percent(stat.Taken, stat.Total)
		s.Days = append(s.Days, *stat)
	}

	s.OverallPercent = percent(s.TakenDoses, s.TotalDoses)
	s.Streak = Streak(s.Days)
	return s
}

// Streak counts consecutive fully-adherent days walking backward from the
// newest day. Days with no scheduled doses are skipped without breaking
// the run; the first partial day with doses stops the count.
func Streak(days []DayStat) int {
	streak := 0
	for i := len(days) - 1; i >= 0; i-- {
		if days[i].Total == 0 {
			continue
		}
		if days[i].Percentage != 100 {
			break
		}
		streak++
	}
	return streak
}

func percent(taken, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(taken) / float64(total) * 100))
}
