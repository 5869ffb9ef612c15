// Package insight turns a rolling window of completion facts into the
// statistics consumed by the suggestion generator: an overall
// completion rate and the weakest practices ranked by per-norm rate.
package insight

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"planoflife/api/internal/dates"
)

// ErrNoData means the window tracked no norms, so no rate is defined
// and the caller should skip suggestion generation.
var ErrNoData = errors.New("no tracked norms in window")

// weakestLimit caps how many low-rate norms are surfaced.
const weakestLimit = 3

type DayNorm struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// Day is one calendar day of the window with every tracked norm's
// completed flag.
type Day struct {
	Date  string    `json:"date"`
	Norms []DayNorm `json:"norms"`
}

type NormRate struct {
	Name        string  `json:"name"`
	RatePercent float64 `json:"ratePercent"`
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
}

type Stats struct {
	WindowDays         int        `json:"windowDays"`
	TotalCompleted     int        `json:"totalCompleted"`
	TotalPossible      int        `json:"totalPossible"`
	OverallRatePercent float64    `json:"overallRatePercent"`
	Weakest            []NormRate `json:"weakestNorms"`
}

// BuildWindow assembles the per-day breakdown for the windowDays days
// ending at endDate inclusive, oldest first. trackedNames fixes both
// the norm set and the tie-break order of the ranking.
func BuildWindow(trackedNames []string, completedByDay map[string]map[string]bool, endDate time.Time, windowDays int) []Day {
	window := make([]Day, 0, windowDays)
	for i := windowDays - 1; i >= 0; i-- {
		dayKey := dates.Format(dates.AddDays(endDate, -i))
		completed := completedByDay[dayKey]
		norms := make([]DayNorm, 0, len(trackedNames))
		for _, name := range trackedNames {
			norms = append(norms, DayNorm{Name: name, Completed: completed[name]})
		}
		window = append(window, Day{Date: dayKey, Norms: norms})
	}
	return window
}

// Compute aggregates a window into Stats. Per-norm rates divide by the
// number of days the norm appears; ties keep the window's norm order.
func Compute(window []Day) (Stats, error) {
	totalCompleted := 0
	totalPossible := 0
	order := make([]string, 0)
	completedByName := make(map[string]int)
	totalByName := make(map[string]int)

	for _, day := range window {
		for _, norm := range day.Norms {
			if _, seen := totalByName[norm.Name]; !seen {
				order = append(order, norm.Name)
			}
			totalByName[norm.Name]++
			totalPossible++
			if norm.Completed {
				completedByName[norm.Name]++
				totalCompleted++
			}
		}
	}

	if totalPossible == 0 {
		return Stats{}, ErrNoData
	}

	rates := make([]NormRate, 0, len(order))
	for _, name := range order {
		rates = append(rates, NormRate{
			Name:        name,
			RatePercent: Round1(100 * float64(completedByName[name]) / float64(totalByName[name])),
			Completed:   completedByName[name],
			Total:       totalByName[name],
		})
	}
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].RatePercent < rates[j].RatePercent
	})
	if len(rates) > weakestLimit {
		rates = rates[:weakestLimit]
	}

	return Stats{
		WindowDays:         len(window),
		TotalCompleted:     totalCompleted,
		TotalPossible:      totalPossible,
		OverallRatePercent: Round1(100 * float64(totalCompleted) / float64(totalPossible)),
		Weakest:            rates,
	}, nil
}

// Round1 rounds half-up to one decimal place.
func Round1(value float64) float64 {
	return math.Floor(value*10+0.5) / 10
}

// OverallRateString renders the overall rate with one decimal, the
// format the suggestion response exposes.
func (s Stats) OverallRateString() string {
	return strconv.FormatFloat(s.OverallRatePercent, 'f', 1, 64)
}

// WeakestSummary renders the weakest norms as "Name (12.5%), ...".
func (s Stats) WeakestSummary() string {
	parts := make([]string, 0, len(s.Weakest))
	for _, rate := range s.Weakest {
		parts = append(parts, fmt.Sprintf("%s (%s%%)", rate.Name, strconv.FormatFloat(rate.RatePercent, 'f', 1, 64)))
	}
	return strings.Join(parts, ", ")
}
