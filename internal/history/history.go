// Package history computes training analytics over scored jab feedback:
// period filters, averages, streaks, badges, sorting and recency groups.
package history

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Item is one scored capture as the analytics see it.
type Item struct {
	ID                int64     `json:"id"`
	SessionID         string    `json:"session_id"`
	Date              time.Time `json:"date"`
	Score             float64   `json:"score"`
	Velocity          string    `json:"velocity,omitempty"`
	Power             string    `json:"power,omitempty"`
	KnockoutPotential string    `json:"knockout_potential,omitempty"`
	Completed         bool      `json:"completed"`
}

// Period selects a look-back window.
type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
)

// ParsePeriod accepts day (or 24h), week and month. Empty means week.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "week":
		return Week, nil
	case "day", "24h":
		return Day, nil
	case "month":
		return Month, nil
	}
	return "", fmt.Errorf("unknown period %q (want day, week or month)", s)
}

// startOfDay is midnight of t's calendar day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// daysBetween counts calendar days from a to b in loc.
func daysBetween(a, b time.Time, loc *time.Location) int {
	h := startOfDay(b, loc).Sub(startOfDay(a, loc)).Hours()
	return int(math.Round(h / 24))
}

// Filter keeps the items inside period, measured back from now. Day means
// the same calendar day as now; week the last seven days; month the last
// calendar month.
func Filter(items []Item, period Period, now time.Time) []Item {
	loc := now.Location()
	out := make([]Item, 0, len(items))
	for _, it := range items {
		var keep bool
		switch period {
		case Day:
			keep = daysBetween(it.Date, now, loc) == 0
		case Month:
			keep = !it.Date.Before(now.AddDate(0, -1, 0))
		default:
			keep = !it.Date.Before(now.AddDate(0, 0, -7))
		}
		if keep {
			out = append(out, it)
		}
	}
	return out
}

func completedScores(items []Item) []float64 {
	var scores []float64
	for _, it := range items {
		if it.Completed {
			scores = append(scores, it.Score)
		}
	}
	return scores
}

// AverageScore is the truncated mean score of completed items, or 0.
func AverageScore(items []Item) int {
	scores := completedScores(items)
	if len(scores) == 0 {
		return 0
	}
	return int(stat.Mean(scores, nil))
}

// PersonalBest is the highest completed score, or 0.
func PersonalBest(items []Item) float64 {
	scores := completedScores(items)
	if len(scores) == 0 {
		return 0
	}
	return slices.Max(scores)
}

// activeDays returns the distinct calendar days with a completed item,
// newest first.
func activeDays(items []Item, loc *time.Location) []time.Time {
	seen := map[time.Time]bool{}
	var days []time.Time
	for _, it := range items {
		if !it.Completed {
			continue
		}
		d := startOfDay(it.Date, loc)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	slices.SortFunc(days, func(a, b time.Time) int { return b.Compare(a) })
	return days
}

// CurrentStreak counts consecutive calendar days with at least one
// completed item, ending today or yesterday. Anything older is a broken
// streak and yields 0.
func CurrentStreak(items []Item, now time.Time) int {
	loc := now.Location()
	days := activeDays(items, loc)
	if len(days) == 0 {
		return 0
	}
	// future-dated items do not extend the streak
	for len(days) > 0 && daysBetween(days[0], now, loc) < 0 {
		days = days[1:]
	}
	if len(days) == 0 || daysBetween(days[0], now, loc) > 1 {
		return 0
	}
	streak := 1
	for i := 1; i < len(days); i++ {
		if daysBetween(days[i], days[i-1], loc) != 1 {
			break
		}
		streak++
	}
	return streak
}

// LongestStreak is the longest run of consecutive active days ever.
func LongestStreak(items []Item, loc *time.Location) int {
	days := activeDays(items, loc)
	if len(days) == 0 {
		return 0
	}
	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if daysBetween(days[i], days[i-1], loc) == 1 {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	return longest
}

// SortBy orders feedback for the history list.
type SortBy string

const (
	ByDate     SortBy = "date"
	ByVelocity SortBy = "velocity"
	ByPower    SortBy = "power"
)

// ParseSortBy accepts date, velocity and power. Empty means date.
func ParseSortBy(s string) (SortBy, error) {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ByDate:
		return ByDate, nil
	case ByVelocity:
		return ByVelocity, nil
	case ByPower:
		return ByPower, nil
	}
	return "", fmt.Errorf("unknown sort %q (want date, velocity or power)", s)
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ExtractNumber reads the leading decimal number out of strings such as
// "1.16 meters/second" or "281.9 Newtons". It returns 0 when there is none.
func ExtractNumber(s string) float64 {
	m := numberRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// PowerValue is the knockout potential when present, else the power metric.
func (it Item) PowerValue() string {
	if it.KnockoutPotential != "" {
		return it.KnockoutPotential
	}
	return it.Power
}

// Sort returns a sorted copy of items, largest first. Velocity and power
// sorts drop items that carry no value for that metric.
func Sort(items []Item, by SortBy) []Item {
	var out []Item
	var key func(Item) float64
	switch by {
	case ByVelocity:
		for _, it := range items {
			if it.Velocity != "" {
				out = append(out, it)
			}
		}
		key = func(it Item) float64 { return ExtractNumber(it.Velocity) }
	case ByPower:
		for _, it := range items {
			if it.PowerValue() != "" {
				out = append(out, it)
			}
		}
		key = func(it Item) float64 { return ExtractNumber(it.PowerValue()) }
	default:
		out = slices.Clone(items)
		slices.SortStableFunc(out, func(a, b Item) int { return b.Date.Compare(a.Date) })
		return out
	}
	slices.SortStableFunc(out, func(a, b Item) int {
		ka, kb := key(a), key(b)
		switch {
		case ka > kb:
			return -1
		case ka < kb:
			return 1
		}
		return 0
	})
	return out
}

// Recency group labels, in display order.
const (
	GroupToday     = "Today"
	GroupYesterday = "Yesterday"
	GroupThisWeek  = "This Week"
	GroupThisMonth = "This Month"
	GroupEarlier   = "Earlier"
)

var groupOrder = []string{GroupToday, GroupYesterday, GroupThisWeek, GroupThisMonth, GroupEarlier}

// Group is a labelled run of items.
type Group struct {
	Label string `json:"label"`
	Items []Item `json:"items"`
}

// groupLabel buckets an item by calendar days before now.
func groupLabel(d time.Time, now time.Time) string {
	switch days := daysBetween(d, now, now.Location()); {
	case days == 0:
		return GroupToday
	case days == 1:
		return GroupYesterday
	case days >= 2 && days <= 7:
		return GroupThisWeek
	case days >= 8 && days <= 30:
		return GroupThisMonth
	}
	return GroupEarlier
}

// GroupByRecency buckets items by how many calendar days ago they happened.
// Item order inside a group is preserved; empty groups are omitted.
func GroupByRecency(items []Item, now time.Time) []Group {
	buckets := map[string][]Item{}
	for _, it := range items {
		l := groupLabel(it.Date, now)
		buckets[l] = append(buckets[l], it)
	}
	var out []Group
	for _, l := range groupOrder {
		if len(buckets[l]) > 0 {
			out = append(out, Group{Label: l, Items: buckets[l]})
		}
	}
	return out
}

// Stats summarises one period.
type Stats struct {
	Period        Period  `json:"period"`
	Sessions      int     `json:"sessions"`
	AverageScore  int     `json:"average_score"`
	PersonalBest  float64 `json:"personal_best"`
	CurrentStreak int     `json:"current_streak"`
}

// Summarise computes Stats for period. The streak and personal best look at
// all items; the count and average only at those inside the period.
func Summarise(items []Item, period Period, now time.Time) Stats {
	in := Filter(items, period, now)
	return Stats{
		Period:        period,
		Sessions:      len(in),
		AverageScore:  AverageScore(in),
		PersonalBest:  PersonalBest(items),
		CurrentStreak: CurrentStreak(items, now),
	}
}
