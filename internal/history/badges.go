package history

import (
	"time"
)

// Badge is an achievement and how close the boxer is to it.
type Badge struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Earned      bool    `json:"earned"`
	Progress    float64 `json:"progress"`
}

type badgeRule struct {
	id, title, description string
	target                 float64
	measure                func(p badgeProgress) float64
}

type badgeProgress struct {
	sessions int
	longest  int
	best     float64
}

var badgeRules = []badgeRule{
	{"first_session", "First Jab", "Complete your first recorded jab", 1,
		func(p badgeProgress) float64 { return float64(p.sessions) }},
	{"streak_3", "Warming Up", "Train three days in a row", 3,
		func(p badgeProgress) float64 { return float64(p.longest) }},
	{"streak_7", "Week Warrior", "Train seven days in a row", 7,
		func(p badgeProgress) float64 { return float64(p.longest) }},
	{"streak_30", "Iron Habit", "Train thirty days in a row", 30,
		func(p badgeProgress) float64 { return float64(p.longest) }},
	{"sessions_10", "Ten Rounds", "Complete ten recorded jabs", 10,
		func(p badgeProgress) float64 { return float64(p.sessions) }},
	{"sessions_50", "Fifty Rounds", "Complete fifty recorded jabs", 50,
		func(p badgeProgress) float64 { return float64(p.sessions) }},
	{"score_90", "Sharp Shooter", "Score 90 or more on a jab", 90,
		func(p badgeProgress) float64 { return p.best }},
}

// Badges evaluates every badge against the completed items. Streak badges
// use the longest streak ever so they stay earned once reached.
func Badges(items []Item, now time.Time) []Badge {
	p := badgeProgress{
		sessions: len(completedScores(items)),
		longest:  LongestStreak(items, now.Location()),
		best:     PersonalBest(items),
	}
	out := make([]Badge, 0, len(badgeRules))
	for _, r := range badgeRules {
		frac := min(r.measure(p)/r.target, 1)
		out = append(out, Badge{
			ID:          r.id,
			Title:       r.title,
			Description: r.description,
			Earned:      frac >= 1,
			Progress:    frac,
		})
	}
	return out
}
