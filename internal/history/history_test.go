package history

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)

func item(id int64, daysAgo int, score float64) Item {
	return Item{ID: id, Date: now.AddDate(0, 0, -daysAgo).Add(-time.Hour), Score: score, Completed: true}
}

func ids(items []Item) []int64 {
	out := []int64{}
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	t.Parallel()

	items := []Item{
		item(1, 0, 50),
		item(2, 1, 50),
		item(3, 6, 50),
		item(4, 8, 50),
		item(5, 27, 50),
		item(6, 40, 50),
	}
	tests := []struct {
		period Period
		want   []int64
	}{
		{Day, []int64{1}},
		{Week, []int64{1, 2, 3}},
		{Month, []int64{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(items, tt.period, now)))
		})
	}
}

func TestFilter_DayIsCalendarDay(t *testing.T) {
	t.Parallel()

	late := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	early := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	got := Filter([]Item{{ID: 1, Date: late}, {ID: 2, Date: early}}, Day, now)
	assert.Equal(t, []int64{2}, ids(got))
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Period{"": Week, "day": Day, "24h": Day, "Week": Week, "month": Month} {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePeriod("year")
	assert.Error(t, err)
}

func TestAverageAndBest(t *testing.T) {
	t.Parallel()

	assert.Zero(t, AverageScore(nil))
	assert.Zero(t, PersonalBest(nil))

	items := []Item{item(1, 0, 70), item(2, 0, 81), {ID: 3, Date: now, Score: 100}}
	assert.Equal(t, 75, AverageScore(items), "incomplete items are ignored and the mean is truncated")
	assert.Equal(t, 81.0, PersonalBest(items))
}

func TestCurrentStreak(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		items []Item
		want  int
	}{
		{"none", nil, 0},
		{"today only", []Item{item(1, 0, 1)}, 1},
		{"ends yesterday", []Item{item(1, 1, 1), item(2, 2, 1)}, 2},
		{"broken two days ago", []Item{item(1, 2, 1), item(2, 3, 1)}, 0},
		{"gap stops the count", []Item{item(1, 0, 1), item(2, 1, 1), item(3, 3, 1)}, 2},
		{"several per day", []Item{item(1, 0, 1), item(2, 0, 1), item(3, 1, 1)}, 2},
		{"incomplete does not count", []Item{{ID: 1, Date: now}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(tt.items, now))
		})
	}
}

func TestLongestStreak(t *testing.T) {
	t.Parallel()

	items := []Item{item(1, 0, 1), item(2, 5, 1), item(3, 6, 1), item(4, 7, 1), item(5, 20, 1)}
	assert.Equal(t, 3, LongestStreak(items, time.UTC))
	assert.Zero(t, LongestStreak(nil, time.UTC))
}

func TestBadges(t *testing.T) {
	t.Parallel()

	var items []Item
	for i := 0; i < 4; i++ {
		items = append(items, item(int64(i), i, 60))
	}
	items = append(items, item(9, 10, 92))

	got := map[string]Badge{}
	for _, b := range Badges(items, now) {
		got[b.ID] = b
	}
	require.Len(t, got, len(badgeRules))

	assert.True(t, got["first_session"].Earned)
	assert.True(t, got["streak_3"].Earned)
	assert.False(t, got["streak_7"].Earned)
	assert.InDelta(t, 4.0/7, got["streak_7"].Progress, 1e-9)
	assert.InDelta(t, 0.5, got["sessions_10"].Progress, 1e-9)
	assert.True(t, got["score_90"].Earned)
	assert.Equal(t, 1.0, got["score_90"].Progress, "progress is capped")

	for _, b := range Badges(nil, now) {
		assert.False(t, b.Earned, b.ID)
		assert.Zero(t, b.Progress, b.ID)
	}
}

func TestExtractNumber(t *testing.T) {
	t.Parallel()

	tests := map[string]float64{
		"1.16 meters/second": 1.16,
		"281.9 Newtons":      281.9,
		"300 Newtons":        300,
		"about 12":           12,
		"none":               0,
		"":                   0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractNumber(in), in)
	}
}

func TestSort(t *testing.T) {
	t.Parallel()

	items := []Item{
		{ID: 1, Date: now.Add(-3 * time.Hour), Velocity: "1.16 meters/second", Power: "200 Newtons"},
		{ID: 2, Date: now.Add(-1 * time.Hour), Power: "150 Newtons", KnockoutPotential: "410.5 Newtons"},
		{ID: 3, Date: now.Add(-2 * time.Hour), Velocity: "2.4 meters/second"},
	}

	assert.Equal(t, []int64{2, 3, 1}, ids(Sort(items, ByDate)))
	assert.Equal(t, []int64{3, 1}, ids(Sort(items, ByVelocity)), "items without velocity are dropped")
	assert.Equal(t, []int64{2, 1}, ids(Sort(items, ByPower)), "knockout potential wins over the power metric")
	assert.Equal(t, []int64{1, 2, 3}, ids(items), "input is not reordered")

	_, err := ParseSortBy("speed")
	assert.Error(t, err)
}

func TestGroupByRecency(t *testing.T) {
	t.Parallel()

	items := Sort([]Item{
		item(1, 0, 1),
		item(2, 1, 1),
		item(3, 2, 1),
		item(4, 7, 1),
		item(5, 8, 1),
		item(6, 30, 1),
		item(7, 31, 1),
		item(8, 0, 1),
	}, ByDate)

	got := GroupByRecency(items, now)
	type summary struct {
		Label string
		IDs   []int64
	}
	var sums []summary
	for _, g := range got {
		sums = append(sums, summary{g.Label, ids(g.Items)})
	}
	want := []summary{
		{GroupToday, []int64{1, 8}},
		{GroupYesterday, []int64{2}},
		{GroupThisWeek, []int64{3, 4}},
		{GroupThisMonth, []int64{5, 6}},
		{GroupEarlier, []int64{7}},
	}
	if diff := cmp.Diff(want, sums); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, GroupByRecency(nil, now))
}

func TestSummarise(t *testing.T) {
	t.Parallel()

	items := []Item{item(1, 0, 60), item(2, 1, 80), item(3, 20, 95)}
	got := Summarise(items, Week, now)
	want := Stats{Period: Week, Sessions: 2, AverageScore: 70, PersonalBest: 95, CurrentStreak: 2}
	assert.Equal(t, want, got)
}

func TestRenderCharts(t *testing.T) {
	t.Parallel()

	items := []Item{item(1, 2, 60), item(2, 1, 80), {ID: 3, Date: now, Score: 10}}

	html, err := RenderScoreChart(items, Week)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Jab Scores")
	assert.Contains(t, string(html), "sessions=2")

	png, err := RenderScorePNG(items, Week)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	empty, err := RenderScorePNG(nil, Day)
	require.NoError(t, err)
	assert.NotEmpty(t, empty)
}
