package reel

import "time"

// Engagement weights per event kind.
const (
	WeightView    = 1
	WeightLike    = 3
	WeightComment = 5
	WeightShare   = 7
)

const (
	DefaultTrendingThreshold = 50
	DefaultScoreWindow       = 24 * time.Hour
)

// Scoring decides which events count and where the trending line sits.
type Scoring struct {
	Window    time.Duration
	Threshold int
	// WindowComments applies Window to comments too. When false every comment
	// counts regardless of age.
	WindowComments bool
}

func DefaultScoring() Scoring {
	return Scoring{
		Window:         DefaultScoreWindow,
		Threshold:      DefaultTrendingThreshold,
		WindowComments: true,
	}
}

// Score sums the weighted events inside (asOf-Window, asOf]. Events stamped
// after asOf do not count.
func (s Scoring) Score(c *ContentItem, asOf time.Time) int {
	since := asOf.Add(-s.window())
	in := func(at time.Time) bool {
		return at.After(since) && !at.After(asOf)
	}

	score := 0
	for _, v := range c.Views {
		if in(v.At) {
			score += WeightView
		}
	}
	for _, l := range c.Likes {
		if in(l.At) {
			score += WeightLike
		}
	}
	for _, sh := range c.Shares {
		if in(sh.At) {
			score += WeightShare
		}
	}
	for _, cm := range c.Comments {
		if !s.WindowComments || in(cm.At) {
			score += WeightComment
		}
	}
	return score
}

// IsTrending is the pure trending predicate: score strictly above threshold.
func (s Scoring) IsTrending(score int) bool {
	return score > s.Threshold
}

func (s Scoring) window() time.Duration {
	if s.Window <= 0 {
		return DefaultScoreWindow
	}
	return s.Window
}
