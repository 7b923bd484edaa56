package trust

import (
	"testing"

	"github.com/civicwatch/vigil/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyConfirmIncrementsAndClamps(t *testing.T) {
	e := NewEngine(DefaultConfig())

	s := State{TrustScore: 0, Level: models.LevelUnverified}
	for i := 0; i < 6; i++ {
		s = e.Apply(VoteConfirm, s)
	}

	assert.Equal(t, 30, s.TrustScore)
	assert.Equal(t, 6, s.ConfirmationCount)
	assert.Equal(t, models.LevelPending, s.Level)

	// Four more confirms: 50 points, still pending until the verified threshold.
	for i := 0; i < 4; i++ {
		s = e.Apply(VoteConfirm, s)
	}
	assert.Equal(t, 50, s.TrustScore)
	assert.Equal(t, 10, s.ConfirmationCount)
	assert.Equal(t, models.LevelPending, s.Level)

	// Push far past the cap.
	for i := 0; i < 30; i++ {
		s = e.Apply(VoteConfirm, s)
	}
	assert.Equal(t, MaxScore, s.TrustScore)
	assert.Equal(t, models.LevelConfirmed, s.Level)
}

func TestApplyDisputeClampsAtZero(t *testing.T) {
	e := NewEngine(DefaultConfig())

	s := State{TrustScore: 20, Level: models.LevelUnverified}

	s = e.Apply(VoteDispute, s)
	assert.Equal(t, 10, s.TrustScore)
	assert.False(t, e.FlagForReview(s))

	s = e.Apply(VoteDispute, s)
	assert.Equal(t, 0, s.TrustScore)
	assert.False(t, e.FlagForReview(s), "two disputes should not flag yet")

	s = e.Apply(VoteDispute, s)
	assert.Equal(t, 0, s.TrustScore)
	assert.Equal(t, 3, s.DisputeCount)
	assert.Equal(t, 0, s.ConfirmationCount)
	assert.True(t, e.FlagForReview(s), "third dispute at score zero flags for review")
}

func TestScoreStaysBounded(t *testing.T) {
	e := NewEngine(DefaultConfig())

	s := State{}
	kinds := []VoteKind{
		VoteConfirm, VoteDispute, VoteDispute, VoteDispute, VoteConfirm,
		VoteConfirm, VoteConfirm, VoteDispute, VoteConfirm, VoteDispute,
	}
	for _, k := range kinds {
		s = e.Apply(k, s)
		assert.GreaterOrEqual(t, s.TrustScore, MinScore)
		assert.LessOrEqual(t, s.TrustScore, MaxScore)
		assert.GreaterOrEqual(t, s.ConfirmationCount, 0)
		assert.GreaterOrEqual(t, s.DisputeCount, 0)
	}
}

func TestLevelThresholds(t *testing.T) {
	e := NewEngine(DefaultConfig())

	tests := []struct {
		score    int
		confirms int
		want     models.VerificationLevel
	}{
		{0, 0, models.LevelUnverified},
		{39, 10, models.LevelUnverified},
		{40, 0, models.LevelPending},
		{69, 0, models.LevelPending},
		{70, 0, models.LevelVerified},
		{84, 20, models.LevelVerified},
		{85, 4, models.LevelVerified}, // score alone is not enough
		{85, 5, models.LevelConfirmed},
		{100, 20, models.LevelConfirmed},
	}

	for _, tt := range tests {
		got := e.Level(tt.score, tt.confirms)
		assert.Equalf(t, tt.want, got, "Level(%d, %d)", tt.score, tt.confirms)
	}
}

func TestLevelIsDeterministic(t *testing.T) {
	e := NewEngine(DefaultConfig())

	first := e.Level(72, 3)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, e.Level(72, 3))
	}
}

func TestLevelMonotonicInScore(t *testing.T) {
	e := NewEngine(DefaultConfig())

	// For any fixed confirmation count, a higher score never yields a lower level.
	for _, confirms := range []int{0, 1, 5, 10} {
		prev := e.Level(0, confirms)
		for score := 1; score <= MaxScore; score++ {
			cur := e.Level(score, confirms)
			assert.GreaterOrEqualf(t, cur.Rank(), prev.Rank(),
				"level dropped between score %d and %d at %d confirms", score-1, score, confirms)
			prev = cur
		}
	}
}

func TestApplyPanicsOnUnknownKind(t *testing.T) {
	e := NewEngine(DefaultConfig())
	assert.Panics(t, func() {
		e.Apply(VoteKind("verify"), State{})
	})
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.ConfirmDelta = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.DisputeDelta = -10
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.VerifiedThreshold = bad.PendingThreshold
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ConfirmedThreshold = 120
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ReviewDisputeCount = 0
	assert.Error(t, bad.Validate())
}
