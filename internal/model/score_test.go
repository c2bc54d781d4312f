package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholds_TierFor_DefaultBoundaries(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		score int
		want  Tier
	}{
		{100, TierHot},
		{71, TierHot},
		{70, TierWarm},
		{40, TierWarm},
		{39, TierCold},
		{0, TierCold},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, th.TierFor(tt.score), "score %d", tt.score)
	}
}

func TestThresholds_TierFor_Override(t *testing.T) {
	th := Thresholds{Hot: 75, Warm: 50}
	assert.Equal(t, TierWarm, th.TierFor(71))
	assert.Equal(t, TierHot, th.TierFor(75))
	assert.Equal(t, TierCold, th.TierFor(49))
}

func TestJobStatus(t *testing.T) {
	assert.True(t, JobStatusPending.InFlight())
	assert.True(t, JobStatusProcessing.InFlight())
	assert.False(t, JobStatusCompleted.InFlight())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusNone.Terminal())
	assert.False(t, JobStatus("bogus").Valid())
}

func TestFindScore(t *testing.T) {
	results := []ScoreResult{
		{Framework: FrameworkLeadScore, Score: 80, Tier: TierHot},
		{Framework: FrameworkBANT, Score: 30, Tier: TierCold},
	}
	r, ok := FindScore(results, FrameworkBANT)
	assert.True(t, ok)
	assert.Equal(t, 30, r.Score)

	_, ok = FindScore(results, FrameworkSPIN)
	assert.False(t, ok)
}
