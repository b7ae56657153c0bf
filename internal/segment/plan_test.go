package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/dropthemike/internal/media"
)

func TestBuild_AllPartCounts(t *testing.T) {
	durations := []float64{0.5, 7, 600, 3599.999, 86400.25}

	for _, duration := range durations {
		for n := MinParts; n <= MaxParts; n++ {
			plan, err := Build(media.Descriptor{DurationSeconds: duration}, n)
			require.NoError(t, err)
			require.Equal(t, n, plan.Len())

			part := duration / float64(n)
			covered := 0.0
			for i, w := range plan.Windows {
				assert.Equal(t, i+1, w.Index)
				assert.InDelta(t, float64(i)*part, w.Start, 1e-6)
				if i < n-1 {
					assert.False(t, w.ToEnd)
					assert.InDelta(t, part, w.Duration, 1e-6)
					covered += w.Duration
					assert.InDelta(t, plan.Windows[i+1].Start, w.Start+w.Duration, 1e-6, "windows must be contiguous")
				} else {
					assert.True(t, w.ToEnd)
					assert.Zero(t, w.Duration)
				}
			}
			last := plan.Windows[n-1]
			assert.InDelta(t, last.Start, covered, 1e-6)
			assert.InDelta(t, duration, covered+part, 1e-6)
		}
	}
}

func TestBuild_SixHundredSecondsThreeParts(t *testing.T) {
	plan, err := Build(media.Descriptor{DurationSeconds: 600}, 3)
	require.NoError(t, err)

	assert.Equal(t, []Window{
		{Index: 1, Start: 0, Duration: 200},
		{Index: 2, Start: 200, Duration: 200},
		{Index: 3, Start: 400, ToEnd: true},
	}, plan.Windows)
	assert.Equal(t, 600.0, plan.TotalSeconds)
	assert.Equal(t, 200.0, plan.PartSeconds)
}

func TestBuild_OutOfRange(t *testing.T) {
	for _, n := range []int{-1, 0, 1, 21, 100} {
		_, err := Build(media.Descriptor{DurationSeconds: 600}, n)
		require.Error(t, err)

		var pe *PlanError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, n, pe.Parts)
		assert.ErrorIs(t, err, ErrOutOfRange)
	}
}

func TestBuild_NonPositiveDuration(t *testing.T) {
	for _, d := range []float64{0, -3} {
		_, err := Build(media.Descriptor{DurationSeconds: d}, 3)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	}
}

func TestBuild_RangeCheckedBeforeDuration(t *testing.T) {
	_, err := Build(media.Descriptor{}, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestNextParts(t *testing.T) {
	assert.Equal(t, 4, NextParts(3))
	assert.Equal(t, 20, NextParts(19))
	assert.Equal(t, 20, NextParts(20))
}

func TestPlanError_Message(t *testing.T) {
	err := ValidateParts(21)
	assert.EqualError(t, err, "plan 21 parts: part count out of range (must be between 2 and 20)")
}
