package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyTable_IncrementAndHas(t *testing.T) {
	table := make(FrequencyTable)
	now := time.Now()

	table.Increment("Mumbai", now)
	table.Increment("Mumbai", now)
	table.Increment("Delhi", now)

	assert.EqualValues(t, 2, table["Mumbai"].Count)
	assert.EqualValues(t, 1, table["Delhi"].Count)
	assert.True(t, table.Has("Mumbai"))
	assert.False(t, table.Has("Pune"))
}

func TestFrequencyTable_TrimKeepsHighestCounts(t *testing.T) {
	table := make(FrequencyTable)
	now := time.Now()

	for i := 0; i < 15; i++ {
		key := fmt.Sprintf("city-%02d", i)
		for j := 0; j <= i; j++ {
			table.Increment(key, now)
		}
	}

	table.Trim(MaxFrequencyEntries)

	require.Len(t, table, MaxFrequencyEntries)
	// The globally highest count must always survive.
	assert.True(t, table.Has("city-14"))
	// The five lowest counts were evicted.
	for i := 0; i < 5; i++ {
		assert.False(t, table.Has(fmt.Sprintf("city-%02d", i)))
	}
}

func TestFrequencyTable_TrimTieBreakPrefersRecent(t *testing.T) {
	table := make(FrequencyTable)
	base := time.Now()

	// Eleven entries, all with count 1; "newest" incremented last.
	for i := 0; i < 10; i++ {
		table.Increment(fmt.Sprintf("old-%d", i), base.Add(time.Duration(i)*time.Second))
	}
	table.Increment("newest", base.Add(time.Minute))

	table.Trim(MaxFrequencyEntries)

	require.Len(t, table, MaxFrequencyEntries)
	assert.True(t, table.Has("newest"), "just-visited entry must not be evicted by an older equal count")
	assert.False(t, table.Has("old-0"), "oldest equal-count entry is the one evicted")
}

func TestFrequencyTable_TrimNoopUnderLimit(t *testing.T) {
	table := make(FrequencyTable)
	table.Increment("a", time.Now())
	table.Trim(MaxFrequencyEntries)
	assert.Len(t, table, 1)
}

func TestFrequencyTable_BoundedUnderManyIncrements(t *testing.T) {
	table := make(FrequencyTable)
	base := time.Now()

	for i := 0; i < 500; i++ {
		table.Increment(fmt.Sprintf("net-%d_wifi", i%25), base.Add(time.Duration(i)*time.Millisecond))
		table.Trim(MaxFrequencyEntries)
		assert.LessOrEqual(t, len(table), MaxFrequencyEntries)
	}
}

func TestNewDefaultProfile_AllZero(t *testing.T) {
	p := NewDefaultProfile("user-1")

	assert.Equal(t, "user-1", p.UserID)
	assert.Zero(t, p.SessionCount)
	assert.Empty(t, p.FrequentLocations)
	assert.Empty(t, p.FrequentNetworks)
	assert.Zero(t, p.Touch.AvgPressure)
	assert.Zero(t, p.Typing.AvgDwellTime)
	assert.Zero(t, p.Risk.CurrentScore)
	assert.Zero(t, p.Login.LoginCount)
}

func TestTouchProfile_MergeSample(t *testing.T) {
	p := TouchProfile{}

	p.MergeSample(TouchGestureSummary{GestureCount: 5, AvgPressure: 0.4, AvgTouchArea: 100, AvgDuration: 80})
	p.MergeSample(TouchGestureSummary{GestureCount: 3, AvgPressure: 0.6, AvgTouchArea: 200, AvgDuration: 120})

	assert.EqualValues(t, 2, p.SampleCount)
	assert.InDelta(t, 0.5, p.AvgPressure, 1e-9)
	assert.InDelta(t, 150, p.AvgTouchArea, 1e-9)

	// Empty summaries do not dilute the baseline.
	p.MergeSample(TouchGestureSummary{})
	assert.EqualValues(t, 2, p.SampleCount)
}
