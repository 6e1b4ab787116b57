package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTierIsHigh(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultTierIndex, c.CurrentTierIndex())
	assert.Equal(t, "High", c.CurrentTier().Name)
}

func TestDeadZoneResetsCounters(t *testing.T) {
	c := New()
	c.ReportHealth(10)
	changed := c.ReportHealth(50)
	assert.False(t, changed)
	assert.Equal(t, DefaultTierIndex, c.CurrentTierIndex())

	// a single bad sample after the dead zone must not carry over a streak
	changed = c.ReportHealth(10)
	assert.False(t, changed)
}

func TestMultiplicativeDecreaseAfterTwoBadSamples(t *testing.T) {
	c := New()
	require.False(t, c.ReportHealth(10))
	changed := c.ReportHealth(5)
	assert.True(t, changed)
	assert.Equal(t, DefaultTierIndex-2, c.CurrentTierIndex())
}

func TestDropFloorsAtZero(t *testing.T) {
	c := New()
	c.ReportHealth(1)
	c.ReportHealth(1) // drops to index 1
	c.ReportHealth(1)
	changed := c.ReportHealth(1) // would drop below 0
	assert.True(t, changed || c.CurrentTierIndex() == 0)
	assert.Equal(t, 0, c.CurrentTierIndex())
}

func TestAdditiveIncreaseRequiresDwellTime(t *testing.T) {
	c := New()

	c.ReportHealth(90)
	c.ReportHealth(90)
	changed := c.ReportHealth(90)
	assert.False(t, changed, "3 good samples without dwell time must not raise")
	assert.Equal(t, DefaultTierIndex, c.CurrentTierIndex())

	for i := 0; i < 150; i++ {
		c.NotifyFrameEncoded()
	}
	// the good streak is already at 3, so the first good sample once the
	// dwell time is met raises the tier; the next two do not raise again
	changed = c.ReportHealth(90)
	assert.True(t, changed)
	c.ReportHealth(90)
	c.ReportHealth(90)
	assert.Equal(t, DefaultTierIndex+1, c.CurrentTierIndex())
}

func TestRaiseCapsAtMaxTier(t *testing.T) {
	c := New()
	for i := 0; i < 150; i++ {
		c.NotifyFrameEncoded()
	}
	// climb from High to Max, then attempt to exceed it
	for i := 0; i < 5; i++ {
		c.ReportHealth(90)
		c.ReportHealth(90)
		c.ReportHealth(90)
		for i := 0; i < 150; i++ {
			c.NotifyFrameEncoded()
		}
	}
	assert.Equal(t, len(Tiers)-1, c.CurrentTierIndex())
}
