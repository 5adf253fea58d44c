package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aelexs/kernel-ipc/internal/domain"
	"github.com/aelexs/kernel-ipc/internal/domain/domaintest"
)

func TestRealClock(t *testing.T) {
	clock := domain.RealClock{}
	before := time.Now()
	got := clock.Now()
	after := time.Now()

	assert.False(t, got.Before(before), "clock.Now() should not be before reference time")
	assert.False(t, got.After(after), "clock.Now() should not be after reference time")
}

func TestFakeClock(t *testing.T) {
	fixedTime := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("returns fixed time", func(t *testing.T) {
		clock := domaintest.NewFakeClock(fixedTime)
		assert.True(t, clock.Now().Equal(fixedTime))
	})

	t.Run("advance moves time forward", func(t *testing.T) {
		clock := domaintest.NewFakeClock(fixedTime)
		clock.Advance(90 * time.Second)

		assert.True(t, clock.Now().Equal(fixedTime.Add(90*time.Second)))
	})
}

func TestUnixMillis(t *testing.T) {
	local := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2026, 2, 1, 13, 30, 45, 123456789, local)

	assert.Equal(t, ts.UTC().UnixMilli(), domain.UnixMillis(ts))
}
