package clockutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSource_NowFallsBackToLocalClockUncalibrated(t *testing.T) {
	s := NewSource()
	_, ok := s.CalibratedNow()
	require.False(t, ok)

	before := LocalTimestamp()
	now := s.Now()
	after := LocalTimestamp()
	require.GreaterOrEqual(t, uint64(now), uint64(before))
	require.LessOrEqual(t, uint64(now), uint64(after))
}

func TestSource_CalibratedNowAdvancesFromBaseline(t *testing.T) {
	s := NewSource()
	s.SubmitCalibration(Timestamp(1_700_000_000_000), time.Now().Add(-50*time.Millisecond))

	got, ok := s.CalibratedNow()
	require.True(t, ok)
	require.GreaterOrEqual(t, got.AsMillis(), uint64(1_700_000_000_040))
}

func TestSource_AwaitCalibratedUnblocksOnSubmit(t *testing.T) {
	s := NewSource()
	done := make(chan Timestamp, 1)
	go func() { done <- s.AwaitCalibrated() }()

	time.Sleep(10 * time.Millisecond)
	s.SubmitCalibration(Timestamp(1_700_000_000_000), time.Now())

	select {
	case ts := <-done:
		require.GreaterOrEqual(t, ts.AsMillis(), uint64(1_700_000_000_000))
	case <-time.After(time.Second):
		t.Fatal("AwaitCalibrated did not unblock")
	}
}
