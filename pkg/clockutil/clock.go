// Package clockutil implements the calibrated clock source described
// in spec.md §3/§5: namespace workers submit (monotonic instant,
// server timestamp) observations, and every other worker reads
// calibrated time through an explicit handle rather than a singleton.
package clockutil

import (
	"time"

	"github.com/montana2ab/swarmclient/pkg/watchable"
)

// Timestamp is a Unix millisecond timestamp. Zero is not a valid
// timestamp (mirrors the original's NonZeroU64), callers that need a
// zero value for "no cursor yet" should use a separate bool.
type Timestamp uint64

func (t Timestamp) AsMillis() uint64 { return uint64(t) }

func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t))
}

// LocalTimestamp returns the current wall-clock time as a Timestamp.
func LocalTimestamp() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}

type baseline struct {
	timestamp Timestamp
	at        time.Time // time.Now() at the moment the baseline was observed
}

// Source holds an optional (server-timestamp, local-instant) baseline.
// calibrated_now = baseline.timestamp + elapsed-since-baseline.
type Source struct {
	v *watchable.Value[*baseline]
}

func NewSource() *Source {
	return &Source{v: watchable.New[*baseline](nil)}
}

// SubmitCalibration records a fresh baseline observation. Called by
// the namespace worker whenever a retrieve response carries a server
// timestamp ("t").
func (s *Source) SubmitCalibration(serverTimestamp Timestamp, observedAt time.Time) {
	s.v.Set(&baseline{timestamp: serverTimestamp, at: observedAt})
}

// CalibratedNow returns the calibrated time and true, or zero and
// false if no calibration has been observed yet.
func (s *Source) CalibratedNow() (Timestamp, bool) {
	b := s.v.Get()
	if b == nil {
		return 0, false
	}
	return calibrate(b), true
}

// Now returns the calibrated time if available, else falls back to
// the local wall clock.
func (s *Source) Now() Timestamp {
	if t, ok := s.CalibratedNow(); ok {
		return t
	}
	return LocalTimestamp()
}

// AwaitCalibrated blocks until the first calibration is observed.
func (s *Source) AwaitCalibrated() Timestamp {
	sub := s.v.Subscribe()
	val, ok := sub.WaitFor(func(b *baseline) bool { return b != nil })
	if !ok || val == nil {
		return LocalTimestamp()
	}
	return calibrate(val)
}

func calibrate(b *baseline) Timestamp {
	elapsed := time.Since(b.at)
	return Timestamp(b.timestamp.AsMillis() + uint64(elapsed.Milliseconds()))
}
