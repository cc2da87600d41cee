// Package servo implements the bounded PI controller of §4.5: it turns
// offset samples into frequency corrections, with anti-windup, a
// phase-step policy for large offsets, oscillation mitigation, and
// ADJUSTING/TRACKING/HOLDOVER/FAULTY substates. The per-sample update is
// a small constant number of arithmetic operations and a single HAL
// call, with no allocation (§4.5 performance contract).
package servo

import (
	"fmt"

	"github.com/openptp/ptpcore"
)

// Substate is the servo's own state, distinct from the port state
// machine (§4.5).
type Substate int

const (
	Adjusting Substate = iota
	Tracking
	Holdover
	Faulty
)

func (s Substate) String() string {
	switch s {
	case Adjusting:
		return "ADJUSTING"
	case Tracking:
		return "TRACKING"
	case Holdover:
		return "HOLDOVER"
	case Faulty:
		return "FAULTY"
	default:
		return "UNKNOWN"
	}
}

// Config bundles the servo tuning of §6's configuration table.
type Config struct {
	Kp                   float64 // default 0.7
	Ki                   float64 // default 0.3
	StepThresholdNanos   int64   // default 100_000_000 (100ms)
	ConvergenceBandNanos int64   // default 100
	FrequencyBoundPPB    uint32  // HAL-reported F_max
}

const (
	varianceWindowLen       = 10
	varianceThresholdNanos2 = 50 // ns^2, per §4.5
	oscillationWindowLen    = 10
	oscillationSignChanges  = 6
	convergenceStreakNeeded = 10
)

// Servo holds the PI controller's running state.
type Servo struct {
	cfg   Config
	state Substate

	integral       float64
	lastFreqAdjPPB int32

	window     [varianceWindowLen]float64
	windowLen  int
	windowNext int

	signHistory    [oscillationWindowLen]int8
	signHistoryLen int

	convergenceStreak int
}

// New constructs a Servo in ADJUSTING substate.
func New(cfg Config) (*Servo, error) {
	if cfg.FrequencyBoundPPB == 0 {
		return nil, fmt.Errorf("%w: servo frequency bound must be nonzero", ptpcore.ErrConfigConflict)
	}
	return &Servo{cfg: cfg, state: Adjusting}, nil
}

// Substate reports the servo's current substate.
func (s *Servo) Substate() Substate { return s.state }

// Reset clears the integral and window history and returns to
// ADJUSTING, per §4.5's reset triggers: parent change, fault, or
// explicit request from the port state machine.
func (s *Servo) Reset() {
	s.integral = 0
	s.windowLen, s.windowNext = 0, 0
	s.signHistoryLen = 0
	s.convergenceStreak = 0
	s.state = Adjusting
}

// Fault transitions the servo to FAULTY; no further adjustments are
// applied until Reset.
func (s *Servo) Fault() { s.state = Faulty }

// StepResult reports what a Sample call decided.
type StepResult struct {
	// Stepped is true when a phase step was issued instead of a
	// frequency adjustment.
	Stepped bool
	// FrequencyAdjustmentPPB is valid only when !Stepped.
	FrequencyAdjustmentPPB int32
	// OscillationDetected is true the sample that crosses the
	// sign-change threshold.
	OscillationDetected bool
}

// Sample feeds one offset sample (in nanoseconds) with its interval
// dtSeconds since the prior sample into the controller, returning what
// action the caller (the port state machine, via the HAL) should take.
func (s *Servo) Sample(offsetNanos int64, dtSeconds float64) (StepResult, error) {
	if s.state == Faulty {
		return StepResult{}, ptpcore.ErrInvalidArgument
	}
	if s.state == Holdover {
		return StepResult{FrequencyAdjustmentPPB: s.lastFreqAdjPPB}, nil
	}

	if abs64(offsetNanos) >= s.cfg.StepThresholdNanos {
		s.integral = 0
		s.state = Adjusting
		s.convergenceStreak = 0
		return StepResult{Stepped: true}, nil
	}

	oscillated := s.recordSign(offsetNanos)
	if oscillated {
		s.cfg.Kp /= 2
		s.cfg.Ki /= 2
		s.integral = 0
	}

	fMax := float64(s.cfg.FrequencyBoundPPB)

	p := s.cfg.Kp * float64(offsetNanos)
	if !oscillated {
		s.integral = clamp(s.integral+s.cfg.Ki*float64(offsetNanos)*dtSeconds, -fMax, fMax)
	}
	freqAdj := clamp(p+s.integral, -fMax, fMax)
	s.lastFreqAdjPPB = int32(freqAdj)

	s.recordVarianceSample(float64(offsetNanos))
	s.updateConvergence(offsetNanos)

	return StepResult{
		FrequencyAdjustmentPPB: int32(freqAdj),
		OscillationDetected:    oscillated,
	}, nil
}

// recordSign pushes the sign of the latest offset into a fixed 10-slot
// sliding window (oldest at index 0) and reports whether the window now
// has >= 6 sign changes (§4.5 oscillation mitigation). A detection
// empties the window, so the next one needs a fresh run of sign changes.
func (s *Servo) recordSign(offsetNanos int64) bool {
	var sign int8
	switch {
	case offsetNanos > 0:
		sign = 1
	case offsetNanos < 0:
		sign = -1
	}

	if s.signHistoryLen < oscillationWindowLen {
		s.signHistory[s.signHistoryLen] = sign
		s.signHistoryLen++
	} else {
		copy(s.signHistory[:], s.signHistory[1:])
		s.signHistory[oscillationWindowLen-1] = sign
	}

	changes := 0
	for i := 1; i < s.signHistoryLen; i++ {
		a, b := s.signHistory[i-1], s.signHistory[i]
		if a != 0 && b != 0 && a != b {
			changes++
		}
	}
	if changes >= oscillationSignChanges {
		s.signHistoryLen = 0
		return true
	}
	return false
}

func (s *Servo) recordVarianceSample(offsetNanos float64) {
	s.window[s.windowNext] = offsetNanos
	s.windowNext = (s.windowNext + 1) % varianceWindowLen
	if s.windowLen < varianceWindowLen {
		s.windowLen++
	}
}

func (s *Servo) variance() float64 {
	if s.windowLen == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < s.windowLen; i++ {
		sum += s.window[i]
	}
	mean := sum / float64(s.windowLen)

	var sqSum float64
	for i := 0; i < s.windowLen; i++ {
		d := s.window[i] - mean
		sqSum += d * d
	}
	return sqSum / float64(s.windowLen)
}

// updateConvergence implements §4.5's ADJUSTING -> TRACKING criterion:
// |offset| within the convergence band and variance below threshold for
// convergenceStreakNeeded consecutive samples.
func (s *Servo) updateConvergence(offsetNanos int64) {
	if s.state == Holdover {
		return
	}
	within := abs64(offsetNanos) < s.cfg.ConvergenceBandNanos && s.variance() < varianceThresholdNanos2
	if within {
		s.convergenceStreak++
	} else {
		s.convergenceStreak = 0
		if s.state == Tracking {
			s.state = Adjusting
		}
	}
	if s.convergenceStreak >= convergenceStreakNeeded {
		s.state = Tracking
	}
}

// EnterHoldover transitions to HOLDOVER: the last known frequency
// adjustment is maintained and no sample processing updates the
// integral (§4.5).
func (s *Servo) EnterHoldover() { s.state = Holdover }

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
