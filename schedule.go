package novograd

import (
	"math"
)

// Schedule defines the learning-rate multiplier η_t and allows ticking per update.
// The effective rate for a step is Alpha * Eta(); Eta is read before Tick().
type Schedule interface {
	// Eta returns η_t for the CURRENT step (before Tick()).
	Eta() float32
	// Tick advances the internal step by 1.
	Tick()
	// Reset resets the schedule state.
	Reset()
}

// FixedSchedule — constant η_t (defaults to 1 if <=0).
type FixedSchedule struct {
	eta float32
}

func NewFixedSchedule(eta float32) *FixedSchedule {
	if eta <= 0 {
		eta = 1.0
	}
	return &FixedSchedule{eta: eta}
}

func (s *FixedSchedule) Eta() float32 { return s.eta }
func (s *FixedSchedule) Tick()        {}
func (s *FixedSchedule) Reset()       {}

// CosineAnnealingWarmRestarts anneals η_t from 1 to 0 over a period of steps,
// then restarts with the period grown by tMult.
type CosineAnnealingWarmRestarts struct {
	initialPeriodSteps int
	tMult              float64
	curPeriodSteps     int
	tcur               int
}

func NewCosineAnnealingWarmRestarts(initialPeriodSteps int, tMult float64) (*CosineAnnealingWarmRestarts, error) {
	if initialPeriodSteps <= 0 {
		return nil, newConfigError("initialPeriodSteps must be > 0")
	}
	if tMult < 1.0 {
		return nil, newConfigError("tMult must be >= 1.0")
	}
	return &CosineAnnealingWarmRestarts{
		initialPeriodSteps: initialPeriodSteps,
		tMult:              tMult,
		curPeriodSteps:     initialPeriodSteps,
		tcur:               0,
	}, nil
}

func (s *CosineAnnealingWarmRestarts) Eta() float32 {
	// η_t = 0.5 + 0.5 * cos(pi * Tcur / Ti), Tcur ∈ [0, Ti].
	r := float64(s.tcur) / float64(s.curPeriodSteps)
	return float32(0.5 + 0.5*math.Cos(math.Pi*r))
}

func (s *CosineAnnealingWarmRestarts) Tick() {
	s.tcur++
	if s.tcur >= s.curPeriodSteps {
		// restart
		s.tcur = 0
		s.curPeriodSteps = int(math.Round(float64(s.curPeriodSteps) * s.tMult))
		if s.curPeriodSteps <= 0 {
			s.curPeriodSteps = 1
		}
	}
}

func (s *CosineAnnealingWarmRestarts) Reset() {
	s.curPeriodSteps = s.initialPeriodSteps
	s.tcur = 0
}

// Period returns the length, in steps, of the current restart period.
func (s *CosineAnnealingWarmRestarts) Period() int {
	return s.curPeriodSteps
}
