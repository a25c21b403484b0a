package novograd

import (
	"math"
	"testing"
)

func TestCosineAnnealingWarmRestarts_EtaAndPeriods(t *testing.T) {
	t.Parallel()

	s, err := NewCosineAnnealingWarmRestarts(10, 2.0)
	if err != nil {
		t.Fatalf("ctor error: %v", err)
	}
	// At the start of the period tcur=0 => η=1
	if eta := s.Eta(); eta != 1 {
		t.Fatalf("eta at start: got %g want 1", eta)
	}
	// Half-period (after 5 ticks for 10 steps of the period) should give 0.5
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	if eta := s.Eta(); !almostEqual(eta, 0.5, 1e-7, 1e-6) {
		t.Fatalf("eta mid-period: got %g want 0.5", eta)
	}
	// Go to the end of the period: after 5 more ticks — restart, period doubles.
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	if p := s.Period(); p != 20 {
		t.Fatalf("period after restart: got %d want 20", p)
	}
	// And η starts again from 1
	if eta := s.Eta(); eta != 1 {
		t.Fatalf("eta after restart: got %g want 1", eta)
	}

	s.Reset()
	if p := s.Period(); p != 10 {
		t.Fatalf("period after reset: got %d want 10", p)
	}
	if eta := s.Eta(); eta != 1 {
		t.Fatalf("eta after reset: got %g want 1", eta)
	}
}

func TestCosineAnnealingWarmRestarts_CtorErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewCosineAnnealingWarmRestarts(0, 2.0); err == nil {
		t.Fatalf("expected error on initialPeriodSteps<=0")
	}
	if _, err := NewCosineAnnealingWarmRestarts(10, 0.5); err == nil {
		t.Fatalf("expected error on tMult<1")
	}
}

func TestFixedSchedule_DefaultsToOne(t *testing.T) {
	t.Parallel()

	if eta := NewFixedSchedule(0).Eta(); eta != 1 {
		t.Fatalf("fixed schedule default eta: got %g want 1", eta)
	}
	if eta := NewFixedSchedule(-2).Eta(); eta != 1 {
		t.Fatalf("fixed schedule negative eta: got %g want 1", eta)
	}
	if eta := NewFixedSchedule(0.25).Eta(); eta != 0.25 {
		t.Fatalf("fixed schedule eta: got %g want 0.25", eta)
	}
}

func TestSchedule_ScalesDecoupledDecayAndUpdate(t *testing.T) {
	t.Parallel()

	// Zero gradients + decoupled decay isolate the schedule: the shrink uses
	// the effective rate lr_t = alpha * eta.
	alpha, lambda, eta := float32(0.1), float32(0.2), float32(0.5)
	opt, err := New(Options{
		Variant:     VariantSquaredNorm,
		Alpha:       alpha,
		WeightDecay: lambda,
		Decoupled:   true,
		Schedule:    NewFixedSchedule(eta),
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	param := []float32{2.0}
	const steps = 4
	for i := 0; i < steps; i++ {
		if err := opt.Step([]Pair{{Grad: []float32{0}, Param: param}}); err != nil {
			t.Fatalf("Step error: %v", err)
		}
	}
	want := 2.0 * float32(math.Pow(float64(1-alpha*eta*lambda), steps))
	if !almostEqual(param[0], want, 1e-7, 1e-5) {
		t.Fatalf("scheduled decay: got %g want %g", param[0], want)
	}
}

func TestSchedule_CosineMatchesIndependentInstance(t *testing.T) {
	t.Parallel()

	// Expected value is tracked via an independent schedule instance,
	// repeating the exact discretization of Eta() before Tick().
	alpha, lambda := float32(0.1), float32(0.2)
	sched1, err := NewCosineAnnealingWarmRestarts(6, 2.0)
	if err != nil {
		t.Fatalf("schedule ctor error: %v", err)
	}
	sched2, err := NewCosineAnnealingWarmRestarts(6, 2.0)
	if err != nil {
		t.Fatalf("schedule ctor2 error: %v", err)
	}

	opt, err := New(Options{
		Variant:     VariantSquaredNorm,
		Alpha:       alpha,
		WeightDecay: lambda,
		Decoupled:   true,
		Schedule:    sched1,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	param := []float32{2.0}
	expected := float32(2.0)
	const steps = 18 // crosses one restart (6 + 12 steps)
	for s := 0; s < steps; s++ {
		if err := opt.Step([]Pair{{Grad: []float32{0}, Param: param}}); err != nil {
			t.Fatalf("Step error at %d: %v", s, err)
		}
		expected *= 1 - alpha*sched2.Eta()*lambda
		sched2.Tick()
	}
	if !almostEqual(param[0], expected, 1e-7, 1e-5) {
		t.Fatalf("cosine decay mismatch: got %g want %g", param[0], expected)
	}
}
