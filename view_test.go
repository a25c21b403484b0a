package novograd

import (
	"errors"
	"testing"
)

func TestGroupView_PartitionsBuffer(t *testing.T) {
	t.Parallel()

	data := []float32{1, 2, 3, 4, 5, 6}
	v, err := NewGroupView(data, []int{2, 3, 1})
	if err != nil {
		t.Fatalf("NewGroupView error: %v", err)
	}
	if v.Groups() != 3 || v.Len() != 6 {
		t.Fatalf("got %d groups / %d elements, want 3 / 6", v.Groups(), v.Len())
	}
	if g := v.Group(1); len(g) != 3 || g[0] != 3 || g[2] != 5 {
		t.Fatalf("group 1: got %v want [3 4 5]", g)
	}

	// Writes through the view alias the underlying buffer.
	v.Group(2)[0] = 42
	if data[5] != 42 {
		t.Fatalf("view write not visible in buffer: %v", data)
	}
}

func TestGroupView_Validation(t *testing.T) {
	t.Parallel()

	data := []float32{1, 2, 3}
	cases := []struct {
		name  string
		sizes []int
	}{
		{"EmptySizes", nil},
		{"NonPositiveSize", []int{2, 0, 1}},
		{"SumTooSmall", []int{1, 1}},
		{"SumTooLarge", []int{2, 2}},
	}
	for _, tc := range cases {
		if _, err := NewGroupView(data, tc.sizes); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}

func TestStepFlat_MatchesStep(t *testing.T) {
	t.Parallel()

	sizes := []int{4, 2, 7}
	total := 0
	for _, s := range sizes {
		total += s
	}

	flatParams := buildParams(total)
	flatGrads := buildGradient(total, 1)

	// Reference: explicit pairs over copies of the same data.
	pairParams := clone(flatParams)
	pairs := make([]Pair, len(sizes))
	off := 0
	for i, sz := range sizes {
		pairs[i] = Pair{
			Grad:  flatGrads[off : off+sz],
			Param: pairParams[off : off+sz],
		}
		off += sz
	}

	newOpt := func() *Optimizer {
		opt, err := New(Options{Variant: VariantSquaredNorm, Alpha: 0.05, WeightDecay: 1e-2})
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		return opt
	}
	optFlat, optPairs := newOpt(), newOpt()

	for s := 0; s < 10; s++ {
		if err := optFlat.StepFlat(flatParams, flatGrads, sizes); err != nil {
			t.Fatalf("StepFlat error: %v", err)
		}
		if err := optPairs.Step(pairs); err != nil {
			t.Fatalf("Step error: %v", err)
		}
	}
	if !slicesAlmostEqual(flatParams, pairParams, 0, 0) {
		t.Fatalf("StepFlat diverged from Step:\nflat: %v\npair: %v", flatParams, pairParams)
	}
}

func TestStepFlat_RejectsBadPartition(t *testing.T) {
	t.Parallel()

	opt, err := New(Options{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	params := make([]float32, 6)
	grads := make([]float32, 6)
	if err := opt.StepFlat(params, grads, []int{4, 4}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig on bad partition, got %v", err)
	}
	if err := opt.StepFlat(params, grads[:5], []int{4, 2}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig on short gradient buffer, got %v", err)
	}
}
