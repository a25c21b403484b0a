package main

import (
	"fmt"

	novograd "github.com/n0madic/go-novograd"
)

// Toy problem: two "layers" minimizing ||θ||^2 (gradient = 2θ), with very
// different scales per layer to show the layer-wise normalization.
func run(name string, opts novograd.Options) {
	w1 := []float32{5.0, -10.0, 20.0, -5.0}
	w2 := []float32{0.05, -0.01}

	opt, err := novograd.New(opts)
	if err != nil {
		panic(err)
	}

	fmt.Println(name + ":")
	for step := 0; step < 1000; step++ {
		g1 := make([]float32, len(w1))
		g2 := make([]float32, len(w2))
		for i := range w1 {
			// gradient of quadratic: d/dθ (θ^2) = 2θ
			g1[i] = 2 * w1[i]
		}
		for i := range w2 {
			g2[i] = 2 * w2[i]
		}
		pairs := []novograd.Pair{
			{Grad: g1, Param: w1},
			{Grad: g2, Param: w2},
		}
		if err := opt.Step(pairs); err != nil {
			panic(err)
		}
		if (step+1)%250 == 0 {
			fmt.Printf("  step %4d: w1=%v w2=%v\n", step+1, w1, w2)
		}
	}
}

func main() {
	run("NovoGradW (squared-norm EMA, decoupled decay)", novograd.Options{
		Variant:     novograd.VariantSquaredNorm,
		Alpha:       0.05,
		Beta1:       0.95,
		Beta2:       0.98,
		Eps:         1e-8,
		WeightDecay: 1e-3,
		Decoupled:   true,
	})
	run("NovoGrad (norm EMA)", novograd.Options{
		Variant: novograd.VariantNorm,
		Alpha:   0.05,
	})
	run("Plain norm (no EMA state)", novograd.Options{
		Variant: novograd.VariantPlainNorm,
		Alpha:   0.05,
	})
}
