package replay

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"

	"github.com/YingVictor/ultrasonic-positioning/internal/position"
)

const (
	referenceMaxIterations = 50
	referenceTolerance     = 1e-6 // ft
)

// Reference is an independent least-squares solution of one cycle, used to
// judge how close the damped solver gets within its iteration cap.
type Reference struct {
	X, Y       float64
	Residual   float64 // same cost function as the solver (ft^2)
	Iterations int
	Converged  bool
}

// Distance returns how far (x, y) lies from the reference solution.
func (r Reference) Distance(x, y float64) float64 {
	return math.Hypot(x-r.X, y-r.Y)
}

// SolveReference fits (x, y) to the three range differences by Gauss-Newton
// with a QR solve at each step.
func SolveReference(p position.Params, seedX, seedY float64, d position.Differences) Reference {
	x, y := seedX, seedY
	J := mat.NewDense(3, 2, nil)
	f := mat.NewVecDense(3, nil)
	var step mat.VecDense
	var qr mat.QR

	ref := Reference{}
	for k := 0; k < referenceMaxIterations; k++ {
		ex0, ey0 := p.Emitter(0)
		r0 := p.Range(x, y, 0)
		for i := 1; i < 4; i++ {
			ex, ey := p.Emitter(i)
			ri := p.Range(x, y, i)
			f.SetVec(i-1, -(ri - r0 - d[i-1]))
			J.Set(i-1, 0, (x-ex)/ri-(x-ex0)/r0)
			J.Set(i-1, 1, (y-ey)/ri-(y-ey0)/r0)
		}

		qr.Factorize(J)
		if err := qr.SolveVecTo(&step, false, f); err != nil {
			log.Debugf("Reference solve stopped at iteration %d: %v", k, err)
			break
		}

		x += step.AtVec(0)
		y += step.AtVec(1)
		ref.Iterations = k + 1

		if blas64.Nrm2(step.RawVector()) < referenceTolerance {
			ref.Converged = true
			break
		}
	}

	ref.X, ref.Y = x, y
	ref.Residual = position.Cost(p, x, y, d)
	return ref
}
