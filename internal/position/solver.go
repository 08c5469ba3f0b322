package position

// Iteration describes one solver step for progress reporting.
type Iteration struct {
	Index int     // zero-based iteration number
	X, Y  float64 // hypothesis after the step (ft)
	DX    float64 // dF/dx before the step
	DY    float64 // dF/dy before the step
	Cost  float64 // F before the step (ft^2)
}

// ProgressFunc receives every solver step. It must not block.
type ProgressFunc func(Iteration)

// Solution is the outcome of one solver run.
type Solution struct {
	X, Y       float64
	Cost       float64 // F at the last evaluated hypothesis (ft^2)
	Iterations int
	Converged  bool // Cost fell to the convergence threshold
	Stationary bool // stopped on a zero gradient
}

// cost evaluates F(x, y) and its gradient against the measured differences.
func cost(p Params, x, y float64, d Differences) (f, dfx, dfy float64) {
	var dist [4]float64
	for k := range dist {
		dist[k] = p.Range(x, y, k)
	}
	ex0, ey0 := p.Emitter(0)
	gx0 := (x - ex0) / dist[0]
	gy0 := (y - ey0) / dist[0]

	for i := 1; i < 4; i++ {
		r := (dist[i] - dist[0]) - d[i-1]
		f += r * r

		exi, eyi := p.Emitter(i)
		dfx += 2 * r * ((x-exi)/dist[i] - gx0)
		dfy += 2 * r * ((y-eyi)/dist[i] - gy0)
	}
	return f, dfx, dfy
}

// Cost returns F(x, y) for the measured differences.
func Cost(p Params, x, y float64, d Differences) float64 {
	f, _, _ := cost(p, x, y, d)
	return f
}

// Solve minimises F starting from (seedX, seedY). Each step moves against the
// gradient by Damping*F/|grad|^2, a Newton step on F=0 that needs no Hessian.
// The run ends when F drops to ConvergeBelow, after MaxIterations steps, or on
// a zero gradient. Solve does not allocate.
func Solve(p Params, seedX, seedY float64, d Differences, progress ProgressFunc) Solution {
	s := Solution{X: seedX, Y: seedY}

	for {
		f, dfx, dfy := cost(p, s.X, s.Y, d)
		s.Cost = f

		g2 := dfx*dfx + dfy*dfy
		if g2 == 0 {
			s.Stationary = true
			break
		}

		step := p.Damping * f / g2
		s.X -= step * dfx
		s.Y -= step * dfy

		if progress != nil {
			progress(Iteration{Index: s.Iterations, X: s.X, Y: s.Y, DX: dfx, DY: dfy, Cost: f})
		}

		s.Iterations++
		if f <= p.ConvergeBelow || s.Iterations >= p.MaxIterations {
			break
		}
	}

	s.Converged = s.Cost <= p.ConvergeBelow
	return s
}

// Accepted reports whether the solution may be published under p.
func (s Solution) Accepted(p Params) bool {
	return s.Cost < p.AcceptBelow
}
