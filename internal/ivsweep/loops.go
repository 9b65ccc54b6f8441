package ivsweep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
)

// lobe is a maximal run of same-sign voltage. The apex (largest |V|) splits
// it into an outgoing branch [start, apex] and a return branch [apex, end].
type lobe struct {
	sign  int
	start int
	apex  int
	end   int
}

func (l lobe) measurable() bool {
	return l.apex-l.start >= 2 && l.end-l.apex >= 2
}

// findLobes splits the voltage trace into lobes, ignoring excursions whose
// apex stays below minFraction of the peak voltage.
func findLobes(v []float64, peak, minFraction float64) []lobe {
	var out []lobe
	n := len(v)
	for i := 0; i < n; {
		s := sign(v[i])
		if s == 0 {
			i++
			continue
		}
		j := i
		apex := i
		for j < n && sign(v[j]) == s {
			if math.Abs(v[j]) > math.Abs(v[apex]) {
				apex = j
			}
			j++
		}
		if math.Abs(v[apex]) >= minFraction*peak {
			out = append(out, lobe{sign: s, start: i, apex: apex, end: j - 1})
		}
		i = j
	}
	return out
}

// countCycles counts full sweep cycles as the larger number of lobes of
// either polarity.
func countCycles(lobes []lobe) int {
	pos, neg := 0, 0
	for _, l := range lobes {
		if l.sign > 0 {
			pos++
		} else {
			neg++
		}
	}
	return max(1, pos, neg)
}

// branch holds one sweep direction of a lobe, sorted by |V|.
type branch struct {
	x []float64
	y []float64
}

func newBranch(v, c []float64, from, to int) branch {
	idx := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(v[idx[a]]) < math.Abs(v[idx[b]])
	})
	b := branch{x: make([]float64, len(idx)), y: make([]float64, len(idx))}
	for k, i := range idx {
		b.x[k] = math.Abs(v[i])
		b.y[k] = c[i]
	}
	return b
}

func (b branch) lo() float64 { return b.x[0] }
func (b branch) hi() float64 { return b.x[len(b.x)-1] }

// at linearly interpolates the branch current at |V| = x.
func (b branch) at(x float64) (float64, bool) {
	if len(b.x) == 0 || x < b.lo() || x > b.hi() {
		return 0, false
	}
	i := sort.SearchFloat64s(b.x, x)
	if i == 0 {
		return b.y[0], true
	}
	x0, x1 := b.x[i-1], b.x[i]
	y0, y1 := b.y[i-1], b.y[i]
	if x1 == x0 {
		return y1, true
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0), true
}

// readPair is the outgoing and return current at the read voltage of one
// lobe, both taken relative to the zero-bias current.
type readPair struct {
	sign     int
	outgoing float64
	ret      float64
}

// loopAnalysis is the lobe-by-lobe decomposition shared by the feature
// extractor and the metrics stage.
type loopAnalysis struct {
	lobes      []lobe
	cycles     int
	measurable int
	posArea    float64
	negArea    float64
	pairs      []readPair
}

// totalArea is the enclosed loop area per cycle in V·A.
func (la loopAnalysis) totalArea() float64 {
	return (la.posArea + la.negArea) / float64(la.cycles)
}

func analyzeLoops(tr *Trace, th Thresholds, zeroBias float64) loopAnalysis {
	la := loopAnalysis{lobes: findLobes(tr.Voltage, tr.PeakVoltage, th.LobeMinFraction)}
	la.cycles = countCycles(la.lobes)

	grid := make([]float64, th.LoopGridPoints)
	diff := make([]float64, th.LoopGridPoints)
	for _, l := range la.lobes {
		if !l.measurable() {
			continue
		}
		la.measurable++
		out := newBranch(tr.Voltage, tr.Current, l.start, l.apex)
		ret := newBranch(tr.Voltage, tr.Current, l.apex, l.end)

		lo := math.Max(out.lo(), ret.lo())
		hi := math.Min(out.hi(), ret.hi())
		if hi > lo {
			step := (hi - lo) / float64(len(grid)-1)
			for q := range grid {
				grid[q] = lo + step*float64(q)
				a, _ := out.at(grid[q])
				b, _ := ret.at(grid[q])
				diff[q] = math.Abs(a - b)
			}
			// Rounding can push the last grid point past hi.
			grid[len(grid)-1] = hi
			area := integrate.Trapezoidal(grid, diff)
			if l.sign > 0 {
				la.posArea += area
			} else {
				la.negArea += area
			}
		}

		io, okOut := out.at(tr.ReadVoltage)
		ir, okRet := ret.at(tr.ReadVoltage)
		if okOut && okRet {
			la.pairs = append(la.pairs, readPair{
				sign:     l.sign,
				outgoing: math.Abs(io - zeroBias),
				ret:      math.Abs(ir - zeroBias),
			})
		}
	}
	return la
}

// ratio returns the ON/OFF current ratio of the pair.
func (p readPair) ratio(floor float64) float64 {
	hi := math.Max(p.outgoing, p.ret)
	lo := math.Max(math.Min(p.outgoing, p.ret), floor)
	if lo <= 0 {
		return 1
	}
	return hi / lo
}

// zeroBiasCurrents returns the current wherever the voltage is zero or
// changes sign, interpolating between the two straddling samples.
func zeroBiasCurrents(v, c []float64) []float64 {
	var out []float64
	for i := range v {
		if v[i] == 0 {
			out = append(out, c[i])
			continue
		}
		if i > 0 && v[i-1] != 0 && v[i-1]*v[i] < 0 {
			f := v[i-1] / (v[i-1] - v[i])
			out = append(out, c[i-1]+f*(c[i]-c[i-1]))
		}
	}
	return out
}

// zeroBiasOffset returns the constant offset current of the sweep: the mean
// zero-bias current when every sample shares one sign and they agree within
// spread of their mean. Otherwise it is zero.
func zeroBiasOffset(vals []float64, spread float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := sign(vals[0])
	if s == 0 {
		return 0
	}
	lo, hi, sum := vals[0], vals[0], 0.0
	for _, x := range vals {
		if sign(x) != s {
			return 0
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
		sum += x
	}
	mean := sum / float64(len(vals))
	if hi-lo > spread*math.Abs(mean) {
		return 0
	}
	return mean
}
