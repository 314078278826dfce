package census

import (
	"math"
	"sort"
)

// AgeDigest is an exact, mergeable quantile estimator over integer ages.
//
// Ages repeat heavily (a population of millions spans a few hundred distinct
// ages at most, long-lived species included), so a per-year count histogram
// is both exact and tiny. Merge is elementwise addition, which makes quantile
// queries after any partitioning identical to a single pass over the whole
// dataset, with no approximation bound to document.
type AgeDigest struct {
	counts map[int]int64
	n      int64
}

// NewAgeDigest returns an empty digest.
func NewAgeDigest() *AgeDigest {
	return &AgeDigest{counts: make(map[int]int64)}
}

// Add records one observation.
func (d *AgeDigest) Add(age int) { d.AddN(age, 1) }

// AddN records n observations of the same age.
func (d *AgeDigest) AddN(age int, n int64) {
	if n <= 0 {
		return
	}
	d.counts[age] += n
	d.n += n
}

// Merge folds o into d. o is left untouched.
func (d *AgeDigest) Merge(o *AgeDigest) {
	if o == nil {
		return
	}
	for age, c := range o.counts {
		d.counts[age] += c
	}
	d.n += o.n
}

// Count returns the number of observations.
func (d *AgeDigest) Count() int64 { return d.n }

// Quantile returns the q-quantile (0 ≤ q ≤ 1) using linear interpolation
// between the closest order statistics, matching the numpy/pandas default.
// ok is false for an empty digest.
func (d *AgeDigest) Quantile(q float64) (v float64, ok bool) {
	if d.n == 0 {
		return 0, false
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	h := float64(d.n-1) * q
	lo := int64(math.Floor(h))
	frac := h - float64(lo)

	x0 := d.kth(lo)
	if frac == 0 {
		return float64(x0), true
	}
	x1 := d.kth(lo + 1)
	return float64(x0) + frac*float64(x1-x0), true
}

// Median returns the 50th percentile. For an even population it is the mean
// of the two central order statistics.
func (d *AgeDigest) Median() (float64, bool) {
	return d.Quantile(0.5)
}

// kth returns the 0-based k-th order statistic. The caller guarantees
// 0 ≤ k < n.
func (d *AgeDigest) kth(k int64) int {
	ages := make([]int, 0, len(d.counts))
	for age := range d.counts {
		ages = append(ages, age)
	}
	sort.Ints(ages)

	var cum int64
	for _, age := range ages {
		cum += d.counts[age]
		if k < cum {
			return age
		}
	}
	// Unreachable when the k < n contract holds.
	return ages[len(ages)-1]
}
