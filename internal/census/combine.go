package census

import (
	"math"
	"sort"
)

// GroupAges is the derived age summary for one (species, gender) group.
type GroupAges struct {
	Count  int64
	Mean   float64
	Median float64
}

// Flow is one ranked travel flow.
type Flow struct {
	Origin string
	Dest   string
	Count  int64
}

// Final is the globally merged aggregate. It is created once by Combine and
// read-only thereafter.
type Final struct {
	Rows int64

	Strata    map[string]int64
	StrataPct map[string]float64 // share of total population, 2 decimals

	Ages map[GroupKey]GroupAges

	Brackets map[BracketKey]int64

	Dependent int64
	Working   int64
	// DependencyIndex is Dependent/Working rounded to 3 decimals, or nil
	// when no record falls in the working-age range.
	DependencyIndex *float64

	// TopFlows is sorted by count descending, ties broken lexicographically
	// by (origin, dest), truncated to the configured bound.
	TopFlows []Flow

	Pyramid map[PyramidKey]int64

	InvalidAges int64
}

// Combine reduces the collected partials into one Final equal to what a
// single non-chunked pass over the whole dataset would produce (up to
// floating rounding). Every merge rule is associative and commutative, so
// neither the slice order nor worker completion order matters.
//
// topFlows bounds the ranked flow list; values < 1 keep every flow.
func Combine(partials []*Partial, topFlows int) *Final {
	f := &Final{
		Strata:   make(map[string]int64),
		Ages:     make(map[GroupKey]GroupAges),
		Brackets: make(map[BracketKey]int64),
		Pyramid:  make(map[PyramidKey]int64),
	}

	// Merge phase. Counters sum elementwise over the key union; age groups
	// merge their sufficient statistics.
	merged := make(map[GroupKey]*AgeStats)
	flows := make(map[FlowKey]int64)
	for _, p := range partials {
		f.Rows += p.Rows
		f.Dependent += p.Dependent
		f.Working += p.Working
		f.InvalidAges += p.InvalidAges

		for k, v := range p.Strata {
			f.Strata[k] += v
		}
		for k, v := range p.Brackets {
			f.Brackets[k] += v
		}
		for k, v := range p.Pyramid {
			f.Pyramid[k] += v
		}
		for k, v := range p.Flows {
			flows[k] += v
		}
		for k, st := range p.Ages {
			m := merged[k]
			if m == nil {
				m = &AgeStats{Digest: NewAgeDigest()}
				merged[k] = m
			}
			m.Count += st.Count
			m.Sum += st.Sum
			m.Digest.Merge(st.Digest)
		}
	}

	// Derive phase: everything below is computed from merged totals only.
	var total int64
	for _, v := range f.Strata {
		total += v
	}
	f.StrataPct = make(map[string]float64, len(f.Strata))
	if total > 0 {
		for k, v := range f.Strata {
			f.StrataPct[k] = round2(float64(v) * 100 / float64(total))
		}
	}

	for k, st := range merged {
		median, _ := st.Digest.Median() // Count > 0 by construction
		f.Ages[k] = GroupAges{
			Count:  st.Count,
			Mean:   float64(st.Sum) / float64(st.Count),
			Median: median,
		}
	}

	if f.Working > 0 {
		idx := round3(float64(f.Dependent) / float64(f.Working))
		f.DependencyIndex = &idx
	}

	f.TopFlows = rankFlows(flows, topFlows)

	return f
}

// rankFlows orders flows by count descending with a deterministic
// lexicographic tie-break, so the result never depends on map iteration or
// worker arrival order.
func rankFlows(flows map[FlowKey]int64, limit int) []Flow {
	out := make([]Flow, 0, len(flows))
	for k, v := range flows {
		out = append(out, Flow{Origin: k.Origin, Dest: k.Dest, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Origin != out[j].Origin {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Dest < out[j].Dest
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
