// Package report renders the final census aggregate as the fixed
// eight-section textual report.
//
// Every section iterates in a deterministic order (sorted keys, or count
// descending with lexicographic tie-breaks) so two runs over the same data
// print byte-identical reports.
package report

import (
	"fmt"
	"io"
	"sort"

	"census/internal/census"
)

// Options controls the list bounds and the chart path echoed in section 6.
type Options struct {
	// ChartPath is the pyramid artifact location named in section 6.
	ChartPath string

	// TopGroups bounds sections 3 and 4 (default 10).
	TopGroups int

	// TopBrackets bounds section 5 (default 10).
	TopBrackets int

	// TopFlows bounds section 8 (default 5).
	TopFlows int
}

func (o Options) withDefaults() Options {
	if o.TopGroups <= 0 {
		o.TopGroups = 10
	}
	if o.TopBrackets <= 0 {
		o.TopBrackets = 10
	}
	if o.TopFlows <= 0 {
		o.TopFlows = 5
	}
	return o
}

// Write prints the eight report sections to w in their fixed order.
func Write(w io.Writer, f *census.Final, opt Options) error {
	opt = opt.withDefaults()

	p := &printer{w: w}
	p.printf("=== RESULTS ===\n")

	// 1. Stratum counts, sorted by stratum key.
	p.printf("\n1. Population by social stratum:\n")
	for _, k := range sortedKeys(f.Strata) {
		p.printf("   - Stratum %s: %d persons\n", k, f.Strata[k])
	}

	// 2. Stratum percentages, sorted by stratum key.
	p.printf("\n2. Population share by social stratum:\n")
	for _, k := range sortedKeys(f.StrataPct) {
		p.printf("   - Stratum %s: %.2f%%\n", k, f.StrataPct[k])
	}

	// 3. Mean ages by (species, gender), highest first.
	groups := rankedGroups(f.Ages, func(g census.GroupAges) float64 { return g.Mean })
	p.printf("\n3. Top mean ages by species and gender:\n")
	for i, gk := range groups {
		if i >= opt.TopGroups {
			break
		}
		p.printf("   - %s / %s: mean = %.2f\n", gk.Species, gk.Gender, f.Ages[gk].Mean)
	}

	// 4. Median ages by (species, gender), highest first.
	groups = rankedGroups(f.Ages, func(g census.GroupAges) float64 { return g.Median })
	p.printf("\n4. Top median ages by species and gender:\n")
	for i, gk := range groups {
		if i >= opt.TopGroups {
			break
		}
		p.printf("   - %s / %s: median = %.2f\n", gk.Species, gk.Gender, f.Ages[gk].Median)
	}

	// 5. Bracket counts, largest first.
	p.printf("\n5. Population by species, gender and age bracket:\n")
	for i, bk := range rankedBrackets(f.Brackets) {
		if i >= opt.TopBrackets {
			break
		}
		p.printf("   - %s / %s / %s: %d persons\n", bk.Species, bk.Gender, bk.Bracket, f.Brackets[bk])
	}

	// 6. Chart artifact notice; rendering is the caller's side effect.
	p.printf("\n6. Age pyramid chart:\n")
	p.printf("   - written to %s\n", opt.ChartPath)

	// 7. Dependency index.
	p.printf("\n7. Dependency index:\n")
	if f.DependencyIndex != nil {
		p.printf("   - %.3f\n", *f.DependencyIndex)
	} else {
		p.printf("   - undefined (no working-age population)\n")
	}

	// 8. Top travel flows. f.TopFlows is already ranked deterministically.
	p.printf("\n8. Top travel flows:\n")
	for i, fl := range f.TopFlows {
		if i >= opt.TopFlows {
			break
		}
		p.printf("   - %s -> %s: %d trips\n", fl.Origin, fl.Dest, fl.Count)
	}

	return p.err
}

// printer accumulates the first write error so the section code stays flat.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// rankedGroups orders group keys by the extracted value descending, ties by
// species then gender.
func rankedGroups(ages map[census.GroupKey]census.GroupAges, value func(census.GroupAges) float64) []census.GroupKey {
	keys := make([]census.GroupKey, 0, len(ages))
	for k := range ages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		vi, vj := value(ages[keys[i]]), value(ages[keys[j]])
		if vi != vj {
			return vi > vj
		}
		if keys[i].Species != keys[j].Species {
			return keys[i].Species < keys[j].Species
		}
		return keys[i].Gender < keys[j].Gender
	})
	return keys
}

// rankedBrackets orders bracket keys by count descending, ties by species,
// gender, bracket.
func rankedBrackets(brackets map[census.BracketKey]int64) []census.BracketKey {
	keys := make([]census.BracketKey, 0, len(brackets))
	for k := range brackets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := brackets[keys[i]], brackets[keys[j]]
		if ci != cj {
			return ci > cj
		}
		if keys[i].Species != keys[j].Species {
			return keys[i].Species < keys[j].Species
		}
		if keys[i].Gender != keys[j].Gender {
			return keys[i].Gender < keys[j].Gender
		}
		return keys[i].Bracket < keys[j].Bracket
	})
	return keys
}
