package census

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	csvparser "census/internal/parser/csv"
)

// chunksOf splits rows into chunks of at most size rows.
func chunksOf(rows [][]string, size int) []*csvparser.Chunk {
	var out []*csvparser.Chunk
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, &csvparser.Chunk{Index: len(out), FirstLine: i + 2, Rows: rows[i:end]})
	}
	return out
}

// combineChunked aggregates every chunk serially and combines the partials.
func combineChunked(t *testing.T, n *Normalizer, rows [][]string, chunkSize, topFlows int) *Final {
	t.Helper()
	var partials []*Partial
	for _, c := range chunksOf(rows, chunkSize) {
		p, err := n.AggregateChunk(c)
		if err != nil {
			t.Fatalf("AggregateChunk: %v", err)
		}
		partials = append(partials, p)
	}
	return Combine(partials, topFlows)
}

// syntheticRows builds a deterministic mixed dataset: several strata, two
// species, two genders, a sprinkle of null and future birth dates, and
// repeated flows.
func syntheticRows() [][]string {
	var rows [][]string
	for i := 0; i < 60; i++ {
		origin := fmt.Sprintf("%d80%02d", i%4+1, i%7)
		dest := fmt.Sprintf("%d90%02d", i%3+1, i%5)
		birth := fmt.Sprintf("%d-06-15", 1930+(i*7)%95)
		if i%11 == 0 {
			birth = "" // null birth date
		}
		if i%17 == 0 {
			birth = "garbage"
		}
		species := "HUMANO"
		if i%2 == 1 {
			species = "ELFO"
		}
		gender := "MACHO"
		if i%3 == 0 {
			gender = "HEMBRA"
		}
		rows = append(rows, []string{origin, dest, birth, species, gender})
	}
	return rows
}

func TestCombine_PartitionInvariance(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(2025, nil)
	rows := syntheticRows()

	baseline := combineChunked(t, n, rows, len(rows), 10)
	for _, size := range []int{1, 3, 7, 13, 59} {
		got := combineChunked(t, n, rows, size, 10)
		if !reflect.DeepEqual(got, baseline) {
			t.Errorf("chunk size %d: final aggregate differs from single-chunk baseline", size)
		}
	}
}

func TestCombine_Additivity(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(2025, nil)
	f := combineChunked(t, n, syntheticRows(), 7, 0)

	var strataSum int64
	for _, v := range f.Strata {
		strataSum += v
	}
	if strataSum != f.Rows {
		// every synthetic row has a non-empty origin
		t.Errorf("sum of strata counts = %d, want %d rows", strataSum, f.Rows)
	}

	var pctSum float64
	for _, v := range f.StrataPct {
		pctSum += v
	}
	if math.Abs(pctSum-100) > 0.1 {
		t.Errorf("sum of stratum percentages = %v, want ≈100", pctSum)
	}
}

func TestCombine_DependencyIndex(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(2025, nil)
	// 3 below 15 (ages 5, 10, 14), 4 working (15, 30, 64, 40), 2 above 64
	// (65, 80): index = (3+2)/4.
	var rows [][]string
	for _, age := range []int{5, 10, 14, 15, 30, 64, 40, 65, 80} {
		rows = append(rows, []string{"10001", "20002", fmt.Sprintf("%d-01-01", 2025-age), "A", "M"})
	}
	f := combineChunked(t, n, rows, 2, 0)

	if f.Dependent != 5 || f.Working != 4 {
		t.Fatalf("dependent/working = %d/%d, want 5/4", f.Dependent, f.Working)
	}
	if f.DependencyIndex == nil || *f.DependencyIndex != 1.25 {
		t.Errorf("DependencyIndex = %v, want 1.25", f.DependencyIndex)
	}
}

func TestCombine_DependencyIndexUndefined(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(2025, nil)
	// Only dependents; the working-age denominator is zero.
	rows := [][]string{
		{"10001", "20002", "2020-01-01", "A", "M"},
		{"10001", "20002", "1940-01-01", "A", "F"},
	}
	f := combineChunked(t, n, rows, 1, 0)
	if f.DependencyIndex != nil {
		t.Errorf("DependencyIndex = %v, want nil for zero denominator", *f.DependencyIndex)
	}
}

func TestCombine_MeanIsMergedNotConcatenated(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(2025, nil)
	// Chunk 1 holds ages {10}, chunk 2 holds {40, 70}: per-chunk means are
	// 10 and 55, but the global mean must be 40.
	rows := [][]string{
		{"1", "2", "2015-01-01", "A", "M"},
		{"1", "2", "1985-01-01", "A", "M"},
		{"1", "2", "1955-01-01", "A", "M"},
	}
	f := combineChunked(t, n, rows, 1, 0)

	g := f.Ages[GroupKey{Species: "A", Gender: "M"}]
	if g.Count != 3 || g.Mean != 40 {
		t.Errorf("group ages = %+v, want count 3 mean 40", g)
	}
	if g.Median != 40 {
		t.Errorf("median = %v, want 40", g.Median)
	}
}

func TestCombine_TopFlowsDeterministicTieBreak(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(2025, nil)
	// Three flows with count 2 each and one with count 3; ties must order
	// lexicographically by (origin, dest) regardless of chunking.
	var rows [][]string
	add := func(origin, dest string, times int) {
		for i := 0; i < times; i++ {
			rows = append(rows, []string{origin, dest, "1990-01-01", "A", "M"})
		}
	}
	add("30003", "10001", 2)
	add("10001", "20002", 2)
	add("10001", "10009", 2)
	add("20002", "30003", 3)

	want := []Flow{
		{Origin: "20002", Dest: "30003", Count: 3},
		{Origin: "10001", Dest: "10009", Count: 2},
		{Origin: "10001", Dest: "20002", Count: 2},
		{Origin: "30003", Dest: "10001", Count: 2},
	}

	for _, size := range []int{1, 2, 5, len(rows)} {
		f := combineChunked(t, n, rows, size, 0)
		if !reflect.DeepEqual(f.TopFlows, want) {
			t.Errorf("chunk size %d: TopFlows = %v, want %v", size, f.TopFlows, want)
		}
	}

	// Truncation respects the bound after the deterministic sort.
	f := combineChunked(t, n, rows, 2, 2)
	if len(f.TopFlows) != 2 || !reflect.DeepEqual(f.TopFlows, want[:2]) {
		t.Errorf("top-2 flows = %v, want %v", f.TopFlows, want[:2])
	}
}

func TestCombine_EmptyInput(t *testing.T) {
	t.Parallel()

	f := Combine(nil, 10)
	if f.Rows != 0 || len(f.Strata) != 0 || f.DependencyIndex != nil || len(f.TopFlows) != 0 {
		t.Errorf("empty combine produced non-empty final: %+v", f)
	}
}

// TestCombine_Scenario is the four-record acceptance scenario: ages
// {10, 40, 70, null}, species A throughout, gender M for the first two and F
// for the rest.
func TestCombine_Scenario(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(2025, nil)
	rows := [][]string{
		{"11111", "22222", "2015-03-01", "A", "M"}, // age 10
		{"11111", "33333", "1985-03-01", "A", "M"}, // age 40
		{"22222", "11111", "1955-03-01", "A", "F"}, // age 70
		{"33333", "11111", "", "A", "F"},           // null age
	}

	for _, size := range []int{1, 2, 4} {
		f := combineChunked(t, n, rows, size, 0)

		if g := f.Ages[GroupKey{Species: "A", Gender: "M"}]; g.Count != 2 || g.Mean != 25 {
			t.Errorf("size %d: (A,M) ages = %+v, want count 2 mean 25", size, g)
		}
		if f.Dependent != 2 || f.Working != 1 {
			t.Errorf("size %d: dependent/working = %d/%d, want 2/1 (age 10 and 70 dependent)", size, f.Dependent, f.Working)
		}

		wantBrackets := map[BracketKey]int64{
			{Species: "A", Gender: "M", Bracket: "0-17"}:  1,
			{Species: "A", Gender: "M", Bracket: "36-60"}: 1,
			{Species: "A", Gender: "F", Bracket: "61+"}:   1,
		}
		if !reflect.DeepEqual(f.Brackets, wantBrackets) {
			t.Errorf("size %d: brackets = %v, want %v", size, f.Brackets, wantBrackets)
		}

		// The null-age record is absent from every age aggregate but still
		// counted once in the stratum totals.
		var strataSum int64
		for _, v := range f.Strata {
			strataSum += v
		}
		if strataSum != 4 {
			t.Errorf("size %d: strata total = %d, want 4", size, strataSum)
		}
		if g := f.Ages[GroupKey{Species: "A", Gender: "F"}]; g.Count != 1 {
			t.Errorf("size %d: (A,F) age count = %d, want 1 (null excluded)", size, g.Count)
		}
	}
}
