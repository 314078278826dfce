package census

import (
	"fmt"

	csvparser "census/internal/parser/csv"
)

// GroupKey identifies a (species, gender) population group.
type GroupKey struct {
	Species string
	Gender  string
}

// BracketKey identifies a (species, gender, bracket) cell.
type BracketKey struct {
	Species string
	Gender  string
	Bracket string
}

// FlowKey identifies a travel flow from an origin to a destination postal
// code.
type FlowKey struct {
	Origin string
	Dest   string
}

// PyramidKey identifies a (quinquennial group, gender) pyramid cell.
type PyramidKey struct {
	Group  string
	Gender string
}

// AgeStats carries the sufficient statistics for one group's age
// distribution: count and sum reconstruct the mean exactly after merging,
// and the digest answers quantile queries exactly after merging. A chunk's
// point mean or median is never stored; it would not survive a merge.
type AgeStats struct {
	Count  int64
	Sum    int64
	Digest *AgeDigest
}

// Partial is the aggregate of a single chunk. All maps are keyed by explicit
// typed keys so the merge in Combine is mechanical. A Partial is immutable
// once returned by AggregateChunk.
type Partial struct {
	// Rows is the number of records in the chunk.
	Rows int64

	// Strata counts records per stratum (includes records with unknown age).
	Strata map[string]int64

	// Ages holds per-(species, gender) sufficient statistics over records
	// with a known age.
	Ages map[GroupKey]*AgeStats

	// Brackets counts records per (species, gender, age bracket).
	Brackets map[BracketKey]int64

	// Dependent and Working are the chunk's contributions to the dependency
	// index: ages <15 or >64, and 15..64 inclusive. Division is deferred to
	// the combiner.
	Dependent int64
	Working   int64

	// Flows counts records per (origin, destination).
	Flows map[FlowKey]int64

	// Pyramid counts records per (quinquennial group, gender).
	Pyramid map[PyramidKey]int64

	// InvalidAges counts records whose age was negative and therefore
	// dropped from the quinquennial grouping (bad data, not fatal).
	InvalidAges int64
}

func newPartial() *Partial {
	return &Partial{
		Strata:   make(map[string]int64),
		Ages:     make(map[GroupKey]*AgeStats),
		Brackets: make(map[BracketKey]int64),
		Flows:    make(map[FlowKey]int64),
		Pyramid:  make(map[PyramidKey]int64),
	}
}

// AggregateChunk normalizes every row of the chunk and folds it into a fresh
// Partial. It is a pure function of the chunk: no shared state, safe to run
// from any worker without coordination, and tolerant of chunks with zero
// valid ages.
//
// A panic while processing is captured and surfaced as this chunk's failure,
// so the scheduler can distinguish a poisoned chunk from an I/O or schema
// error.
func (n *Normalizer) AggregateChunk(c *csvparser.Chunk) (p *Partial, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("chunk %d (starting line %d): %v", c.Index, c.FirstLine, r)
		}
	}()

	p = newPartial()
	for _, row := range c.Rows {
		rec := n.Normalize(row)
		p.addRecord(rec)
	}
	return p, nil
}

// addRecord folds one normalized record into the partial.
func (p *Partial) addRecord(rec Record) {
	p.Rows++

	if rec.Stratum != "" {
		p.Strata[rec.Stratum]++
	}
	p.Flows[FlowKey{Origin: rec.Origin, Dest: rec.Dest}]++

	if !rec.AgeKnown {
		// Null age: the record exists in stratum and flow totals but in no
		// age-based aggregate.
		return
	}

	gk := GroupKey{Species: rec.Species, Gender: rec.Gender}
	st := p.Ages[gk]
	if st == nil {
		st = &AgeStats{Digest: NewAgeDigest()}
		p.Ages[gk] = st
	}
	st.Count++
	st.Sum += int64(rec.Age)
	st.Digest.Add(rec.Age)

	p.Brackets[BracketKey{Species: rec.Species, Gender: rec.Gender, Bracket: Bracket(rec.Age)}]++

	switch {
	case rec.Age < 15 || rec.Age > 64:
		p.Dependent++
	default:
		p.Working++
	}

	if g, ok := Quinquennial(rec.Age); ok {
		p.Pyramid[PyramidKey{Group: g, Gender: rec.Gender}]++
	} else {
		p.InvalidAges++
	}
}
