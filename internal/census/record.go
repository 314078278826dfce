// Package census implements the chunked map-reduce aggregation core: record
// normalization, per-chunk partial aggregates, the merge step that
// reconstructs global statistics, and the worker pool that runs chunks in
// parallel.
//
// The merge rules are associative and commutative for every statistic, so the
// final aggregate is independent of chunk boundaries and worker scheduling.
// Mean is carried as (count, sum) sufficient statistics; median is carried as
// an exact mergeable per-year histogram (see AgeDigest). Percentages and
// ratios are derived once from fully-merged totals, never from per-chunk
// values.
package census

import (
	"strconv"
	"strings"
	"time"
)

// Canonical column names, in the positional order every chunk row follows.
var Columns = []string{"cp_origen", "cp_destino", "fecha_nacimiento", "especie", "genero"}

// Positional indexes into a chunk row, matching Columns.
const (
	colOrigin = iota
	colDest
	colBirth
	colSpecies
	colGender
)

// Record is one normalized row. Values are immutable once returned by
// Normalize.
type Record struct {
	Origin  string
	Dest    string
	Species string
	Gender  string

	// Stratum is the first character of the origin postal code, or "" when
	// the origin is empty.
	Stratum string

	// Age is the reference year minus the birth year. Only meaningful when
	// AgeKnown is true; birth dates that are missing or unparseable leave
	// AgeKnown false and exclude the record from every age-based aggregate.
	Age      int
	AgeKnown bool
}

// defaultDateLayouts are tried, in order, after the built-in fast paths.
var defaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02.01.2006",
}

// Normalizer derives the computed record fields. It is read-only after
// construction and safe for concurrent use by many workers.
type Normalizer struct {
	refYear int
	layouts []string
}

// NewNormalizer returns a Normalizer computing ages against refYear. refYear
// 0 means the current wall-clock year. An empty layouts slice selects the
// built-in default set.
func NewNormalizer(refYear int, layouts []string) *Normalizer {
	if refYear == 0 {
		refYear = time.Now().Year()
	}
	if len(layouts) == 0 {
		layouts = defaultDateLayouts
	}
	return &Normalizer{refYear: refYear, layouts: layouts}
}

// RefYear returns the year ages are computed against.
func (n *Normalizer) RefYear() int { return n.refYear }

// Normalize derives the stratum and age fields from one aligned row.
// It never fails: a missing or malformed birth date leaves AgeKnown false.
func (n *Normalizer) Normalize(row []string) Record {
	r := Record{
		Origin:  row[colOrigin],
		Dest:    row[colDest],
		Species: row[colSpecies],
		Gender:  row[colGender],
	}
	if r.Origin != "" {
		// First character, not first byte: postal codes are expected to be
		// ASCII but the data has surprised us before.
		r.Stratum = string([]rune(r.Origin)[0])
	}
	if year, ok := n.parseBirthYear(row[colBirth]); ok {
		r.Age = n.refYear - year
		r.AgeKnown = true
	}
	return r
}

// parseBirthYear extracts the year from a lenient set of date shapes.
// Zero-alloc fast paths cover "2006-01-02..." and "02/01/2006"; anything else
// falls back to the configured layouts.
func (n *Normalizer) parseBirthYear(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if y, ok := parseISOYear(s); ok {
		return y, true
	}
	if y, ok := parseDMYYear(s, '/'); ok {
		return y, true
	}
	if y, ok := parseDMYYear(s, '.'); ok {
		return y, true
	}
	for _, layout := range n.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), true
		}
	}
	return 0, false
}

// parseISOYear matches "YYYY-MM-DD" prefixes (time component permitted after
// the date) and validates the month/day ranges.
func parseISOYear(s string) (int, bool) {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return 0, false
	}
	y, ok := atoi4(s[0:4])
	if !ok {
		return 0, false
	}
	mon, okM := atoi2(s[5:7])
	day, okD := atoi2(s[8:10])
	if !okM || !okD || mon < 1 || mon > 12 || day < 1 || day > 31 {
		return 0, false
	}
	if len(s) > 10 && s[10] != ' ' && s[10] != 'T' {
		return 0, false
	}
	return y, true
}

// parseDMYYear matches "DD<sep>MM<sep>YYYY" exactly.
func parseDMYYear(s string, sep byte) (int, bool) {
	if len(s) != 10 || s[2] != sep || s[5] != sep {
		return 0, false
	}
	day, okD := atoi2(s[0:2])
	mon, okM := atoi2(s[3:5])
	y, okY := atoi4(s[6:10])
	if !okD || !okM || !okY || mon < 1 || mon > 12 || day < 1 || day > 31 {
		return 0, false
	}
	return y, true
}

func atoi2(s string) (int, bool) {
	a, b := s[0]-'0', s[1]-'0'
	if a > 9 || b > 9 {
		return 0, false
	}
	return int(a)*10 + int(b), true
}

func atoi4(s string) (int, bool) {
	hi, okH := atoi2(s[0:2])
	lo, okL := atoi2(s[2:4])
	if !okH || !okL {
		return 0, false
	}
	return hi*100 + lo, true
}

// Age bracket boundaries (18/36/61) and dependency boundaries (15/64) follow
// two distinct conventions on purpose; they come from different parts of the
// source methodology and must not be unified.

// Bracket maps an age to its coarse bracket. The caller must only pass known
// ages; negative ages land in "0-17" to match the historical behavior of the
// methodology (only the quinquennial grouping rejects them).
func Bracket(age int) string {
	switch {
	case age < 18:
		return "0-17"
	case age <= 35:
		return "18-35"
	case age <= 60:
		return "36-60"
	default:
		return "61+"
	}
}

// Quinquennial maps an age to its 5-year pyramid group ("0-4" .. "85-89",
// "90+"). Negative ages are invalid data and return ok=false.
func Quinquennial(age int) (string, bool) {
	switch {
	case age < 0:
		return "", false
	case age >= 90:
		return "90+", true
	default:
		base := age / 5 * 5
		return strconv.Itoa(base) + "-" + strconv.Itoa(base+4), true
	}
}

// QuinquennialLess orders pyramid groups numerically with "90+" last.
// Unknown labels sort after everything else so they are at least stable.
func QuinquennialLess(a, b string) bool {
	return quinquennialRank(a) < quinquennialRank(b)
}

func quinquennialRank(g string) int {
	if g == "90+" {
		return 90
	}
	if i := strings.IndexByte(g, '-'); i > 0 {
		if n, err := strconv.Atoi(g[:i]); err == nil {
			return n
		}
	}
	return 1 << 30
}
