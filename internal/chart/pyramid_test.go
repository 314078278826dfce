package chart

import (
	"os"
	"path/filepath"
	"testing"

	"census/internal/census"
)

func samplePyramid() map[census.PyramidKey]int64 {
	return map[census.PyramidKey]int64{
		{Group: "0-4", Gender: "HEMBRA"}:   12,
		{Group: "0-4", Gender: "MACHO"}:    14,
		{Group: "35-39", Gender: "HEMBRA"}: 30,
		{Group: "35-39", Gender: "MACHO"}:  28,
		{Group: "90+", Gender: "HEMBRA"}:   3,
	}
}

// isPNG checks the file starts with the PNG signature.
func isPNG(t *testing.T, path string) bool {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return len(b) > 8 && string(b[1:4]) == "PNG"
}

func TestWritePyramid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pyramid.png")
	if err := WritePyramid(path, samplePyramid(), "HEMBRA", "MACHO"); err != nil {
		t.Fatalf("WritePyramid: %v", err)
	}
	if !isPNG(t, path) {
		t.Error("output is not a PNG file")
	}
}

func TestWritePyramid_MissingGenderSeries(t *testing.T) {
	t.Parallel()

	// Only one gender present; the other must render as zeros, not fail.
	pyramid := map[census.PyramidKey]int64{
		{Group: "20-24", Gender: "MACHO"}: 5,
	}
	path := filepath.Join(t.TempDir(), "pyramid.png")
	if err := WritePyramid(path, pyramid, "HEMBRA", "MACHO"); err != nil {
		t.Fatalf("WritePyramid with missing series: %v", err)
	}
}

func TestWritePyramid_EmptyPyramid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pyramid.png")
	if err := WritePyramid(path, nil, "HEMBRA", "MACHO"); err != nil {
		t.Fatalf("WritePyramid with empty pyramid: %v", err)
	}
}

func TestPyramidGroups_Order(t *testing.T) {
	t.Parallel()

	groups := pyramidGroups(samplePyramid())
	want := []string{"0-4", "35-39", "90+"}
	if len(groups) != len(want) {
		t.Fatalf("groups = %v, want %v", groups, want)
	}
	for i := range want {
		if groups[i] != want[i] {
			t.Fatalf("groups = %v, want %v", groups, want)
		}
	}
}
