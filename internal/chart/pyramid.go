// Package chart renders the age-pyramid artifact for a census run.
package chart

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"census/internal/census"
)

// Series colors follow the reference palette: lightcoral for the mirrored
// (left) gender, steelblue for the right.
var (
	leftColor  = color.RGBA{R: 240, G: 128, B: 128, A: 255}
	rightColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
)

// WritePyramid draws the horizontally-mirrored age pyramid and saves it to
// path (the extension selects the encoder; use .png).
//
// Bars for the left gender are negated so the two populations mirror around
// zero. Age groups run up the vertical axis in numeric order with "90+" on
// top, matching how pyramids are conventionally read. A gender with no
// records renders as an all-zero series rather than failing.
func WritePyramid(path string, pyramid map[census.PyramidKey]int64, left, right string) error {
	groups := pyramidGroups(pyramid)

	leftVals := make(plotter.Values, len(groups))
	rightVals := make(plotter.Values, len(groups))
	for i, g := range groups {
		leftVals[i] = -float64(pyramid[census.PyramidKey{Group: g, Gender: left}])
		rightVals[i] = float64(pyramid[census.PyramidKey{Group: g, Gender: right}])
	}

	p := plot.New()
	p.Title.Text = "Age Pyramid"
	p.X.Label.Text = "Population"
	p.Y.Label.Text = "Age group"

	barWidth := vg.Points(12)

	leftBars, err := plotter.NewBarChart(leftVals, barWidth)
	if err != nil {
		return fmt.Errorf("pyramid: left series: %w", err)
	}
	leftBars.Horizontal = true
	leftBars.Color = leftColor
	leftBars.LineStyle.Width = 0

	rightBars, err := plotter.NewBarChart(rightVals, barWidth)
	if err != nil {
		return fmt.Errorf("pyramid: right series: %w", err)
	}
	rightBars.Horizontal = true
	rightBars.Color = rightColor
	rightBars.LineStyle.Width = 0

	p.Add(leftBars, rightBars)
	p.Legend.Add(left, leftBars)
	p.Legend.Add(right, rightBars)
	p.Legend.Top = true
	p.NominalY(groups...)

	if err := p.Save(12*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("pyramid: save %s: %w", path, err)
	}
	return nil
}

// pyramidGroups returns the union of quinquennial groups present, sorted
// numerically with "90+" last.
func pyramidGroups(pyramid map[census.PyramidKey]int64) []string {
	seen := make(map[string]struct{})
	var groups []string
	for k := range pyramid {
		if _, ok := seen[k.Group]; ok {
			continue
		}
		seen[k.Group] = struct{}{}
		groups = append(groups, k.Group)
	}
	sort.Slice(groups, func(i, j int) bool { return census.QuinquennialLess(groups[i], groups[j]) })
	return groups
}
