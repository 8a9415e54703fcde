// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
	"golang.org/x/image/tiff"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/camera"
	"github.com/mlnoga/jigsaw/internal/project"
)

func solved(t *testing.T) (*project.Project, *bundle.Result) {
	t.Helper()
	opt := project.NewSimulateOptionsDefault()
	doc, err := project.Simulate(opt)
	test.That(t, err, test.ShouldBeNil)
	doc.Settings.ConvergenceThreshold = 1e-6
	doc.Settings.ErrorPropagation = true
	p, err := project.FromDocument(doc, camera.NewDefaultRegistry())
	test.That(t, err, test.ShouldBeNil)
	e, err := bundle.NewEngine(bundle.NewContext(nil), p.Settings, p.Net, p.Serials, p.Sensors)
	test.That(t, err, test.ShouldBeNil)
	res, err := e.Solve(context.Background())
	test.That(t, err, test.ShouldBeNil)
	return p, res
}

func readCSV(t *testing.T, fileName string) [][]string {
	t.Helper()
	f, err := os.Open(fileName)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	test.That(t, err, test.ShouldBeNil)
	return rows
}

func TestWriteAll(t *testing.T) {
	p, res := solved(t)
	dir := filepath.Join(t.TempDir(), "out")
	var log bytes.Buffer
	test.That(t, WriteAll(dir, res, p.Net, true, &log), test.ShouldBeNil)
	test.That(t, log.String(), test.ShouldContainSubstring, SummaryFile)

	summary, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(summary), test.ShouldContainSubstring, "Status Converged")
	test.That(t, string(summary), test.ShouldContainSubstring, "Image SIM/IMG1")
	test.That(t, string(summary), test.ShouldContainSubstring, "RMS point sigmas")

	points := readCSV(t, filepath.Join(dir, PointsFile))
	test.That(t, points, test.ShouldHaveLength, p.Net.NumPoints()+1)
	test.That(t, points[0][0], test.ShouldEqual, "id")
	// ground points carry no sigmas, tie points do
	test.That(t, points[1][1], test.ShouldEqual, "Ground")
	test.That(t, points[1][8], test.ShouldEqual, "")
	test.That(t, points[2][8], test.ShouldNotEqual, "")

	images := readCSV(t, filepath.Join(dir, ImagesFile))
	test.That(t, images, test.ShouldHaveLength, 1+4*6)
	test.That(t, images[1][8], test.ShouldNotEqual, "")

	residuals := readCSV(t, filepath.Join(dir, ResidualsFile))
	test.That(t, residuals, test.ShouldHaveLength, p.Net.NumMeasures()+1)

	html, err := os.ReadFile(filepath.Join(dir, IterationsFile))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Count(string(html), "  ,["), test.ShouldEqual, res.Iterations)

	f, err := os.Open(filepath.Join(dir, PlotFileName("SIM/IMG1")))
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	img, err := tiff.Decode(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, plotSize)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, plotSize+plotMargin)
}

func TestWriteAllFailsOnFile(t *testing.T) {
	p, res := solved(t)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	test.That(t, os.WriteFile(blocker, nil, 0644), test.ShouldBeNil)
	test.That(t, WriteAll(blocker, res, p.Net, false, nil), test.ShouldNotBeNil)
}

func paintedPixels(img *image.RGBA64) int {
	n := 0
	for y := plotMargin; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			if img.RGBA64At(x, y) != plotBackground {
				n++
			}
		}
	}
	return n
}

func TestResidualPlotMarksMeasures(t *testing.T) {
	p, res := solved(t)
	img := RenderResidualPlot("SIM/IMG2", p.Net, plotLimit(res))
	// at least the fully covered 3x3 core of each dot
	test.That(t, paintedPixels(img), test.ShouldBeGreaterThanOrEqualTo, 9*p.Net.NumPoints())

	empty := RenderResidualPlot("NOPE", p.Net, 0)
	test.That(t, paintedPixels(empty), test.ShouldEqual, 0)
}

func TestResidualColor(t *testing.T) {
	test.That(t, residualColor(0, 1, false).AlmostEqualRgb(colorGood), test.ShouldBeTrue)
	test.That(t, residualColor(5, 1, false).AlmostEqualRgb(colorBad.Clamped()), test.ShouldBeTrue)
	test.That(t, residualColor(0, 1, true), test.ShouldResemble, colorRejected)

	_, c0, _ := residualColor(0.5, 1, false).Hcl()
	test.That(t, c0, test.ShouldBeGreaterThan, 0)
}

func TestHelpers(t *testing.T) {
	test.That(t, PlotFileName("SIM/IMG 1:a"), test.ShouldEqual, "residuals_SIM_IMG_1_a.tif")
	test.That(t, finite(math.NaN()), test.ShouldEqual, 0)
	test.That(t, finite(math.Inf(-1)), test.ShouldEqual, 0)
	test.That(t, finite(2.5), test.ShouldEqual, 2.5)
	test.That(t, plotLimit(&bundle.Result{}), test.ShouldEqual, 1)
	test.That(t, plotLimit(&bundle.Result{Final: bundle.IterationStatistics{RMSxy: 0.5}}), test.ShouldEqual, 1.5)
}
