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

// Package report writes the output files of a bundle run.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/controlnet"
)

const (
	SummaryFile    = "bundleout.txt"
	PointsFile     = "points.csv"
	ImagesFile     = "images.csv"
	ResidualsFile  = "residuals.csv"
	IterationsFile = "iterations.html"
)

// Writes all reports for the given run into dir, creating it if needed.
// Residual plots are written per image unless plots is false.
func WriteAll(dir string, res *bundle.Result, net *controlnet.ControlNet, plots bool, log io.Writer) (err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	write := func(name string, f func(w io.Writer) error) {
		fileName := filepath.Join(dir, name)
		if log != nil {
			fmt.Fprintf(log, "Writing %s ...\n", fileName)
		}
		err = multierr.Append(err, writeFile(fileName, f))
	}

	write(SummaryFile, func(w io.Writer) error { return WriteSummary(w, res) })
	write(PointsFile, func(w io.Writer) error { return WritePointsCSV(w, res) })
	write(ImagesFile, func(w io.Writer) error { return WriteImagesCSV(w, res) })
	write(ResidualsFile, func(w io.Writer) error { return WriteResidualsCSV(w, net) })
	write(IterationsFile, func(w io.Writer) error { return WriteIterationsHTML(w, res.History) })
	if plots {
		limit := plotLimit(res)
		for _, im := range res.Images {
			sn := im.Serial
			write(PlotFileName(sn), func(w io.Writer) error { return WriteResidualPlot(w, sn, net, limit) })
		}
	}
	return err
}

// File name of the residual plot for the given serial number
func PlotFileName(serial string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, serial)
	return "residuals_" + clean + ".tif"
}

func writeFile(fileName string, f func(w io.Writer) error) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	writer := bufio.NewWriter(file)
	err = f(writer)
	err = multierr.Append(err, writer.Flush())
	err = multierr.Append(err, file.Close())
	return errors.Wrapf(err, "writing %s", fileName)
}

// Writes the human readable bundle summary
func WriteSummary(w io.Writer, res *bundle.Result) error {
	bw := &errWriter{w: w}
	bw.printf("JIGSAW: BUNDLE ADJUSTMENT\n=========================\n\n")
	bw.printf("%s\n", res.Summary())

	bw.printf("ITERATIONS\n\n")
	for _, it := range res.History {
		bw.printf("%s\n", it)
		if it.MaxLikelihoodModel != "" {
			bw.printf("    maximum likelihood %s constant %.6g\n", it.MaxLikelihoodModel, it.MaxLikelihoodConstant)
		}
	}

	bw.printf("\nIMAGE EXTERIOR ORIENTATION\n")
	for _, im := range res.Images {
		bw.printf("\nImage %s file %s observation %s\n", im.Serial, im.FileName, im.Observation)
		bw.printf("    measures %d rejected %d rms sample %.4f line %.4f\n", im.NumMeasures, im.NumRejected, im.RMSSample, im.RMSLine)
		bw.printf("    %-12s %16s %16s %16s %12s %12s\n", "parameter", "initial", "correction", "final", "apriori", "adjusted")
		for k, label := range im.Labels {
			adjusted := "N/A"
			if k < len(im.Adjusted) {
				adjusted = fmt.Sprintf("%.6g", im.Adjusted[k])
			}
			apriori := "FREE"
			if k < len(im.Apriori) && im.Apriori[k] > 0 {
				apriori = fmt.Sprintf("%.6g", im.Apriori[k])
			}
			bw.printf("    %-12s %16.6f %16.6f %16.6f %12s %12s\n", label, im.Initial[k], im.Corrections[k], im.Final[k], apriori, adjusted)
		}
	}

	bw.printf("\nPOINTS\n\n")
	bw.printf("%-12s %-12s %14s %14s %14s %10s %10s %10s %8s %s\n", "id", "type", "X", "Y", "Z", "sigmaX", "sigmaY", "sigmaZ", "rms", "status")
	for _, p := range res.Points {
		sx, sy, sz := "N/A", "N/A", "N/A"
		if p.Sigmas != nil {
			sx, sy, sz = fmt.Sprintf("%.4f", p.Sigmas[0]), fmt.Sprintf("%.4f", p.Sigmas[1]), fmt.Sprintf("%.4f", p.Sigmas[2])
		}
		bw.printf("%-12s %-12s %14.4f %14.4f %14.4f %10s %10s %10s %8.4f %s\n", p.ID, p.Type,
			p.Adjusted.X, p.Adjusted.Y, p.Adjusted.Z, sx, sy, sz, p.RMS, pointStatus(p))
	}
	bw.printf("\nWritten %s\n", time.Now().Format(time.RFC3339))
	return bw.err
}

func pointStatus(p bundle.PointResult) string {
	switch {
	case p.Ignored:
		return "ignored"
	case p.Rejected:
		return "rejected"
	}
	return "ok"
}

// Keeps the first error and skips all writes after it
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
