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
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"
	"golang.org/x/image/vector"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/controlnet"
)

const (
	plotSize    = 512 // canvas pixels for the image area
	plotMargin  = 24  // label band at the top
	arrowLength = 40  // canvas pixels for a residual at the rejection limit
	extentStep  = 256 // image extents are rounded up to this many pixels
)

var (
	plotBackground = color.RGBA64{0x1800, 0x1800, 0x1800, 0xffff}
	plotLabel      = color.RGBA64{0xe000, 0xe000, 0xe000, 0xffff}
	colorGood      = colorful.Hcl(130, 0.5, 0.75)
	colorBad       = colorful.Hcl(20, 0.9, 0.55)
	colorRejected  = colorful.Hcl(300, 0.3, 0.5)
)

// Residual magnitude drawn at full length and full red
func plotLimit(res *bundle.Result) float64 {
	if res.Final.RejectionLimit > 0 {
		return res.Final.RejectionLimit
	}
	if l := 3 * res.Final.RMSxy; l > 0 {
		return l
	}
	return 1
}

// Blends from green to red in HCL space as the residual approaches the limit
func residualColor(r, limit float64, rejected bool) colorful.Color {
	if rejected {
		return colorRejected
	}
	t := math.Min(r/limit, 1)
	return colorGood.BlendHcl(colorBad, t).Clamped()
}

// Writes the residual plot of one image as deflate-compressed TIFF
func WriteResidualPlot(w io.Writer, serial string, net *controlnet.ControlNet, limit float64) error {
	img := RenderResidualPlot(serial, net, limit)
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Draws the measures of one image as dots, with residual vectors scaled relative to the limit
func RenderResidualPlot(serial string, net *controlnet.ControlNet, limit float64) *image.RGBA64 {
	if !(limit > 0) {
		limit = 1
	}
	var ms []*controlnet.ControlMeasure
	var rejected []bool
	extent := 0.0
	for _, p := range net.Points() {
		m, err := p.Measure(serial)
		if err != nil || !m.IsMeasured() || m.IsIgnored() || p.IsIgnored() {
			continue
		}
		ms = append(ms, m)
		rejected = append(rejected, m.IsRejected() || p.IsRejected())
		extent = math.Max(extent, math.Max(m.Sample(), m.Line()))
	}
	extent = math.Max(extentStep, math.Ceil(extent/extentStep)*extentStep)
	scale := plotSize / extent
	gain := arrowLength / limit

	width, height := plotSize, plotSize+plotMargin
	img := image.NewRGBA64(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(plotBackground), image.Point{}, draw.Src)

	z := vector.NewRasterizer(width, height)
	fill := func(c color.Color) {
		z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
		z.Reset(width, height)
	}
	for i, m := range ms {
		x0 := float32(m.Sample() * scale)
		y0 := float32(m.Line()*scale) + plotMargin
		rs, rl := m.Residual()
		c := residualColor(math.Hypot(rs, rl), limit, rejected[i])

		x1, y1 := x0+float32(rs*gain), y0+float32(rl*gain)
		if dx, dy := x1-x0, y1-y0; dx != 0 || dy != 0 {
			n := float32(math.Hypot(float64(dx), float64(dy)))
			nx, ny := -dy/n*0.75, dx/n*0.75
			z.MoveTo(x0+nx, y0+ny)
			z.LineTo(x1+nx, y1+ny)
			z.LineTo(x1-nx, y1-ny)
			z.LineTo(x0-nx, y0-ny)
			z.ClosePath()
			fill(c)
		}
		z.MoveTo(x0-2, y0-2)
		z.LineTo(x0+2, y0-2)
		z.LineTo(x0+2, y0+2)
		z.LineTo(x0-2, y0+2)
		z.ClosePath()
		fill(c)
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(plotLabel),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, plotMargin-8),
	}
	d.DrawString(fmt.Sprintf("%s  %d measures  %.0f px extent  %.2f px = %d px arrow", serial, len(ms), extent, limit, arrowLength))
	return img
}
