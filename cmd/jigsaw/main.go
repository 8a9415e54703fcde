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

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/camera"
	"github.com/mlnoga/jigsaw/internal/logging"
	"github.com/mlnoga/jigsaw/internal/project"
	"github.com/mlnoga/jigsaw/internal/report"
	"github.com/mlnoga/jigsaw/internal/rest"
)

const version = "0.1.0"

const banner = `Jigsaw Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.`

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
}

// Shared state of one command line invocation
type runner struct {
	out     io.Writer
	log     *logging.Tee
	reg     *camera.Registry
	cpuProf *os.File
	start   time.Time
}

func newApp(out io.Writer) *cli.App {
	r := &runner{out: out, reg: camera.NewDefaultRegistry()}
	return &cli.App{
		Name:        "jigsaw",
		Usage:       "photogrammetric bundle adjustment",
		Description: banner,
		Version:     version,
		Writer:      out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log", Usage: "save log output to `FILE` in addition to stdout"},
			&cli.StringFlag{Name: "cpuprofile", Usage: "write cpu profile to `FILE`"},
			&cli.StringFlag{Name: "memprofile", Usage: "write memory profile to `FILE`"},
		},
		Before: r.before,
		After:  r.after,
		Commands: []*cli.Command{
			{
				Name:      "bundle",
				Usage:     "adjust the project in the given JSON file and write reports",
				ArgsUsage: "project.json",
				Flags:     append(bundleFlags(), settingsFlags()...),
				Action:    r.bundle,
			},
			{
				Name:      "simulate",
				Usage:     "write a simulated aerial project to a JSON file",
				ArgsUsage: "project.json",
				Flags:     simulateFlags(),
				Action:    r.simulate,
			},
			{
				Name:  "serve",
				Usage: "serve the web front end and REST API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "listen on `ADDRESS`"},
					&cli.StringFlag{Name: "chroot", Usage: "change filesystem root to `DIR` before serving (requires root)"},
					&cli.IntFlag{Name: "setuid", Value: -1, Usage: "change user id to `UID` before serving, -1=don't"},
				},
				Action: r.serve,
			},
			{
				Name:  "legal",
				Usage: "show license and attribution information",
				Action: func(c *cli.Context) error {
					fmt.Fprint(r.log, legal)
					return nil
				},
			},
			{
				Name:  "models",
				Usage: "list the available sensor models",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(r.log, "%s\n", strings.Join(r.reg.Models(), "\n"))
					return nil
				},
			},
		},
	}
}

// Initializes logging to file in addition to stdout, and CPU profiling, if selected
func (r *runner) before(c *cli.Context) (err error) {
	r.start = time.Now()
	r.log, err = logging.NewTeeTo(r.out, c.String("log"))
	if err != nil {
		return errors.Wrapf(err, "unable to open logfile %q", c.String("log"))
	}
	if fileName := c.String("cpuprofile"); fileName != "" {
		r.cpuProf, err = os.Create(fileName)
		if err != nil {
			return errors.Wrap(err, "could not create CPU profile")
		}
		if err := pprof.StartCPUProfile(r.cpuProf); err != nil {
			return errors.Wrap(err, "could not start CPU profile")
		}
	}
	return nil
}

// Stops profiling, stores the memory profile if selected, and flushes the log
func (r *runner) after(c *cli.Context) (err error) {
	if r.log == nil {
		return nil
	}
	if r.cpuProf != nil {
		pprof.StopCPUProfile()
		r.cpuProf.Close()
	}
	if fileName := c.String("memprofile"); fileName != "" {
		f, err := os.Create(fileName)
		if err != nil {
			return errors.Wrap(err, "could not create memory profile")
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			return errors.Wrap(err, "could not write allocation profile")
		}
	}
	if c.Args().Present() {
		fmt.Fprintf(r.log, "\nDone after %v\n", time.Since(r.start).Round(time.Millisecond))
	}
	return r.log.Close()
}

func bundleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "out", Value: "%auto", Usage: "write reports to `DIR`. %auto replaces the suffix of the project file with _bundle"},
		&cli.BoolFlag{Name: "no-plots", Usage: "skip the residual plots"},
		&cli.StringFlag{Name: "save-project", Usage: "save the adjusted project to `FILE`"},
		&cli.StringFlag{Name: "save-network", Usage: "save the adjusted control network to `FILE`"},
	}
}

func (r *runner) bundle(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("bundle needs exactly one project file")
	}
	fileName := c.Args().First()
	p, err := project.LoadFile(fileName, r.reg)
	if err != nil {
		return err
	}
	if err := applySettingsFlags(c, p.Settings); err != nil {
		return err
	}
	fmt.Fprintf(r.log, "Loaded %s\n", p)

	engine, err := bundle.NewEngine(bundle.NewContext(r.log), p.Settings, p.Net, p.Serials, p.Sensors)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	res, err := engine.Solve(ctx)
	if err != nil {
		return err
	}

	outDir := c.String("out")
	if outDir == "%auto" {
		outDir = strings.TrimSuffix(fileName, filepath.Ext(fileName)) + "_bundle"
	}
	if err := report.WriteAll(outDir, res, p.Net, !c.Bool("no-plots"), r.log); err != nil {
		return err
	}
	if f := c.String("save-project"); f != "" {
		fmt.Fprintf(r.log, "Saving adjusted project to %s ...\n", f)
		if err := p.SaveFile(f); err != nil {
			return err
		}
	}
	if f := c.String("save-network"); f != "" {
		fmt.Fprintf(r.log, "Saving adjusted network to %s ...\n", f)
		if err := project.SaveNetworkFile(f, p.Net); err != nil {
			return err
		}
	}
	return nil
}

func simulateFlags() []cli.Flag {
	def := project.NewSimulateOptionsDefault()
	return []cli.Flag{
		&cli.IntFlag{Name: "images", Value: def.Images, Usage: "number of frame cameras, two per row"},
		&cli.IntFlag{Name: "grid", Value: def.GridSize, Usage: "points per side of the square point grid"},
		&cli.Float64Flag{Name: "spacing", Value: def.Spacing, Usage: "point grid spacing in metres"},
		&cli.Float64Flag{Name: "height", Value: def.Height, Usage: "flying height in metres"},
		&cli.Float64Flag{Name: "noise", Value: def.Noise, Usage: "measurement noise sigma in pixels"},
		&cli.Float64Flag{Name: "perturb-position", Value: def.PerturbPosition, Usage: "camera position error in metres"},
		&cli.Float64Flag{Name: "perturb-angle", Value: def.PerturbAngle, Usage: "camera angle error in radians"},
		&cli.UintFlag{Name: "seed", Value: uint(def.Seed), Usage: "random seed"},
	}
}

func (r *runner) simulate(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("simulate needs exactly one output file")
	}
	opt := &project.SimulateOptions{
		Images:          c.Int("images"),
		GridSize:        c.Int("grid"),
		Spacing:         c.Float64("spacing"),
		Height:          c.Float64("height"),
		Noise:           c.Float64("noise"),
		PerturbPosition: c.Float64("perturb-position"),
		PerturbAngle:    c.Float64("perturb-angle"),
		Seed:            uint32(c.Uint("seed")),
	}
	doc, err := project.Simulate(opt)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.log, "Writing %d images and %d points to %s ...\n", len(doc.Images), len(doc.Points), c.Args().First())
	return doc.WriteFile(c.Args().First())
}

func (r *runner) serve(c *cli.Context) error {
	if err := rest.MakeSandbox(c.String("chroot"), c.Int("setuid"), r.log); err != nil {
		return err
	}
	fmt.Fprintf(r.log, "Serving on %s\n", c.String("addr"))
	return rest.Serve(c.String("addr"), r.reg)
}
