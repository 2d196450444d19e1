package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hannes/gridfinity-cutout/export"
	"github.com/hannes/gridfinity-cutout/geometry"
	"github.com/hannes/gridfinity-cutout/gridfinity"
)

type generateFlags struct {
	cfg          gridfinity.ContainerConfig
	compartments string
	fingers      []string
	circles      []string
	rects        []string
	output       string
	format       string
	preview      bool
	demo         bool
}

func generateCmd() *cobra.Command {
	f := &generateFlags{cfg: gridfinity.DefaultContainerConfig()}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a Gridfinity container",
		Example: `  gridfinity generate --x 2 --y 1 --z 3 --compartments 2x1
  gridfinity generate --circle 0,0,30 --insert --export pocket.step --format step
  gridfinity generate --demo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config()
			if err != nil {
				return err
			}
			gen, err := gridfinity.NewGenerator(cfg)
			if err != nil {
				return err
			}
			return writeOutputs(cmd.OutOrStdout(), gen.Build(), f.output, f.format, f.preview)
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&f.cfg.XSlots, "x", f.cfg.XSlots, "Slots along X (42 mm each)")
	fl.IntVar(&f.cfg.YSlots, "y", f.cfg.YSlots, "Slots along Y (42 mm each)")
	fl.IntVar(&f.cfg.ZUnits, "z", f.cfg.ZUnits, "Height units (7 mm each)")
	fl.Float64Var(&f.cfg.WallThickness, "wall", f.cfg.WallThickness, "Wall thickness in mm")
	fl.Float64Var(&f.cfg.FloorThickness, "floor", f.cfg.FloorThickness, "Floor thickness in mm")
	fl.BoolVar(&f.cfg.Lip, "lip", f.cfg.Lip, "Add the stacking lip")
	fl.BoolVar(&f.cfg.Magnets, "magnets", f.cfg.Magnets, "Add magnet holes underneath")
	fl.BoolVar(&f.cfg.Screws, "screws", f.cfg.Screws, "Add screw holes underneath")
	fl.BoolVar(&f.cfg.Insert, "insert", f.cfg.Insert, "Fill the cavity and cut pockets from the top")
	fl.Float64Var(&f.cfg.CutoutDepth, "cutout-depth", f.cfg.CutoutDepth, "Pocket depth in mm when --insert is set")
	fl.Float64Var(&f.cfg.Clearance, "clearance", f.cfg.Clearance, "Extra room around cutouts in mm")
	fl.StringVar(&f.compartments, "compartments", "", "Compartment grid AxB, e.g. 2x3")
	fl.StringArrayVar(&f.fingers, "finger", nil, "Finger cutout side,width,depth,height (repeatable)")
	fl.StringArrayVar(&f.circles, "circle", nil, "Round pocket x,y,d (repeatable)")
	fl.StringArrayVar(&f.rects, "rect", nil, "Rectangular pocket x,y,w,h,r (repeatable)")
	fl.StringVarP(&f.output, "export", "o", "container.stl", "Output file")
	fl.StringVar(&f.format, "format", "", "Output format stl or step (default: from the file extension)")
	fl.BoolVar(&f.preview, "preview", false, "Also write a PNG preview next to the output")
	fl.BoolVar(&f.demo, "demo", false, "Build a sample bin with every feature enabled")
	return cmd
}

func (f *generateFlags) config() (gridfinity.ContainerConfig, error) {
	if f.demo {
		return demoConfig(), nil
	}
	cfg := f.cfg
	if f.compartments != "" {
		cx, cy, err := gridfinity.ParseCompartments(f.compartments)
		if err != nil {
			return cfg, err
		}
		cfg.CompartmentsX, cfg.CompartmentsY = cx, cy
	}
	for _, s := range f.fingers {
		fc, err := gridfinity.ParseFinger(s)
		if err != nil {
			return cfg, err
		}
		cfg.FingerCutouts = append(cfg.FingerCutouts, fc)
	}
	for _, s := range f.circles {
		c, err := gridfinity.ParseCircle(s)
		if err != nil {
			return cfg, err
		}
		cfg.Circles = append(cfg.Circles, c)
	}
	for _, s := range f.rects {
		r, err := gridfinity.ParseRect(s)
		if err != nil {
			return cfg, err
		}
		cfg.Rects = append(cfg.Rects, r)
	}
	return cfg, nil
}

func demoConfig() gridfinity.ContainerConfig {
	cfg := gridfinity.DefaultContainerConfig()
	cfg.XSlots = 2
	cfg.YSlots = 2
	cfg.ZUnits = 4
	cfg.Lip = true
	cfg.Magnets = true
	cfg.Screws = true
	cfg.CompartmentsX = 2
	cfg.FingerCutouts = []gridfinity.FingerCutout{{Side: gridfinity.SideNegY, Width: 20, Depth: 10, Height: 12}}
	return cfg
}

func baseplateCmd() *cobra.Command {
	cfg := gridfinity.DefaultBaseplateConfig()
	var output string
	cmd := &cobra.Command{
		Use:   "baseplate",
		Short: "Generate a Gridfinity baseplate",
		RunE: func(cmd *cobra.Command, args []string) error {
			solid, err := gridfinity.BuildBaseplate(cfg)
			if err != nil {
				return err
			}
			return writeOutputs(cmd.OutOrStdout(), solid, output, "", false)
		},
	}
	cmd.Flags().IntVar(&cfg.XCells, "x", cfg.XCells, "Cells along X")
	cmd.Flags().IntVar(&cfg.YCells, "y", cfg.YCells, "Cells along Y")
	cmd.Flags().BoolVar(&cfg.Magnets, "magnets", cfg.Magnets, "Add magnet pockets")
	cmd.Flags().StringVarP(&output, "export", "o", "baseplate.stl", "Output file")
	return cmd
}

// outputFormat picks the explicit format, else the one named by the
// file extension.
func outputFormat(path, explicit string) (export.Format, error) {
	if explicit != "" {
		return export.ParseFormat(strings.ToLower(explicit))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".step", ".stp":
		return export.FormatSTEP, nil
	case ".stl", "":
		return export.FormatSTL, nil
	}
	return "", fmt.Errorf("cannot infer format from %q, pass --format", path)
}

func writeOutputs(stdout io.Writer, solid *geometry.Solid, path, format string, preview bool) error {
	f, err := outputFormat(path, format)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := writeFile(path, func(w io.Writer) error {
		return export.Write(w, f, solid, name)
	}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%d triangles)\n", path, len(solid.Triangles()))

	if preview {
		png := strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
		if err := writeFile(png, func(w io.Writer) error {
			return export.WritePreview(w, solid, export.DefaultPreviewOptions())
		}); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", png)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(out); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}
