// Plots a recorded localization run: the vehicle trajectory in the map
// plane and the heading over frame index, from the pose log CSV.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mapalign/internal/poselog"
)

var (
	inPath  = flag.String("in", "result.csv", "Pose log CSV to plot")
	outDir  = flag.String("out", "plots", "Output directory for PNG files")
	title   = flag.String("title", "", "Plot title (defaults to the input file name)")
	markers = flag.Bool("markers", false, "Draw a point at every pose in the trajectory plot")
)

type pose struct {
	frame            int
	x, y, z          float64
	yaw, pitch, roll float64
}

func readPoseLog(path string) ([]pose, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var poses []pose
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == poselog.Header {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 7 {
			return nil, fmt.Errorf("%s line %d: expected 7 fields, got %d", path, lineNo, len(parts))
		}
		frame, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad frame index %q", path, lineNo, parts[0])
		}
		vals := make([]float64, 6)
		for i, s := range parts[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad value %q", path, lineNo, s)
			}
			vals[i] = v
		}
		poses = append(poses, pose{frame, vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(poses) == 0 {
		return nil, fmt.Errorf("no poses in %s", path)
	}
	return poses, nil
}

func plotTrajectory(poses []pose, name, outFile string) error {
	p := plot.New()
	p.Title.Text = name + " trajectory"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	pts := make(plotter.XYs, len(poses))
	for i, ps := range poses {
		pts[i] = plotter.XY{X: ps.x, Y: ps.y}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	if *markers {
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.Radius = vg.Points(1.5)
		p.Add(scatter)
	}

	// Mark the start so direction of travel is readable.
	start, err := plotter.NewScatter(plotter.XYs{{X: poses[0].x, Y: poses[0].y}})
	if err != nil {
		return err
	}
	start.Color = color.RGBA{R: 200, A: 255}
	start.Radius = vg.Points(4)
	p.Add(start)

	return p.Save(8*vg.Inch, 8*vg.Inch, outFile)
}

func plotHeading(poses []pose, name, outFile string) error {
	p := plot.New()
	p.Title.Text = name + " heading"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "yaw (rad)"

	pts := make(plotter.XYs, len(poses))
	for i, ps := range poses {
		pts[i] = plotter.XY{X: float64(ps.frame), Y: ps.yaw}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	return p.Save(14*vg.Inch, 6*vg.Inch, outFile)
}

func main() {
	flag.Parse()

	poses, err := readPoseLog(*inPath)
	if err != nil {
		log.Fatalf("Failed to read pose log: %v", err)
	}

	name := *title
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(*inPath), filepath.Ext(*inPath))
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	trajFile := filepath.Join(*outDir, name+"_trajectory.png")
	if err := plotTrajectory(poses, name, trajFile); err != nil {
		log.Fatalf("Failed to plot trajectory: %v", err)
	}
	headingFile := filepath.Join(*outDir, name+"_heading.png")
	if err := plotHeading(poses, name, headingFile); err != nil {
		log.Fatalf("Failed to plot heading: %v", err)
	}

	log.Printf("Plotted %d poses: %s, %s", len(poses), trajFile, headingFile)
}
