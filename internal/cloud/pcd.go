package cloud

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadPCD parses an ASCII PCD stream carrying at least x, y, z fields.
// An intensity field is read when present; other fields are ignored.
// Binary PCD payloads are rejected.
func ReadPCD(r io.Reader) (Cloud, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	xi, yi, zi, ii := -1, -1, -1, -1
	inHeader := true
	var points Cloud

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		if inHeader {
			switch strings.ToUpper(fields[0]) {
			case "FIELDS":
				for i, name := range fields[1:] {
					switch strings.ToLower(name) {
					case "x":
						xi = i
					case "y":
						yi = i
					case "z":
						zi = i
					case "intensity":
						ii = i
					}
				}
			case "DATA":
				if len(fields) < 2 || strings.ToLower(fields[1]) != "ascii" {
					return nil, fmt.Errorf("unsupported PCD data format %q (only ascii)", strings.Join(fields[1:], " "))
				}
				if xi < 0 || yi < 0 || zi < 0 {
					return nil, fmt.Errorf("PCD header missing x/y/z fields")
				}
				inHeader = false
			}
			continue
		}

		if xi >= len(fields) || yi >= len(fields) || zi >= len(fields) {
			return nil, fmt.Errorf("short PCD data row %q", line)
		}
		var p Point
		var err error
		if p.X, err = strconv.ParseFloat(fields[xi], 64); err != nil {
			return nil, fmt.Errorf("bad x value %q: %v", fields[xi], err)
		}
		if p.Y, err = strconv.ParseFloat(fields[yi], 64); err != nil {
			return nil, fmt.Errorf("bad y value %q: %v", fields[yi], err)
		}
		if p.Z, err = strconv.ParseFloat(fields[zi], 64); err != nil {
			return nil, fmt.Errorf("bad z value %q: %v", fields[zi], err)
		}
		if ii >= 0 && ii < len(fields) {
			fv, err := strconv.ParseFloat(fields[ii], 64)
			if err != nil {
				return nil, fmt.Errorf("bad intensity value %q: %v", fields[ii], err)
			}
			if fv < 0 {
				fv = 0
			} else if fv > 255 {
				fv = 255
			}
			p.Intensity = uint8(fv)
		}
		points = append(points, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if inHeader {
		return nil, fmt.Errorf("PCD stream ended before DATA section")
	}
	return points, nil
}

// ReadPCDFile reads an ASCII PCD file from disk.
func ReadPCDFile(path string) (Cloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := ReadPCD(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return c, nil
}

// WritePCD writes the cloud as ASCII PCD with x, y, z and intensity
// fields.
func WritePCD(w io.Writer, c Cloud) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "VERSION .7\n")
	fmt.Fprintf(bw, "FIELDS x y z intensity\n")
	fmt.Fprintf(bw, "SIZE 4 4 4 4\n")
	fmt.Fprintf(bw, "TYPE F F F F\n")
	fmt.Fprintf(bw, "COUNT 1 1 1 1\n")
	fmt.Fprintf(bw, "WIDTH %d\n", len(c))
	fmt.Fprintf(bw, "HEIGHT 1\n")
	fmt.Fprintf(bw, "VIEWPOINT 0 0 0 1 0 0 0\n")
	fmt.Fprintf(bw, "POINTS %d\n", len(c))
	fmt.Fprintf(bw, "DATA ascii\n")
	for _, p := range c {
		if _, err := fmt.Fprintf(bw, "%g %g %g %d\n", p.X, p.Y, p.Z, p.Intensity); err != nil {
			return err
		}
	}
	return bw.Flush()
}
