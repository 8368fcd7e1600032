package cloud

import (
	"bytes"
	"strings"
	"testing"

	"github.com/banshee-data/mapalign/internal/geom"
)

const samplePCD = `# .PCD v.7 - Point Cloud Data file format
VERSION .7
FIELDS x y z intensity
SIZE 4 4 4 4
TYPE F F F F
COUNT 1 1 1 1
WIDTH 3
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 3
DATA ascii
1.0 2.0 3.0 100
-4.5 0 1.25 0
0 0 0 255
`

func TestReadPCD_Sample(t *testing.T) {
	c, err := ReadPCD(strings.NewReader(samplePCD))
	if err != nil {
		t.Fatalf("ReadPCD failed: %v", err)
	}
	if len(c) != 3 {
		t.Fatalf("expected 3 points, got %d", len(c))
	}
	if c[0].X != 1.0 || c[0].Y != 2.0 || c[0].Z != 3.0 || c[0].Intensity != 100 {
		t.Errorf("first point wrong: %+v", c[0])
	}
	if c[1].X != -4.5 {
		t.Errorf("negative coordinate lost: %+v", c[1])
	}
	if c[2].Intensity != 255 {
		t.Errorf("intensity wrong: %+v", c[2])
	}
}

func TestReadPCD_RejectsBinary(t *testing.T) {
	src := strings.Replace(samplePCD, "DATA ascii", "DATA binary", 1)
	if _, err := ReadPCD(strings.NewReader(src)); err == nil {
		t.Error("binary PCD should be rejected")
	}
}

func TestReadPCD_MissingXYZ(t *testing.T) {
	src := "FIELDS a b c\nDATA ascii\n1 2 3\n"
	if _, err := ReadPCD(strings.NewReader(src)); err == nil {
		t.Error("PCD without x/y/z fields should be rejected")
	}
}

func TestReadPCD_HeaderOnly(t *testing.T) {
	src := "VERSION .7\nFIELDS x y z\n"
	if _, err := ReadPCD(strings.NewReader(src)); err == nil {
		t.Error("truncated PCD should be rejected")
	}
}

func TestWritePCD_RoundTrip(t *testing.T) {
	in := Cloud{
		{X: 1.5, Y: -2, Z: 0.25, Intensity: 17},
		{X: 0, Y: 0, Z: 0, Intensity: 255},
	}
	var buf bytes.Buffer
	if err := WritePCD(&buf, in); err != nil {
		t.Fatalf("WritePCD failed: %v", err)
	}
	out, err := ReadPCD(&buf)
	if err != nil {
		t.Fatalf("ReadPCD failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d points, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("point %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestTransform_MovesPoints(t *testing.T) {
	c := Cloud{{X: 1, Y: 0, Z: 0, Intensity: 9}}
	moved := c.Transform(geom.Translation(1, 2, 3))
	if moved[0].X != 2 || moved[0].Y != 2 || moved[0].Z != 3 {
		t.Errorf("transformed point wrong: %+v", moved[0])
	}
	if moved[0].Intensity != 9 {
		t.Errorf("intensity not preserved: %d", moved[0].Intensity)
	}
	// Original untouched.
	if c[0].X != 1 {
		t.Error("input cloud mutated")
	}
}
