// Package export writes solids to STL, STEP and PNG previews.
package export

import (
	"fmt"
	"io"

	"github.com/hschendel/stl"

	"github.com/hannes/gridfinity-cutout/geometry"
)

// Format is a downloadable CAD file format.
type Format string

const (
	FormatSTL  Format = "stl"
	FormatSTEP Format = "step"
)

// ParseFormat accepts "stl" and "step".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatSTL, FormatSTEP:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported file type %q", s)
}

// Write encodes the solid in the given format.
func Write(w io.Writer, f Format, solid *geometry.Solid, name string) error {
	switch f {
	case FormatSTL:
		return WriteSTL(w, solid, name)
	case FormatSTEP:
		return WriteSTEP(w, solid, name)
	}
	return fmt.Errorf("unsupported file type %q", f)
}

func vec(v geometry.Vec3) stl.Vec3 {
	return stl.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// ToSTL converts the solid to an STL mesh named name.
func ToSTL(solid *geometry.Solid, name string) *stl.Solid {
	tris := solid.Triangles()
	out := &stl.Solid{Name: name, Triangles: make([]stl.Triangle, 0, len(tris))}
	for _, t := range tris {
		out.Triangles = append(out.Triangles, stl.Triangle{
			Normal:   vec(t.Normal),
			Vertices: [3]stl.Vec3{vec(t.Vertices[0]), vec(t.Vertices[1]), vec(t.Vertices[2])},
		})
	}
	return out
}

// WriteSTL writes a binary STL.
func WriteSTL(w io.Writer, solid *geometry.Solid, name string) error {
	if solid.IsEmpty() {
		return fmt.Errorf("write stl: empty solid")
	}
	if err := ToSTL(solid, name).WriteAll(w); err != nil {
		return fmt.Errorf("write stl: %w", err)
	}
	return nil
}

// WriteASCIISTL writes a text STL.
func WriteASCIISTL(w io.Writer, solid *geometry.Solid, name string) error {
	if solid.IsEmpty() {
		return fmt.Errorf("write stl: empty solid")
	}
	s := ToSTL(solid, name)
	s.IsAscii = true
	if err := s.WriteAll(w); err != nil {
		return fmt.Errorf("write stl: %w", err)
	}
	return nil
}
