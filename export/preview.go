package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/hannes/gridfinity-cutout/geometry"
)

// PreviewOptions control the thumbnail camera and size.
type PreviewOptions struct {
	Size        int     // output edge in pixels
	Supersample int     // render scale before downsampling
	Elevation   float64 // degrees above the XY plane
	Azimuth     float64 // degrees around Z
	Color       color.RGBA
}

func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{
		Size:        512,
		Supersample: 2,
		Elevation:   25,
		Azimuth:     45,
		Color:       color.RGBA{R: 0x4c, G: 0x8b, B: 0xd6, A: 0xff},
	}
}

type camera struct {
	right, up, forward geometry.Vec3
}

func newCamera(elevDeg, azimDeg float64) camera {
	elev := elevDeg * math.Pi / 180
	azim := azimDeg * math.Pi / 180
	// forward points from the eye towards the scene
	eye := geometry.V(math.Cos(elev)*math.Cos(azim), math.Cos(elev)*math.Sin(azim), math.Sin(elev))
	forward := eye.Negate()
	right := forward.Cross(geometry.V(0, 0, 1)).Unit()
	up := right.Cross(forward).Unit()
	return camera{right: right, up: up, forward: forward}
}

func (c camera) project(v geometry.Vec3) (x, y, depth float64) {
	return v.Dot(c.right), v.Dot(c.up), v.Dot(c.forward)
}

// Render rasterises the solid with flat shading and a z-buffer onto a
// transparent image.
func Render(solid *geometry.Solid, opts PreviewOptions) (*image.RGBA, error) {
	if solid.IsEmpty() {
		return nil, fmt.Errorf("render preview: empty solid")
	}
	if opts.Size <= 0 {
		opts.Size = 512
	}
	if opts.Supersample < 1 {
		opts.Supersample = 1
	}
	cam := newCamera(opts.Elevation, opts.Azimuth)
	tris := solid.Triangles()

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, t := range tris {
		for _, v := range t.Vertices {
			x, y, _ := cam.project(v)
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
	}

	n := opts.Size * opts.Supersample
	margin := 0.05 * float64(n)
	span := math.Max(maxX-minX, maxY-minY)
	if span <= 0 {
		span = 1
	}
	scale := (float64(n) - 2*margin) / span
	offX := (float64(n) - (maxX-minX)*scale) / 2
	offY := (float64(n) - (maxY-minY)*scale) / 2

	img := image.NewRGBA(image.Rect(0, 0, n, n))
	zbuf := make([]float64, n*n)
	for i := range zbuf {
		zbuf[i] = math.Inf(1)
	}
	light := geometry.V(-0.3, -0.5, 1).Unit()

	for _, t := range tris {
		// back-face culling
		if t.Normal.Dot(cam.forward) >= 0 {
			continue
		}
		var px, py, pz [3]float64
		for i, v := range t.Vertices {
			x, y, z := cam.project(v)
			px[i] = (x-minX)*scale + offX
			py[i] = float64(n) - ((y-minY)*scale + offY)
			pz[i] = z
		}
		shade := 0.35 + 0.65*math.Max(0, t.Normal.Dot(light))
		c := color.RGBA{
			R: uint8(float64(opts.Color.R) * shade),
			G: uint8(float64(opts.Color.G) * shade),
			B: uint8(float64(opts.Color.B) * shade),
			A: 0xff,
		}
		fillTriangle(img, zbuf, n, px, py, pz, c)
	}

	if opts.Supersample == 1 {
		return img, nil
	}
	out := image.NewRGBA(image.Rect(0, 0, opts.Size, opts.Size))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return out, nil
}

func edge(ax, ay, bx, by, cx, cy float64) float64 {
	return (cx-ax)*(by-ay) - (cy-ay)*(bx-ax)
}

func fillTriangle(img *image.RGBA, zbuf []float64, n int, px, py, pz [3]float64, c color.RGBA) {
	area := edge(px[0], py[0], px[1], py[1], px[2], py[2])
	if math.Abs(area) < 1e-12 {
		return
	}
	x0 := max(0, int(math.Floor(min(px[0], px[1], px[2]))))
	x1 := min(n-1, int(math.Ceil(max(px[0], px[1], px[2]))))
	y0 := max(0, int(math.Floor(min(py[0], py[1], py[2]))))
	y1 := min(n-1, int(math.Ceil(max(py[0], py[1], py[2]))))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			sx, sy := float64(x)+0.5, float64(y)+0.5
			w0 := edge(px[1], py[1], px[2], py[2], sx, sy) / area
			w1 := edge(px[2], py[2], px[0], py[0], sx, sy) / area
			w2 := edge(px[0], py[0], px[1], py[1], sx, sy) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*pz[0] + w1*pz[1] + w2*pz[2]
			i := y*n + x
			if z >= zbuf[i] {
				continue
			}
			zbuf[i] = z
			img.SetRGBA(x, y, c)
		}
	}
}

// WritePreview renders the solid and encodes it as PNG.
func WritePreview(w io.Writer, solid *geometry.Solid, opts PreviewOptions) error {
	img, err := Render(solid, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}
