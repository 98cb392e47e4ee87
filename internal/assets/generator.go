// Package assets renders the raster images a pass bundle must contain.
// Rendering is purely in-memory; a bundle is never missing a file because
// of a bad logo upload.
package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
)

// ImageSpec names one required bundle image and its mandated pixel size.
type ImageSpec struct {
	Name   string
	Width  int
	Height int
}

// Required is the fixed file set the consuming wallet expects.
var Required = []ImageSpec{
	{Name: "icon.png", Width: 29, Height: 29},
	{Name: "icon@2x.png", Width: 58, Height: 58},
	{Name: "icon@3x.png", Width: 87, Height: 87},
	{Name: "logo.png", Width: 160, Height: 50},
	{Name: "logo@2x.png", Width: 320, Height: 100},
}

// fallbackPNG is a well-formed 1x1 transparent PNG, substituted whenever
// rendering or encoding fails. Completeness beats fidelity here.
var fallbackPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

type Generator struct{}

func NewGenerator() *Generator { return &Generator{} }

// Render produces every required image. When logoPNG decodes it is fitted
// onto each canvas; otherwise the canvas is tinted with the brand color.
// Any per-image failure substitutes the baked placeholder for that name.
func (g *Generator) Render(logoPNG []byte, brandColor string) map[string][]byte {
	out := make(map[string][]byte, len(Required))

	var logo image.Image
	if len(logoPNG) > 0 {
		if img, err := png.Decode(bytes.NewReader(logoPNG)); err == nil {
			logo = img
		}
	}
	tint := ParseHexColor(brandColor)

	for _, spec := range Required {
		b, err := renderOne(spec, logo, tint)
		if err != nil {
			b = fallbackPNG
		}
		out[spec.Name] = b
	}
	return out
}

func renderOne(spec ImageSpec, logo image.Image, tint color.RGBA) ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	if logo != nil {
		fitInto(canvas, logo)
	} else {
		draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: tint}, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fitInto scales src into dst with nearest-neighbor sampling, preserving
// aspect ratio and centering on a transparent background.
func fitInto(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	db := dst.Bounds()

	scaleX := float64(db.Dx()) / float64(sb.Dx())
	scaleY := float64(db.Dy()) / float64(sb.Dy())
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}

	w := int(float64(sb.Dx()) * scale)
	h := int(float64(sb.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	offX := (db.Dx() - w) / 2
	offY := (db.Dy() - h) / 2

	for y := 0; y < h; y++ {
		sy := sb.Min.Y + int(float64(y)/scale)
		if sy >= sb.Max.Y {
			sy = sb.Max.Y - 1
		}
		for x := 0; x < w; x++ {
			sx := sb.Min.X + int(float64(x)/scale)
			if sx >= sb.Max.X {
				sx = sb.Max.X - 1
			}
			dst.Set(db.Min.X+offX+x, db.Min.Y+offY+y, src.At(sx, sy))
		}
	}
}

// ParseHexColor parses "#RRGGBB" (leading '#' optional). Malformed input
// falls back to a neutral slate tone rather than failing the render.
func ParseHexColor(s string) color.RGBA {
	const def = "4A5568"
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		s = def
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		v, _ = strconv.ParseUint(def, 16, 32)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
