package assets_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stampably/walletpass/internal/assets"
)

func TestRender_TintedSet(t *testing.T) {
	g := assets.NewGenerator()

	out := g.Render(nil, "#1D3557")
	require.Len(t, out, len(assets.Required))

	for _, spec := range assets.Required {
		b, ok := out[spec.Name]
		require.True(t, ok, "missing %s", spec.Name)

		img, err := png.Decode(bytes.NewReader(b))
		require.NoError(t, err)
		require.Equal(t, spec.Width, img.Bounds().Dx())
		require.Equal(t, spec.Height, img.Bounds().Dy())
	}
}

func TestRender_UsesUploadedLogo(t *testing.T) {
	// Solid red 10x10 source logo.
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			src.Set(x, y, color.RGBA{R: 0xff, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out := assets.NewGenerator().Render(buf.Bytes(), "#000000")

	img, err := png.Decode(bytes.NewReader(out["icon.png"]))
	require.NoError(t, err)
	r, _, _, a := img.At(img.Bounds().Dx()/2, img.Bounds().Dy()/2).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Equal(t, uint32(0xffff), a)
}

func TestRender_BadLogoFallsBackToTint(t *testing.T) {
	out := assets.NewGenerator().Render([]byte("not a png"), "#336699")
	require.Len(t, out, len(assets.Required))

	img, err := png.Decode(bytes.NewReader(out["logo.png"]))
	require.NoError(t, err)
	r, g, b, _ := img.At(0, 0).RGBA()
	require.Equal(t, uint32(0x3333), r)
	require.Equal(t, uint32(0x6666), g)
	require.Equal(t, uint32(0x9999), b)
}

func TestParseHexColor(t *testing.T) {
	c := assets.ParseHexColor("#1D3557")
	require.Equal(t, color.RGBA{R: 0x1d, G: 0x35, B: 0x57, A: 0xff}, c)

	// Malformed input keeps rendering alive with the neutral default.
	def := assets.ParseHexColor("nope")
	require.Equal(t, uint8(0xff), def.A)
}
