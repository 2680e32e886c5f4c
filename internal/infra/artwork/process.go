package artwork

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/cockroachdb/errors"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/osa030/groovebox/internal/domain/failure"
)

// Process decodes an image, crops it to a centered square and scales it
// down to at most size pixels per side. The result is PNG encoded.
func Process(data []byte, size int) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, failure.Mark(err, failure.ErrUnsupportedFormat, "failed to decode cover image")
	}

	bounds := src.Bounds()
	side := min(bounds.Dx(), bounds.Dy())
	if side == 0 {
		return nil, errors.Mark(errors.Newf("empty %s image", format), failure.ErrUnsupportedFormat)
	}

	// Crop from the center
	offset := image.Pt(bounds.Min.X+(bounds.Dx()-side)/2, bounds.Min.Y+(bounds.Dy()-side)/2)
	square := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(square, square.Bounds(), src, offset, draw.Src)

	var out image.Image = square
	if size > 0 && side > size {
		out = resize.Resize(uint(size), uint(size), square, resize.Lanczos3)
	}
	return encodePNG(out)
}

// Placeholder renders a cover for tracks without artwork. The colour is
// derived from key so that an album keeps the same placeholder.
func Placeholder(key string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	sum := h.Sum32()

	base := color.RGBA{R: byte(sum >> 16), G: byte(sum >> 8), B: byte(sum), A: 0xff}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		// Darken towards the bottom
		shade := 255 - (y*96)/size
		c := color.RGBA{
			R: byte(int(base.R) * shade / 255),
			G: byte(int(base.G) * shade / 255),
			B: byte(int(base.B) * shade / 255),
			A: 0xff,
		}
		draw.Draw(img, image.Rect(0, y, size, y+1), image.NewUniform(c), image.Point{}, draw.Src)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "failed to encode png")
	}
	return buf.Bytes(), nil
}
