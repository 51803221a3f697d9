// Package imaging loads images for painting. Images are reduced to packed
// 8-bit RGB rows, the format the dither engine consumes.
package imaging

import (
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Pixels is an image as packed RGB rows.
type Pixels struct {
	Pix    []uint8
	Width  int
	Height int
}

// Probe checks that the file at path is an image that Load can decode. Only
// the header is read.
func Probe(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("image has no pixels")
	}
	return nil
}

// Load decodes the image at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return img, nil
}

// ResizeHeight scales img vertically to height rows. The width is kept: it
// maps to travel, not to the strip, so columns stay at native resolution.
func ResizeHeight(img image.Image, height int) image.Image {
	b := img.Bounds()
	if b.Dy() == height {
		return img
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// ToPixels converts img to packed RGB. Alpha is dropped without darkening
// the color underneath, so translucent pixels paint at full strength.
func ToPixels(img image.Image) *Pixels {
	b := img.Bounds()

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	px := &Pixels{
		Pix:    make([]uint8, w*h*3),
		Width:  w,
		Height: h,
	}

	for y := 0; y < h; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := px.Pix[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3+0] = src[x*4+0]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}

	return px
}
