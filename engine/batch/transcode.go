package batch

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the WebP decoder used by imaging.Decode
)

const (
	DefaultJPEGQuality = 95
	MinJPEGQuality     = 50
	MaxJPEGQuality     = 100
)

// DecodeImage decodes any registered raster format (jpeg, png, gif, bmp, tiff, webp)
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(false))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Rotate turns img clockwise by r. The canvas grows to fit so nothing is cropped.
func Rotate(img image.Image, r Rotation) image.Image {
	switch r {
	case Rotate90:
		// imaging rotates counter-clockwise
		return imaging.Rotate270(img)
	case Rotate180:
		return imaging.Rotate180(img)
	case Rotate270:
		return imaging.Rotate90(img)
	}
	return img
}

// Transcode rotates img and encodes it in the requested format. quality is
// only used for JPEG; zero selects DefaultJPEGQuality.
func Transcode(img image.Image, r Rotation, format OutputFormat, quality int) ([]byte, error) {
	return encode(Rotate(img, r), format, quality)
}

func encode(img image.Image, format OutputFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		if quality == 0 {
			quality = DefaultJPEGQuality
		}
		err = imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// flatten drops the alpha channel so the JPEG encoder sees plain RGB.
// Palette images are expanded on the way.
func flatten(img image.Image) image.Image {
	if _, paletted := img.(*image.Paletted); !paletted {
		if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
			return img
		}
	}
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// thumbnail renders a small JPEG preview that fits in a size x size box
func thumbnail(img image.Image, size int) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() > size || b.Dy() > size {
		img = imaging.Fit(img, size, size, imaging.Box)
	}
	return encode(img, FormatJPEG, 80)
}
