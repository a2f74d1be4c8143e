// Package imaging validates uploaded images and renders resized derivatives.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// Supported content types.
const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	WebP = "image/webp"
)

var magic = map[string][]byte{
	JPEG: {0xFF, 0xD8, 0xFF},
	PNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	WebP: {0x52, 0x49, 0x46, 0x46}, // RIFF....WEBP
}

// Info describes a validated image.
type Info struct {
	ContentType string
	Width       int
	Height      int
}

// DetectType identifies the image format from magic bytes.
func DetectType(data []byte) (string, error) {
	if len(data) < 12 {
		return "", fmt.Errorf("payload too short to be an image: %w", domain.ErrUnsupportedMedia)
	}
	switch {
	case bytes.HasPrefix(data, magic[JPEG]):
		return JPEG, nil
	case bytes.HasPrefix(data, magic[PNG]):
		return PNG, nil
	case bytes.HasPrefix(data, magic[WebP]) && string(data[8:12]) == "WEBP":
		return WebP, nil
	}
	return "", fmt.Errorf("unrecognised image format: %w", domain.ErrUnsupportedMedia)
}

// Decode decodes data of the given content type.
func Decode(data []byte, contentType string) (image.Image, error) {
	r := bytes.NewReader(data)
	var (
		img image.Image
		err error
	)
	switch contentType {
	case JPEG:
		img, err = jpeg.Decode(r)
	case PNG:
		img, err = png.Decode(r)
	case WebP:
		img, err = webp.Decode(r)
	default:
		return nil, fmt.Errorf("content type %q: %w", contentType, domain.ErrUnsupportedMedia)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", contentType, err, domain.ErrUnsupportedMedia)
	}
	return img, nil
}

// Limits bounds what an upload may decode to. MaxPixels caps Width*Height;
// zero means MaxWidth*MaxHeight.
type Limits struct {
	MaxWidth  int
	MaxHeight int
	MaxPixels int
}

func (l Limits) pixelBudget() int {
	if l.MaxPixels > 0 {
		return l.MaxPixels
	}
	return l.MaxWidth * l.MaxHeight
}

// Header sniffs the format and reads only the image header, so a tiny file
// that claims huge dimensions is refused without allocating its pixels.
func Header(data []byte, lim Limits) (Info, error) {
	ct, err := DetectType(data)
	if err != nil {
		return Info{}, err
	}
	r := bytes.NewReader(data)
	var cfg image.Config
	switch ct {
	case JPEG:
		cfg, err = jpeg.DecodeConfig(r)
	case PNG:
		cfg, err = png.DecodeConfig(r)
	case WebP:
		cfg, err = webp.DecodeConfig(r)
	}
	if err != nil {
		return Info{}, fmt.Errorf("read %s header: %v: %w", ct, err, domain.ErrUnsupportedMedia)
	}
	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		return Info{}, fmt.Errorf("empty image: %w", domain.ErrUnsupportedMedia)
	}
	if w > lim.MaxWidth || h > lim.MaxHeight {
		return Info{}, fmt.Errorf("image %dx%d exceeds %dx%d: %w", w, h, lim.MaxWidth, lim.MaxHeight, domain.ErrTooLarge)
	}
	if budget := lim.pixelBudget(); w > budget/h {
		return Info{}, fmt.Errorf("image %dx%d exceeds %d pixels: %w", w, h, budget, domain.ErrTooLarge)
	}
	return Info{ContentType: ct, Width: w, Height: h}, nil
}

// Validate checks the header against lim and then fully decodes, so a body
// that is truncated or corrupt behind a valid header is refused too. It never
// touches the network.
func Validate(data []byte, lim Limits) (Info, error) {
	info, err := Header(data, lim)
	if err != nil {
		return Info{}, err
	}
	img, err := Decode(data, info.ContentType)
	if err != nil {
		return Info{}, err
	}
	if b := img.Bounds(); b.Dx() != info.Width || b.Dy() != info.Height {
		return Info{}, fmt.Errorf("decoded %dx%d, header said %dx%d: %w", b.Dx(), b.Dy(), info.Width, info.Height, domain.ErrUnsupportedMedia)
	}
	return info, nil
}

// Resize scales img to fit d, center-cropping when d.Crop is set. Images are
// never upscaled.
func Resize(img image.Image, d domain.Derivative) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	var dstW, dstH int
	if d.Crop && d.Width > 0 && d.Height > 0 {
		dstW, dstH = d.Width, d.Height
		aspectSrc := float64(srcW) / float64(srcH)
		aspectDst := float64(dstW) / float64(dstH)

		var crop image.Rectangle
		if aspectSrc > aspectDst {
			newW := int(float64(srcH) * aspectDst)
			x := bounds.Min.X + (srcW-newW)/2
			crop = image.Rect(x, bounds.Min.Y, x+newW, bounds.Max.Y)
		} else {
			newH := int(float64(srcW) / aspectDst)
			y := bounds.Min.Y + (srcH-newH)/2
			crop = image.Rect(bounds.Min.X, y, bounds.Max.X, y+newH)
		}
		cropped := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
		draw.Draw(cropped, cropped.Bounds(), img, crop.Min, draw.Src)
		img = cropped
		srcW, srcH = crop.Dx(), crop.Dy()
	} else {
		switch {
		case d.Height == 0:
			dstW = d.Width
			dstH = int(float64(srcH) * float64(d.Width) / float64(srcW))
		case d.Width == 0:
			dstH = d.Height
			dstW = int(float64(srcW) * float64(d.Height) / float64(srcH))
		default:
			ratio := min(float64(d.Width)/float64(srcW), float64(d.Height)/float64(srcH))
			dstW = int(float64(srcW) * ratio)
			dstH = int(float64(srcH) * ratio)
		}
	}

	if dstW > srcW || dstH > srcH {
		dstW, dstH = srcW, srcH
	}
	dstW, dstH = max(dstW, 1), max(dstH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Render decodes an original and encodes the derivative as JPEG.
func Render(data []byte, d domain.Derivative) ([]byte, error) {
	ct, err := DetectType(data)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data, ct)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Resize(img, d), &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode %s: %w", d.Name, err)
	}
	return buf.Bytes(), nil
}
