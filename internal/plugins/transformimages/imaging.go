package transformimages

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"slices"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register the webp decoder
)

// Default encoder qualities.
const (
	DefaultJPEGQuality = 85
	DefaultWebPQuality = 80
)

// Func is a named image operation. arg is the value given in the transformation.
type Func func(img image.Image, arg any) (image.Image, error)

// builtinFuncs are always available; Options.Functions may add or replace entries.
func builtinFuncs() map[string]Func {
	return map[string]Func{
		"grayscale": grayscale,
		"rotate":    rotate,
		"flip":      flip,
		"flop":      flop,
	}
}

// Supported reports whether images can be encoded to format.
func Supported(format string) bool {
	switch normalizeFormat(format) {
	case "jpg", "png", "gif", "webp":
		return true
	}
	return false
}

func decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}

func encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpg":
		if quality <= 0 {
			quality = DefaultJPEGQuality
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: min(quality, 100)})
	case "png":
		err = (&png.Encoder{CompressionLevel: png.DefaultCompression}).Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "webp":
		if quality <= 0 {
			quality = DefaultWebPQuality
		}
		err = webp.Encode(&buf, img, &webp.Options{Lossless: quality >= 100, Quality: float32(min(quality, 100))})
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resize scales img into r without enlarging it.
func resize(img image.Image, r *Resize) image.Image {
	if r == nil || (r.Width <= 0 && r.Height <= 0) {
		return img
	}
	b := img.Bounds()
	w0, h0 := float64(b.Dx()), float64(b.Dy())
	if w0 == 0 || h0 == 0 {
		return img
	}

	src := b
	var w, h float64
	switch {
	case r.Width > 0 && r.Height > 0 && r.Fit == FitCover:
		w, h = float64(r.Width), float64(r.Height)
		if k := math.Min(1, math.Min(w0/w, h0/h)); k < 1 {
			w, h = w*k, h*k
		}
		src = coverCrop(b, w/h)
	case r.Width > 0 && r.Height > 0:
		scale := math.Min(float64(r.Width)/w0, float64(r.Height)/h0)
		w, h = w0*scale, h0*scale
	case r.Width > 0:
		w = float64(r.Width)
		h = h0 * w / w0
	default:
		h = float64(r.Height)
		w = w0 * h / h0
	}
	if r.Fit != FitCover && (w >= w0 || h >= h0) {
		return img
	}

	tw, th := max(1, int(math.Round(w))), max(1, int(math.Round(h)))
	if src == b && tw == b.Dx() && th == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}

// coverCrop returns the centred sub-rectangle of b with the given aspect ratio.
func coverCrop(b image.Rectangle, aspect float64) image.Rectangle {
	w, h := float64(b.Dx()), float64(b.Dy())
	if w/h > aspect {
		cw := int(math.Round(h * aspect))
		x := b.Min.X + (b.Dx()-cw)/2
		return image.Rect(x, b.Min.Y, x+cw, b.Max.Y)
	}
	ch := int(math.Round(w / aspect))
	y := b.Min.Y + (b.Dy()-ch)/2
	return image.Rect(b.Min.X, y, b.Max.X, y+ch)
}

// applyOps runs the named operations in name order.
func applyOps(img image.Image, ops map[string]any, funcs map[string]Func) (image.Image, error) {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fn, ok := funcs[name]
		if !ok {
			return nil, fmt.Errorf("unknown operation %q", name)
		}
		out, err := fn(img, ops[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		img = out
	}
	return img, nil
}

func enabled(arg any) bool {
	b, ok := arg.(bool)
	return !ok || b
}

func grayscale(img image.Image, arg any) (image.Image, error) {
	if !enabled(arg) {
		return img, nil
	}
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out, nil
}

func rotate(img image.Image, arg any) (image.Image, error) {
	deg, ok := arg.(int)
	if !ok {
		return nil, fmt.Errorf("expected degrees as integer, got %T", arg)
	}
	deg = ((deg % 360) + 360) % 360
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var out *image.RGBA
	switch deg {
	case 0:
		return img, nil
	case 90:
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	case 180:
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(w-1-x, h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	case 270:
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(y, w-1-x, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	default:
		return nil, fmt.Errorf("only multiples of 90 degrees are supported, got %d", deg)
	}
	return out, nil
}

// flip mirrors vertically.
func flip(img image.Image, arg any) (image.Image, error) {
	if !enabled(arg) {
		return img, nil
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, b.Dy()-1-y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out, nil
}

// flop mirrors horizontally.
func flop(img image.Image, arg any) (image.Image, error) {
	if !enabled(arg) {
		return img, nil
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(b.Dx()-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out, nil
}
