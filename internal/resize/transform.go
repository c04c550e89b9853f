package resize

import (
	"image"
	"image/color"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

var resampleFilters = map[models.Filter]imaging.ResampleFilter{
	models.FilterNearest:  imaging.NearestNeighbor,
	models.FilterBilinear: imaging.Linear,
	models.FilterBicubic:  imaging.CatmullRom,
	models.FilterLanczos:  imaging.Lanczos,
}

func resampleFilter(f models.Filter) imaging.ResampleFilter {
	if rf, ok := resampleFilters[f]; ok {
		return rf
	}
	return imaging.NearestNeighbor
}

// Transform scales img according to p and returns a new image. It never
// touches the filesystem.
//
// Without KeepAspectRatio the image is stretched to exactly Width x Height.
// With it, the image is fitted inside the target box without upscaling,
// and AddPadding then places it at the top-left of a black canvas of the
// exact target size.
func Transform(img image.Image, p models.ResizeParams) *image.NRGBA {
	filter := resampleFilter(p.Filter)

	if !p.KeepAspectRatio {
		return imaging.Resize(img, p.Width, p.Height, filter)
	}

	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), p.Width, p.Height)

	var fitted *image.NRGBA
	if w == b.Dx() && h == b.Dy() {
		fitted = imaging.Clone(img)
	} else {
		fitted = imaging.Resize(img, w, h, filter)
	}

	if !p.AddPadding {
		return fitted
	}
	canvas := imaging.New(p.Width, p.Height, color.Black)
	return imaging.Paste(canvas, fitted, image.Pt(0, 0))
}

// FitSize returns the largest size with the aspect ratio of srcW x srcH that
// fits inside maxW x maxH. Sources already inside the box keep their size.
func FitSize(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if srcW <= maxW && srcH <= maxH {
		return srcW, srcH
	}

	scale := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	w := clamp(int(math.Round(float64(srcW)*scale)), 1, maxW)
	h := clamp(int(math.Round(float64(srcH)*scale)), 1, maxH)
	return w, h
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Flatten composites img onto an opaque black background when it carries
// transparency, which JPEG cannot store.
func Flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.Black)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// Encode writes img as JPEG. quality is handed to the encoder as-is.
func Encode(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, Flatten(img), imaging.JPEG, imaging.JPEGQuality(quality))
}
