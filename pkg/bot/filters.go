package bot

import (
	"image"
	"image/color"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
)

// Filter transforms one decoded photo.
type Filter func(img image.Image) image.Image

const (
	blurSigma        = 4.0
	saltPepperAmount = 0.2
)

var contourKernel = [9]float64{
	-1, -1, -1,
	-1, 8, -1,
	-1, -1, -1,
}

var filters = map[string]Filter{
	"blur":            blur,
	"contour":         contour,
	"rotate":          rotate,
	"segment":         segment,
	"salt and pepper": saltAndPepper,
	"grayscale":       grayscale,
}

// lookupFilter maps a photo caption to a filter. Matching ignores case, extra
// whitespace, and dashes or underscores used as word separators.
func lookupFilter(caption string) (Filter, bool) {
	replacer := strings.NewReplacer("-", " ", "_", " ")
	name := strings.Join(strings.Fields(strings.ToLower(replacer.Replace(caption))), " ")
	filter, ok := filters[name]
	return filter, ok
}

// filterNames lists the supported captions in a stable order.
func filterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func blur(img image.Image) image.Image {
	return imaging.Blur(img, blurSigma)
}

func contour(img image.Image) image.Image {
	return imaging.Convolve3x3(imaging.Grayscale(img), contourKernel, nil)
}

func rotate(img image.Image) image.Image {
	return imaging.Rotate90(img)
}

func grayscale(img image.Image) image.Image {
	return imaging.Grayscale(img)
}

// segment turns every pixel brighter than the image mean white and the rest black.
func segment(img image.Image) image.Image {
	gray := imaging.Grayscale(img)

	var total, count uint64
	for i := 0; i < len(gray.Pix); i += 4 {
		total += uint64(gray.Pix[i])
		count++
	}
	if count == 0 {
		return gray
	}
	mean := uint8(total / count)

	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := uint8(0)
		if c.R > mean {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

// saltAndPepper replaces a random share of pixels with pure white or pure black.
func saltAndPepper(img image.Image) image.Image {
	out := imaging.Clone(img)
	for i := 0; i < len(out.Pix); i += 4 {
		switch r := rand.Float64(); {
		case r < saltPepperAmount/2:
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = 255, 255, 255
		case r < saltPepperAmount:
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = 0, 0, 0
		}
	}

	return out
}
