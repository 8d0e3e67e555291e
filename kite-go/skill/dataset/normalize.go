package dataset

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/kiteco/skillview/kite-go/skill/frames"
)

// Normalizer resizes frames so the short side is Size, center-crops to Size×Size,
// rescales to [0,1] and standardizes each channel. Output is channel-major per frame.
type Normalizer struct {
	Size int
	Mean [3]float64
	Std  [3]float64
}

// NewNormalizer returns the video transformer's preprocessing for size×size inputs.
func NewNormalizer(size int) Normalizer {
	return Normalizer{
		Size: size,
		Mean: [3]float64{0.45, 0.45, 0.45},
		Std:  [3]float64{0.225, 0.225, 0.225},
	}
}

// FrameDim returns the number of values per normalized frame.
func (n Normalizer) FrameDim() int {
	return 3 * n.Size * n.Size
}

// resized returns the frame size after scaling the short side to Size.
func (n Normalizer) resized(h, w int) image.Rectangle {
	short := math.Min(float64(h), float64(w))
	rh := int(math.Round(float64(h) * float64(n.Size) / short))
	rw := int(math.Round(float64(w) * float64(n.Size) / short))
	if rh < n.Size {
		rh = n.Size
	}
	if rw < n.Size {
		rw = n.Size
	}
	return image.Rect(0, 0, rw, rh)
}

// Apply writes the normalized clip into dst, which must hold vt.T*FrameDim() values.
func (n Normalizer) Apply(vt *frames.ViewTensor, dst []float64) {
	s := n.Size
	bounds := n.resized(vt.H, vt.W)
	oy, ox := (bounds.Dy()-s)/2, (bounds.Dx()-s)/2

	src := image.NewRGBA(image.Rect(0, 0, vt.W, vt.H))
	scaled := image.NewRGBA(bounds)
	fd := n.FrameDim()
	for t := 0; t < vt.T; t++ {
		toRGBA(src, vt.Frame(t))
		draw.BiLinear.Scale(scaled, bounds, src, src.Bounds(), draw.Src, nil)

		out := dst[t*fd : (t+1)*fd]
		for y := 0; y < s; y++ {
			row := scaled.Pix[(y+oy)*scaled.Stride:]
			for x := 0; x < s; x++ {
				px := row[(x+ox)*4:]
				for c := 0; c < 3; c++ {
					v := float64(px[c]) / 255
					out[c*s*s+y*s+x] = (v - n.Mean[c]) / n.Std[c]
				}
			}
		}
	}
}

// toRGBA copies packed rgb24 pixels into an opaque image of the same size.
func toRGBA(img *image.RGBA, rgb []uint8) {
	for i, j := 0, 0; i+2 < len(rgb); i, j = i+3, j+4 {
		img.Pix[j] = rgb[i]
		img.Pix[j+1] = rgb[i+1]
		img.Pix[j+2] = rgb[i+2]
		img.Pix[j+3] = 0xff
	}
}
