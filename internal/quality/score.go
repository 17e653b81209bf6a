// Package quality ranks captured photos by a focus/detail estimate so
// the registry can pick a representative candidate per slot.
package quality

import (
	"bytes"
	"fmt"
	"image"
	"math"

	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

const (
	// maxEdge bounds the long edge of the downsampled working image.
	// Scores are only comparable for an identical downsample target.
	maxEdge = 256

	gradientWeight  = 0.6
	laplacianWeight = 0.4

	// varianceFloor regularizes the contrast divisor. Heavy blur drives
	// the edge energy and the global variance towards zero together, and
	// the raw ratio of two collapsing quantities can exceed the ratio of
	// the sharp original. The floor (a 16-level standard deviation in
	// 8-bit luma) pins washed-out frames to a low score while leaving
	// normal-contrast frames effectively untouched.
	varianceFloor = 256.0
)

// Sharpness adapts the package functions to the scorer dependency the
// registry takes.
type Sharpness struct{}

func (Sharpness) ScoreBytes(data []byte) (float64, error) {
	return ScoreBytes(data)
}

// ScoreBytes decodes a captured image (jpeg or png) and scores it.
// A decode failure is a local processing failure: the capture is
// rejected before any queue involvement.
func ScoreBytes(data []byte) (float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode capture: %w", err)
	}
	return Score(img), nil
}

// Score maps an image to a sharpness/contrast score. Higher is better.
// The function is pure and reproducible bit-for-bit for identical pixel
// input: fixed downsample target, fixed operators, fixed traversal order.
//
// The measure combines center-weighted gradient energy (edge strength)
// with center-weighted Laplacian variance (local contrast), normalized
// by the floor-regularized global contrast variance so flat-but-bright
// and busy-but-dim frames rank comparably. Center weighting uses a 2D
// Gaussian falloff so in-frame subject sharpness dominates over sharp
// background clutter.
func Score(img image.Image) float64 {
	luma, w, h := lumaPlane(img)
	if w < 3 || h < 3 {
		return 0
	}

	// Global contrast variance over the full luma plane.
	var sum, sumSq float64
	n := float64(w * h)
	for _, v := range luma {
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	globalVar := sumSq/n - mean*mean
	if globalVar <= 1e-9 {
		// Flat frame: nothing to focus on.
		return 0
	}

	cx := float64(w-1) / 2
	cy := float64(h-1) / 2
	sigma := float64(max(w, h)) / 3
	twoSigmaSq := 2 * sigma * sigma

	var gradSum, lapSum, lapSqSum, weightSum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x

			// Sobel gradient.
			gx := luma[i-w+1] + 2*luma[i+1] + luma[i+w+1] -
				luma[i-w-1] - 2*luma[i-1] - luma[i+w-1]
			gy := luma[i+w-1] + 2*luma[i+w] + luma[i+w+1] -
				luma[i-w-1] - 2*luma[i-w] - luma[i-w+1]

			// 4-neighbour Laplacian.
			lap := luma[i-1] + luma[i+1] + luma[i-w] + luma[i+w] - 4*luma[i]

			dx := float64(x) - cx
			dy := float64(y) - cy
			weight := math.Exp(-(dx*dx + dy*dy) / twoSigmaSq)

			gradSum += weight * (gx*gx + gy*gy)
			lapSum += weight * lap
			lapSqSum += weight * lap * lap
			weightSum += weight
		}
	}
	if weightSum == 0 {
		return 0
	}

	gradEnergy := gradSum / weightSum
	lapMean := lapSum / weightSum
	lapVar := lapSqSum/weightSum - lapMean*lapMean

	return (gradEnergy*gradientWeight + lapVar*laplacianWeight) / (globalVar + varianceFloor)
}

// lumaPlane downsamples the image to the bounded working size and
// converts it to a Rec.601 luma plane.
func lumaPlane(img image.Image) ([]float64, int, int) {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, 0, 0
	}

	w, h := srcW, srcH
	if longest := max(srcW, srcH); longest > maxEdge {
		scale := float64(maxEdge) / float64(longest)
		w = int(math.Round(float64(srcW) * scale))
		h = int(math.Round(float64(srcH) * scale))
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	work := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(work, work.Bounds(), img, bounds, xdraw.Src, nil)

	luma := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := work.PixOffset(x, y)
			r := float64(work.Pix[o])
			g := float64(work.Pix[o+1])
			b := float64(work.Pix[o+2])
			luma[y*w+x] = 0.299*r + 0.587*g + 0.114*b
		}
	}
	return luma, w, h
}
