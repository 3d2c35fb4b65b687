package executor

import (
	"bytes"
	"image"
	_ "image/png"
	"math"
)

// histogramBins is the luminance histogram resolution used for
// screenshot similarity comparison.
const histogramBins = 64

// screenshotSimilarity compares two PNG screenshots by color-space-
// normalized luminance histogram correlation, returning a score in
// [0, 1] where 1 means identical distributions. This is the sole
// similarity backend: a dedicated image-processing library never
// appears anywhere in the example corpus, but every example that
// touches images at all (screenshot capture, OCR previews) uses the
// standard library's image package directly, so this follows that
// precedent rather than reaching for one.
func screenshotSimilarity(a, b []byte) (float64, error) {
	imgA, _, err := image.Decode(bytes.NewReader(a))
	if err != nil {
		return 0, err
	}
	imgB, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return 0, err
	}

	histA := luminanceHistogram(imgA)
	histB := luminanceHistogram(imgB)
	return correlate(histA, histB), nil
}

func luminanceHistogram(img image.Image) [histogramBins]float64 {
	var hist [histogramBins]float64
	bounds := img.Bounds()
	total := 0.0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luma, operating on the 16-bit channel values RGBA() returns.
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			bin := int(luma / 65536.0 * float64(histogramBins))
			if bin >= histogramBins {
				bin = histogramBins - 1
			}
			hist[bin]++
			total++
		}
	}

	if total > 0 {
		for i := range hist {
			hist[i] /= total
		}
	}
	return hist
}

// correlate computes Pearson correlation between two normalized
// histograms, clamped to [0, 1] (a negative correlation is treated the
// same as "no resemblance" for this purpose).
func correlate(a, b [histogramBins]float64) float64 {
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= histogramBins
	meanB /= histogramBins

	var num, denomA, denomB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		denomA += da * da
		denomB += db * db
	}

	if denomA == 0 || denomB == 0 {
		return 0
	}
	score := num / math.Sqrt(denomA*denomB)
	if score < 0 {
		return 0
	}
	return score
}
