package dedup

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const DefaultGrid = 8

// MaxDistance is returned by HammingDistance when hashes are not comparable.
const MaxDistance = math.MaxInt32

var ErrEmptyImage = errors.New("dedup: empty image")

// ComputeVisualHash returns the average hash of an encoded image as a string
// of grid*grid '0'/'1' characters, row-major.
func ComputeVisualHash(imageBytes []byte, grid int) (string, error) {
	if len(imageBytes) == 0 {
		return "", ErrEmptyImage
	}
	if grid <= 0 {
		grid = DefaultGrid
	}
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if src.Bounds().Empty() {
		return "", ErrEmptyImage
	}

	small := image.NewGray(image.Rect(0, 0, grid, grid))
	draw.BiLinear.Scale(small, small.Bounds(), src, src.Bounds(), draw.Src, nil)

	var sum int
	for _, p := range small.Pix {
		sum += int(p)
	}
	// Compare p*n >= sum instead of p >= sum/n to keep the mean exact.
	n := len(small.Pix)
	var b strings.Builder
	b.Grow(n)
	for y := 0; y < grid; y++ {
		row := small.Pix[y*small.Stride : y*small.Stride+grid]
		for _, p := range row {
			if int(p)*n >= sum {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	return b.String(), nil
}

// HammingDistance counts differing positions between two equal-length hashes.
func HammingDistance(a, b string) int {
	if len(a) != len(b) || len(a) == 0 {
		return MaxDistance
	}
	d := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}
