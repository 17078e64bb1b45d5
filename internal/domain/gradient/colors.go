package gradient

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	paletteSize   = 5
	downscaleSide = 64
	blurSide      = 8
)

type colorCount struct {
	c     colorful.Color
	count int
}

// ExtractGradient downscales imageBytes, buckets pixels into a small
// palette, and derives primary/secondary/foreground plus a CSS gradient
// string and a tiny base64 blur placeholder.
func ExtractGradient(imageBytes []byte) (*Gradient, error) {
	img, err := imaging.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	small := imaging.Fit(img, downscaleSide, downscaleSide, imaging.Lanczos)
	palette := dominantColors(small, paletteSize)
	if len(palette) == 0 {
		return nil, fmt.Errorf("no colors extracted")
	}

	primary := palette[0].c
	secondary := primary
	bestDist := -1.0
	for _, pc := range palette[1:] {
		d := primary.DistanceLab(pc.c)
		if d > bestDist {
			bestDist = d
			secondary = pc.c
		}
	}

	foreground := "#000000"
	if !isLight(primary) {
		foreground = "#ffffff"
	}

	hexes := make([]string, len(palette))
	for i, pc := range palette {
		hexes[i] = pc.c.Hex()
	}

	cssGradient := fmt.Sprintf("linear-gradient(135deg, %s 0%%, %s 100%%)", primary.Hex(), secondary.Hex())
	blurDataURL, err := blurPlaceholder(small)
	if err != nil {
		return nil, fmt.Errorf("build blur placeholder: %w", err)
	}

	return &Gradient{
		Palette:     hexes,
		Primary:     primary.Hex(),
		Secondary:   secondary.Hex(),
		Foreground:  foreground,
		CSSGradient: cssGradient,
		BlurDataURL: blurDataURL,
	}, nil
}

// dominantColors buckets the image's pixels into a coarse RGB grid and
// returns the n most frequent bucket colors, ordered by frequency
// descending.
func dominantColors(img image.Image, n int) []colorCount {
	const bucketsPerChannel = 6
	buckets := map[[3]int]*colorCount{}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a < 0x8000 {
				continue
			}
			rc := colorful.Color{R: float64(r) / 0xffff, G: float64(g) / 0xffff, B: float64(b) / 0xffff}
			key := [3]int{
				int(rc.R * float64(bucketsPerChannel-1)),
				int(rc.G * float64(bucketsPerChannel-1)),
				int(rc.B * float64(bucketsPerChannel-1)),
			}
			if existing, ok := buckets[key]; ok {
				existing.count++
			} else {
				buckets[key] = &colorCount{c: rc, count: 1}
			}
		}
	}

	counts := make([]colorCount, 0, len(buckets))
	for _, cc := range buckets {
		counts = append(counts, *cc)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })

	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// isLight reports whether c is light enough that black foreground text
// reads well against it, using CIE L*a*b* lightness (L above 0.6).
func isLight(c colorful.Color) bool {
	l, _, _ := c.Lab()
	return l > 0.6
}

// blurPlaceholder downsamples img to a tiny thumbnail and encodes it as a
// base64 data URL, approximating a blurred preview without a real gaussian
// blur pass.
func blurPlaceholder(img image.Image) (string, error) {
	tiny := imaging.Resize(img, blurSide, 0, imaging.Box)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, tiny, imaging.JPEG, imaging.JPEGQuality(50)); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
