package region

import (
	"math/rand/v2"

	"github.com/lucasb-eyer/go-colorful"
)

// Fill colors are drawn in HSV with a muted saturation and a high value,
// which keeps them light and readable under dark outlines.
const (
	fillSatMin = 0.15
	fillSatMax = 0.45
	fillValMin = 0.80
	fillValMax = 0.93
)

// ColorAllocator produces light pseudo-random fill colors.
type ColorAllocator struct {
	rng *rand.Rand
}

// NewColorAllocator returns an allocator. A nil source uses a random seed.
func NewColorAllocator(src rand.Source) *ColorAllocator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &ColorAllocator{rng: rand.New(src)}
}

// Next returns a "#rrggbb" color.
func (a *ColorAllocator) Next() string {
	return a.Color().Hex()
}

// Color returns the next color as a colorful.Color.
func (a *ColorAllocator) Color() colorful.Color {
	h := a.rng.Float64() * 360
	s := fillSatMin + a.rng.Float64()*(fillSatMax-fillSatMin)
	v := fillValMin + a.rng.Float64()*(fillValMax-fillValMin)
	return colorful.Hsv(h, s, v)
}
