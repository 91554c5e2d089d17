package annotation

import (
	"fmt"
	"math/rand/v2"
)

// Color is a CSS color value as stored in group echoes, e.g. "rgb(200, 180, 240)".
type Color string

const (
	channelMin = 150
	channelMax = 255
)

// palette generates light background colors so text over them stays legible.
type palette struct {
	rng *rand.Rand
}

func newPalette(rng *rand.Rand) *palette {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &palette{rng: rng}
}

func (p *palette) next() Color {
	r := p.channel()
	g := p.channel()
	b := p.channel()
	return Color(fmt.Sprintf("rgb(%d, %d, %d)", r, g, b))
}

func (p *palette) channel() int {
	return channelMin + p.rng.IntN(channelMax-channelMin+1)
}

// RGB parses a color produced by the palette. ok is false for any other format.
func (c Color) RGB() (r, g, b int, ok bool) {
	n, err := fmt.Sscanf(string(c), "rgb(%d, %d, %d)", &r, &g, &b)
	return r, g, b, err == nil && n == 3
}
