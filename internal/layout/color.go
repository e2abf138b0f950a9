package layout

import (
	"fmt"
	"math"
)

const anchorColor = "#6366f1"

// low and high relevance endpoints of the node gradient
var (
	coldRGB = [3]float64{0x94, 0xa3, 0xb8}
	hotRGB  = [3]float64{0xf5, 0x9e, 0x0b}
)

// Color maps a relevance score onto a hex color between a muted slate for
// cold entities and amber for hot ones.
func Color(score float64) string {
	t := clamp01(score)
	var c [3]int
	for i := range c {
		c[i] = int(math.Round(coldRGB[i] + (hotRGB[i]-coldRGB[i])*t))
	}
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
