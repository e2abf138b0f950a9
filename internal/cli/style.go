package cli

import "github.com/fatih/color"

var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	info   = color.New(color.FgCyan)
	warn   = color.New(color.FgYellow)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
)

// scoreColor picks a color for a relevance score in [0,1].
func scoreColor(score float64) *color.Color {
	switch {
	case score >= 0.6:
		return good
	case score >= 0.25:
		return warn
	case score > 0:
		return info
	default:
		return subtle
	}
}
