package main

import (
	"io"

	"github.com/fatih/color"
)

var (
	removedLine   = color.New(color.FgRed)
	addedLine     = color.New(color.FgGreen)
	unchangedLine = color.New(color.Faint)
)

// writeDiff prints before and after segment by segment. Unchanged segments
// are printed once, changed ones as a -/+ pair.
func writeDiff(w io.Writer, before, after string) {
	old, cur := segmentLines(before), segmentLines(after)
	for i := 0; i < max(len(old), len(cur)); i++ {
		switch {
		case i < len(old) && i < len(cur) && old[i] == cur[i]:
			unchangedLine.Fprintf(w, "  %s\n", old[i])
		default:
			if i < len(old) {
				removedLine.Fprintf(w, "- %s\n", old[i])
			}
			if i < len(cur) {
				addedLine.Fprintf(w, "+ %s\n", cur[i])
			}
		}
	}
}
