package main

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// renderTable aligns key/value rows on the display width of the keys, so
// that wide characters in device names do not break the column.
func renderTable(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		width = max(width, runewidth.StringWidth(r[0]))
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(keyStyle.Render(runewidth.FillRight(r[0], width)))
		b.WriteString("  ")
		b.WriteString(valueStyle.Render(r[1]))
		b.WriteString("\n")
	}

	return b.String()
}
