package report

import (
	"bufio"
	"io"
	"strings"
)

// TextRenderer writes a report as plain text, one logical line per line.
// Used for terminal output; document renderers live outside this module.
type TextRenderer struct{}

func (TextRenderer) Render(w io.Writer, title string, blocks []Block) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(title + "\n")
	bw.WriteString(strings.Repeat("=", len([]rune(title))) + "\n\n")
	for _, line := range Lines(blocks) {
		bw.WriteString(line + "\n")
	}
	return bw.Flush()
}
