package session

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// FallbackAvatar returns a deterministic identicon for principals whose provider
// supplied no picture, as an SVG data URI. The same seed always yields the same image.
func FallbackAvatar(seed string) string {
	if seed == "" {
		seed = "unknown"
	}
	sum := sha256.Sum256([]byte(seed))

	const cells, size = 5, 10
	color := fmt.Sprintf("#%02x%02x%02x", sum[0], sum[1], sum[2])

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, cells*size, cells*size)
	b.WriteString(`<rect width="100%" height="100%" fill="#f0f0f0"/>`)

	// Left half plus middle column, mirrored onto the right
	for x := 0; x < (cells+1)/2; x++ {
		for y := 0; y < cells; y++ {
			if sum[3+x*cells+y]&1 == 0 {
				continue
			}
			for _, col := range []int{x, cells - 1 - x} {
				fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`, col*size, y*size, size, size, color)
				if col == cells-1-col {
					break
				}
			}
		}
	}
	b.WriteString(`</svg>`)

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(b.String()))
}
