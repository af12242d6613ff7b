package captcha

import (
	"fmt"
	"html/template"
	mrand "math/rand/v2"
	"strings"
)

var palette = []string{"#0ea5e9", "#f97316", "#16a34a", "#9333ea", "#dc2626", "#475569"}

// Render draws code as an SVG image with jittered glyphs and noise strokes.
func Render(code string, width, height int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\">", width, height, width, height))
	b.WriteString(fmt.Sprintf("<rect width=\"100%%\" height=\"100%%\" fill=\"%s\"/>", "#f8fafc"))

	for i := 0; i < 3; i++ {
		x1, y1 := mrand.IntN(width/4), mrand.IntN(height)
		x2, y2 := width-mrand.IntN(width/4), mrand.IntN(height)
		cx, cy := mrand.IntN(width), mrand.IntN(height)
		b.WriteString(fmt.Sprintf("<path d=\"M%d %d Q%d %d %d %d\" stroke=\"%s\" stroke-width=\"1.5\" fill=\"none\"/>", x1, y1, cx, cy, x2, y2, pick()))
	}

	if len(code) > 0 {
		step := float64(width) / float64(len(code)+1)
		fontSize := height * 3 / 5
		for i, r := range code {
			x := step * float64(i+1)
			y := float64(height)/2 + float64(fontSize)/3 + float64(mrand.IntN(7)-3)
			rotate := mrand.IntN(41) - 20
			b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"%d\" font-family=\"monospace\" text-anchor=\"middle\" transform=\"rotate(%d %.2f %.2f)\">%s</text>",
				x, y, pick(), fontSize, rotate, x, y, template.HTMLEscapeString(string(r))))
		}
	}

	for i := 0; i < 20; i++ {
		b.WriteString(fmt.Sprintf("<circle cx=\"%d\" cy=\"%d\" r=\"1\" fill=\"%s\"/>", mrand.IntN(width), mrand.IntN(height), pick()))
	}
	b.WriteString("</svg>")
	return b.String()
}

func pick() string {
	return palette[mrand.IntN(len(palette))]
}
