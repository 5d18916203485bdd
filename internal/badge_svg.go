package internal

import (
	"fmt"
	"html"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/lychee-technology/formflow"
)

// RenderSVG writes the layout as an SVG document whose user unit is one
// millimetre, so the printed badge keeps its physical size.
func RenderSVG(w io.Writer, layout *formflow.BadgeLayout) error {
	var b strings.Builder
	width, height := mm(layout.WidthMM), mm(layout.HeightMM)
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%smm" height="%smm" viewBox="0 0 %s %s">`+"\n",
		width, height, width, height)
	if layout.Background != "" {
		fmt.Fprintf(&b, `<rect x="0" y="0" width="%s" height="%s" fill="%s"/>`+"\n", width, height, attr(layout.Background))
	}

	for _, n := range layout.Nodes {
		switch n.Kind {
		case formflow.BadgeNodeRect:
			writeRect(&b, n, n.Background)
		case formflow.BadgeNodeImage:
			if n.Href == "" {
				writeRect(&b, n, orDefaultString(n.Background, "#e0e0e0"))
				continue
			}
			fmt.Fprintf(&b, `<image x="%s" y="%s" width="%s" height="%s" href="%s" preserveAspectRatio="xMidYMid slice"/>`+"\n",
				mm(n.XMM), mm(n.YMM), mm(n.WidthMM), mm(n.HeightMM), attr(n.Href))
		case formflow.BadgeNodeText:
			if n.Background != "" {
				writeRect(&b, n, n.Background)
			}
			writeText(&b, n)
		}
	}

	b.WriteString("</svg>\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write badge svg: %w", err)
	}
	return nil
}

func writeRect(b *strings.Builder, n formflow.BadgeNode, fill string) {
	fmt.Fprintf(b, `<rect x="%s" y="%s" width="%s" height="%s"`, mm(n.XMM), mm(n.YMM), mm(n.WidthMM), mm(n.HeightMM))
	if n.BorderRadiusMM > 0 {
		fmt.Fprintf(b, ` rx="%s"`, mm(n.BorderRadiusMM))
	}
	fmt.Fprintf(b, ` fill="%s"/>`+"\n", attr(fill))
}

func writeText(b *strings.Builder, n formflow.BadgeNode) {
	x, anchor := n.XMM, "start"
	switch n.Align {
	case formflow.AlignCenter:
		x, anchor = n.XMM+n.WidthMM/2, "middle"
	case formflow.AlignRight:
		x, anchor = n.XMM+n.WidthMM, "end"
	}
	weight := "normal"
	if n.Bold {
		weight = "bold"
	}
	fmt.Fprintf(b, `<text x="%s" y="%s" font-family="Go, sans-serif" font-size="%s" font-weight="%s" fill="%s" text-anchor="%s">%s</text>`+"\n",
		mm(x), mm(n.YMM+n.BaselineMM), mm(n.FontSizePt*mmPerPoint), weight, attr(n.Color), anchor, html.EscapeString(n.Text))
}

// mm formats a length with at most three decimals.
func mm(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

func attr(s string) string {
	return html.EscapeString(s)
}
