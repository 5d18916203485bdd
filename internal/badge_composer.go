package internal

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/lychee-technology/formflow"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	mmPerPoint = 25.4 / 72
	lineHeight = 1.2
	// tolerance for floating point drift when checking badge bounds
	overflowEpsilonMM = 0.01

	defaultPhotoWidthMM  = 25
	defaultPhotoHeightMM = 30
	defaultQRSizeMM      = 20
	defaultBandPaddingMM = 1
	defaultCategoryColor = "#9e9e9e"
	defaultTextColor     = "#000000"
	defaultPhotoAttr     = "photoUrl"
	defaultQRAttr        = "id"
)

type faceKey struct {
	bold bool
	size float64
}

// BadgeComposer turns badge templates into absolutely positioned layouts.
// Text is measured with the Go fonts, the same faces RenderSVG names.
type BadgeComposer struct {
	cfg     formflow.BadgeConfig
	regular *opentype.Font
	bold    *opentype.Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

func NewBadgeComposer(cfg formflow.BadgeConfig) (*BadgeComposer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}
	return &BadgeComposer{
		cfg:     cfg,
		regular: regular,
		bold:    bold,
		faces:   make(map[faceKey]font.Face),
	}, nil
}

// Close releases the cached font faces.
func (c *BadgeComposer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, face := range c.faces {
		face.Close()
		delete(c.faces, k)
	}
	return nil
}

// textMetrics holds measured text dimensions in millimetres.
type textMetrics struct {
	width    float64
	height   float64
	baseline float64
}

// measureText measures s at sizePt points. At 72 DPI one pixel is one point.
func (c *BadgeComposer) measureText(s string, sizePt float64, bold bool) (textMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := faceKey{bold: bold, size: sizePt}
	face, ok := c.faces[key]
	if !ok {
		f := c.regular
		if bold {
			f = c.bold
		}
		var err error
		face, err = opentype.NewFace(f, &opentype.FaceOptions{Size: sizePt, DPI: 72, Hinting: font.HintingNone})
		if err != nil {
			return textMetrics{}, fmt.Errorf("failed to create font face: %w", err)
		}
		c.faces[key] = face
	}

	height := sizePt * lineHeight * mmPerPoint
	ascent := fixedToFloat(face.Metrics().Ascent) * mmPerPoint
	descent := fixedToFloat(face.Metrics().Descent) * mmPerPoint
	return textMetrics{
		width:    fixedToFloat(font.MeasureString(face, s)) * mmPerPoint,
		height:   height,
		baseline: (height-(ascent+descent))/2 + ascent,
	}, nil
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// composeState carries the running position while rows are laid out.
type composeState struct {
	layout    *formflow.BadgeLayout
	paddingMM float64
	cursorY   float64
}

func (s *composeState) innerWidth() float64 {
	return s.layout.WidthMM - 2*s.paddingMM
}

func (s *composeState) warn(format string, args ...any) {
	s.layout.Warnings = append(s.layout.Warnings, fmt.Sprintf(format, args...))
}

// Compose lays out tmpl filled with data. Fields of a row are placed left
// to right using the running previousFieldsWidth offset; absolute fields
// are placed at their Top/Left and do not move the flow. Nodes that leave
// the badge are kept and reported in Warnings.
func (c *BadgeComposer) Compose(tmpl formflow.BadgeTemplate, data map[string]any) (*formflow.BadgeLayout, error) {
	layout := &formflow.BadgeLayout{
		WidthMM:    orDefault(tmpl.WidthMM, c.cfg.DefaultWidthMM),
		HeightMM:   orDefault(tmpl.HeightMM, c.cfg.DefaultHeightMM),
		Background: tmpl.Background,
		Nodes:      []formflow.BadgeNode{},
		Warnings:   []string{},
	}
	if layout.WidthMM <= 0 || layout.HeightMM <= 0 {
		return nil, formflow.NewFormflowError(formflow.ErrorTypeValidation, formflow.ErrCodeBadgeLayout,
			"badge dimensions must be greater than 0")
	}

	state := &composeState{layout: layout, paddingMM: orDefault(tmpl.PaddingMM, c.cfg.DefaultPaddingMM)}
	if state.innerWidth() <= 0 {
		return nil, formflow.NewFormflowError(formflow.ErrorTypeValidation, formflow.ErrCodeBadgeLayout,
			"badge padding leaves no room for content")
	}
	state.cursorY = state.paddingMM

	for rowIdx, row := range tmpl.Rows {
		previousFieldsWidth := 0.0
		rowHeight := 0.0
		flowCount := 0
		for _, field := range row {
			if !field.FieldStyle().IsAbsolute() {
				flowCount++
			}
		}

		for colIdx, field := range row {
			nodes, err := c.buildNodes(field, data, state, flowCount)
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", rowIdx, colIdx, err)
			}
			if len(nodes) == 0 {
				continue
			}

			style := field.FieldStyle()
			box := nodes[0]
			var x, y float64
			if style.IsAbsolute() {
				x = state.paddingMM + style.LeftMM
				y = state.paddingMM + style.TopMM
			} else {
				x = state.paddingMM + previousFieldsWidth + style.MarginLeftMM
				y = state.cursorY + style.MarginTopMM
				if flowCount == 1 {
					x = alignBox(style, box.WidthMM, state)
				}
				previousFieldsWidth += style.MarginLeftMM + box.WidthMM + style.MarginRightMM
				rowHeight = max(rowHeight, style.MarginTopMM+box.HeightMM+style.MarginBottomMM)
			}

			for i := range nodes {
				nodes[i].Row = rowIdx
				nodes[i].Column = colIdx
				nodes[i].XMM += x
				nodes[i].YMM += y
			}
			checkBounds(state, nodes[0])
			layout.Nodes = append(layout.Nodes, nodes...)
		}
		state.cursorY += rowHeight
	}

	return layout, nil
}

// alignBox positions the only flow field of a row according to its Align.
func alignBox(style formflow.BadgeStyle, width float64, state *composeState) float64 {
	left := state.paddingMM + style.MarginLeftMM
	switch style.Align {
	case formflow.AlignCenter:
		return state.paddingMM + (state.innerWidth()-width)/2
	case formflow.AlignRight:
		return state.layout.WidthMM - state.paddingMM - style.MarginRightMM - width
	default:
		return left
	}
}

func checkBounds(state *composeState, n formflow.BadgeNode) {
	maxX := state.layout.WidthMM - state.paddingMM
	maxY := state.layout.HeightMM - state.paddingMM
	if over := n.XMM + n.WidthMM - maxX; over > overflowEpsilonMM {
		state.warn("row %d field %d (%s) overflows the badge horizontally by %.1fmm", n.Row, n.Column, n.Source, over)
	}
	if over := n.YMM + n.HeightMM - maxY; over > overflowEpsilonMM {
		state.warn("row %d field %d (%s) overflows the badge vertically by %.1fmm", n.Row, n.Column, n.Source, over)
	}
	if n.XMM < state.paddingMM-overflowEpsilonMM || n.YMM < state.paddingMM-overflowEpsilonMM {
		state.warn("row %d field %d (%s) starts outside the printable area", n.Row, n.Column, n.Source)
	}
}

// buildNodes returns the nodes of one field relative to its box origin.
// The first node is the field's bounding box.
func (c *BadgeComposer) buildNodes(field formflow.BadgeField, data map[string]any, state *composeState, flowCount int) ([]formflow.BadgeNode, error) {
	style := field.FieldStyle()
	switch f := field.(type) {
	case formflow.NameField:
		parts := make([]string, 0, len(f.Parts))
		for _, attr := range f.Parts {
			if v := strings.TrimSpace(displayValue(data[attr])); v != "" {
				parts = append(parts, v)
			}
		}
		text := strings.Join(parts, " ")
		if f.Uppercase {
			text = strings.ToUpper(text)
		}
		if text == "" {
			return nil, nil
		}
		node, err := c.textNode(f.Kind(), text, style)
		if err != nil {
			return nil, err
		}
		c.checkTextFits(state, node, text, style)
		return []formflow.BadgeNode{node}, nil

	case formflow.FreeTextField:
		if f.Text == "" {
			return nil, nil
		}
		node, err := c.textNode(f.Kind(), f.Text, style)
		if err != nil {
			return nil, err
		}
		c.checkTextFits(state, node, f.Text, style)
		return []formflow.BadgeNode{node}, nil

	case formflow.FaceImageField:
		href := f.URL
		if href == "" {
			attr := f.Attr
			if attr == "" {
				attr = defaultPhotoAttr
			}
			href = displayValue(data[attr])
		}
		return []formflow.BadgeNode{{
			Kind:           formflow.BadgeNodeImage,
			Source:         f.Kind(),
			WidthMM:        orDefault(style.WidthMM, defaultPhotoWidthMM),
			HeightMM:       orDefault(style.HeightMM, defaultPhotoHeightMM),
			BorderRadiusMM: style.BorderRadiusMM,
			Background:     style.Background,
			Href:           href,
		}}, nil

	case formflow.QRCodeField:
		content := f.Content
		if content == "" {
			attr := f.Attr
			if attr == "" {
				attr = defaultQRAttr
			}
			content = displayValue(data[attr])
		}
		if content == "" {
			state.warn("qr code has no content; field skipped")
			return nil, nil
		}
		png, err := qrcode.Encode(content, qrcode.Medium, c.cfg.QRSizePx)
		if err != nil {
			return nil, formflow.NewFormflowError(formflow.ErrorTypeInternal, formflow.ErrCodeQREncode,
				"failed to encode qr code").WithCause(err)
		}
		size := orDefault(style.WidthMM, defaultQRSizeMM)
		return []formflow.BadgeNode{{
			Kind:     formflow.BadgeNodeImage,
			Source:   f.Kind(),
			WidthMM:  size,
			HeightMM: orDefault(style.HeightMM, size),
			Href:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		}}, nil

	case formflow.CategoryColorField:
		category := displayValue(data[f.Attr])
		color, ok := f.Colors[category]
		if !ok {
			color = orDefaultString(style.Background, defaultCategoryColor)
		}

		width := style.WidthMM
		if width == 0 && flowCount <= 1 {
			width = state.innerWidth() - style.MarginLeftMM - style.MarginRightMM
		}
		band := formflow.BadgeNode{
			Kind:           formflow.BadgeNodeRect,
			Source:         f.Kind(),
			WidthMM:        width,
			HeightMM:       style.HeightMM,
			Background:     color,
			BorderRadiusMM: style.BorderRadiusMM,
		}
		if !f.ShowLabel || category == "" {
			if band.HeightMM == 0 {
				band.HeightMM = orDefault(c.cfg.DefaultFontSize, 12) * lineHeight * mmPerPoint
			}
			if band.WidthMM == 0 {
				band.WidthMM = band.HeightMM
			}
			return []formflow.BadgeNode{band}, nil
		}

		label, err := c.textNode(f.Kind(), category, style)
		if err != nil {
			return nil, err
		}
		label.Background = ""
		label.BorderRadiusMM = 0
		label.Align = orDefaultString(style.Align, formflow.AlignCenter)
		if band.WidthMM == 0 {
			band.WidthMM = label.WidthMM + 2*defaultBandPaddingMM
		}
		if band.HeightMM == 0 {
			band.HeightMM = label.HeightMM + 2*defaultBandPaddingMM
		}
		label.XMM = defaultBandPaddingMM
		label.WidthMM = band.WidthMM - 2*defaultBandPaddingMM
		label.YMM = (band.HeightMM - label.HeightMM) / 2
		return []formflow.BadgeNode{band, label}, nil

	default:
		return nil, formflow.NewFormflowError(formflow.ErrorTypeValidation, formflow.ErrCodeBadgeLayout,
			fmt.Sprintf("unsupported badge field %T", field))
	}
}

func (c *BadgeComposer) textNode(source formflow.BadgeFieldType, text string, style formflow.BadgeStyle) (formflow.BadgeNode, error) {
	size := orDefault(style.FontSizePt, orDefault(c.cfg.DefaultFontSize, 12))
	m, err := c.measureText(text, size, style.Bold)
	if err != nil {
		return formflow.BadgeNode{}, err
	}
	return formflow.BadgeNode{
		Kind:           formflow.BadgeNodeText,
		Source:         source,
		WidthMM:        orDefault(style.WidthMM, m.width),
		HeightMM:       orDefault(style.HeightMM, m.height),
		BaselineMM:     m.baseline,
		Text:           text,
		FontSizePt:     size,
		Bold:           style.Bold,
		Color:          orDefaultString(style.Color, defaultTextColor),
		Background:     style.Background,
		BorderRadiusMM: style.BorderRadiusMM,
		Align:          orDefaultString(style.Align, formflow.AlignLeft),
	}, nil
}

// checkTextFits warns when measured text is wider than a fixed-width box.
func (c *BadgeComposer) checkTextFits(state *composeState, node formflow.BadgeNode, text string, style formflow.BadgeStyle) {
	if style.WidthMM == 0 {
		return
	}
	m, err := c.measureText(text, node.FontSizePt, node.Bold)
	if err != nil {
		return
	}
	if m.width-style.WidthMM > overflowEpsilonMM {
		state.warn("text %q is %.1fmm wide but its box is %.1fmm", text, m.width, style.WidthMM)
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
