package formflow

import (
	"encoding/json"
	"fmt"
)

// BadgeFieldType is the discriminator of a badge field in JSON.
type BadgeFieldType string

const (
	BadgeFieldFaceImage     BadgeFieldType = "face_image"
	BadgeFieldName          BadgeFieldType = "name"
	BadgeFieldQRCode        BadgeFieldType = "qr_code"
	BadgeFieldFreeText      BadgeFieldType = "free_text"
	BadgeFieldCategoryColor BadgeFieldType = "category_color"
)

// Badge field positioning
const (
	PositionFlow     = "flow"
	PositionAbsolute = "absolute"
)

// Text alignment inside a badge field box
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// BadgeStyle holds the per-field presentation properties. Lengths are in
// millimetres, font sizes in points. Zero values fall back to composer
// defaults.
type BadgeStyle struct {
	Position       string  `json:"position,omitempty"`
	TopMM          float64 `json:"top,omitempty"`
	LeftMM         float64 `json:"left,omitempty"`
	MarginTopMM    float64 `json:"marginTop,omitempty"`
	MarginRightMM  float64 `json:"marginRight,omitempty"`
	MarginBottomMM float64 `json:"marginBottom,omitempty"`
	MarginLeftMM   float64 `json:"marginLeft,omitempty"`
	FontSizePt     float64 `json:"fontSize,omitempty"`
	Bold           bool    `json:"bold,omitempty"`
	Color          string  `json:"color,omitempty"`
	Background     string  `json:"background,omitempty"`
	BorderRadiusMM float64 `json:"borderRadius,omitempty"`
	WidthMM        float64 `json:"width,omitempty"`
	HeightMM       float64 `json:"height,omitempty"`
	Align          string  `json:"align,omitempty"`
}

// IsAbsolute reports whether the field is placed at Top/Left instead of
// taking part in the row flow.
func (s BadgeStyle) IsAbsolute() bool {
	return s.Position == PositionAbsolute
}

// BadgeField is one element of a badge template. The set of
// implementations is closed.
type BadgeField interface {
	Kind() BadgeFieldType
	FieldStyle() BadgeStyle
	isBadgeField()
}

// FaceImageField shows the attendee photo. The image is taken from URL,
// or from the attendee value named by Attr.
type FaceImageField struct {
	Style BadgeStyle `json:"style"`
	Attr  string     `json:"attr,omitempty"`
	URL   string     `json:"url,omitempty"`
}

// NameField shows the attendee values named by Parts joined with spaces.
type NameField struct {
	Style     BadgeStyle `json:"style"`
	Parts     []string   `json:"parts"`
	Uppercase bool       `json:"uppercase,omitempty"`
}

// QRCodeField encodes the attendee value named by Attr, or Content when set.
type QRCodeField struct {
	Style   BadgeStyle `json:"style"`
	Attr    string     `json:"attr,omitempty"`
	Content string     `json:"content,omitempty"`
}

// FreeTextField shows fixed text.
type FreeTextField struct {
	Style BadgeStyle `json:"style"`
	Text  string     `json:"text"`
}

// CategoryColorField draws a coloured band labelled with the attendee
// category. Colors maps category values to fill colours.
type CategoryColorField struct {
	Style     BadgeStyle        `json:"style"`
	Attr      string            `json:"attr"`
	Colors    map[string]string `json:"colors,omitempty"`
	ShowLabel bool              `json:"showLabel,omitempty"`
}

func (FaceImageField) Kind() BadgeFieldType     { return BadgeFieldFaceImage }
func (NameField) Kind() BadgeFieldType          { return BadgeFieldName }
func (QRCodeField) Kind() BadgeFieldType        { return BadgeFieldQRCode }
func (FreeTextField) Kind() BadgeFieldType      { return BadgeFieldFreeText }
func (CategoryColorField) Kind() BadgeFieldType { return BadgeFieldCategoryColor }

func (f FaceImageField) FieldStyle() BadgeStyle     { return f.Style }
func (f NameField) FieldStyle() BadgeStyle          { return f.Style }
func (f QRCodeField) FieldStyle() BadgeStyle        { return f.Style }
func (f FreeTextField) FieldStyle() BadgeStyle      { return f.Style }
func (f CategoryColorField) FieldStyle() BadgeStyle { return f.Style }

func (FaceImageField) isBadgeField()     {}
func (NameField) isBadgeField()          {}
func (QRCodeField) isBadgeField()        {}
func (FreeTextField) isBadgeField()      {}
func (CategoryColorField) isBadgeField() {}

// BadgeRow is one line of a badge. A row with more than one field is laid
// out left to right.
type BadgeRow []BadgeField

func (r *BadgeRow) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	row := make(BadgeRow, 0, len(raw))
	for i, item := range raw {
		field, err := UnmarshalBadgeField(item)
		if err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
		row = append(row, field)
	}
	*r = row
	return nil
}

func (r BadgeRow) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, 0, len(r))
	for _, field := range r {
		b, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		m["type"] = field.Kind()
		out = append(out, m)
	}
	return json.Marshal(out)
}

// UnmarshalBadgeField decodes a single field using its "type" discriminator.
func UnmarshalBadgeField(data []byte) (BadgeField, error) {
	var head struct {
		Type BadgeFieldType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case BadgeFieldFaceImage:
		var f FaceImageField
		err := json.Unmarshal(data, &f)
		return f, err
	case BadgeFieldName:
		var f NameField
		err := json.Unmarshal(data, &f)
		return f, err
	case BadgeFieldQRCode:
		var f QRCodeField
		err := json.Unmarshal(data, &f)
		return f, err
	case BadgeFieldFreeText:
		var f FreeTextField
		err := json.Unmarshal(data, &f)
		return f, err
	case BadgeFieldCategoryColor:
		var f CategoryColorField
		err := json.Unmarshal(data, &f)
		return f, err
	case "":
		return nil, fmt.Errorf("badge field is missing its type")
	default:
		return nil, fmt.Errorf("unknown badge field type %q", head.Type)
	}
}

// BadgeTemplate describes a printable badge. Zero dimensions fall back to
// the configured defaults.
type BadgeTemplate struct {
	Name       string     `json:"name,omitempty"`
	WidthMM    float64    `json:"width,omitempty"`
	HeightMM   float64    `json:"height,omitempty"`
	PaddingMM  float64    `json:"padding,omitempty"`
	Background string     `json:"background,omitempty"`
	Rows       []BadgeRow `json:"rows"`
}

// BadgeNodeKind is the primitive a layout node is drawn with.
type BadgeNodeKind string

const (
	BadgeNodeText  BadgeNodeKind = "text"
	BadgeNodeImage BadgeNodeKind = "image"
	BadgeNodeRect  BadgeNodeKind = "rect"
)

// BadgeNode is an absolutely positioned element of a composed badge.
type BadgeNode struct {
	Kind           BadgeNodeKind  `json:"kind"`
	Source         BadgeFieldType `json:"source"`
	Row            int            `json:"row"`
	Column         int            `json:"column"`
	XMM            float64        `json:"x"`
	YMM            float64        `json:"y"`
	WidthMM        float64        `json:"width"`
	HeightMM       float64        `json:"height"`
	BaselineMM     float64        `json:"baseline,omitempty"`
	Text           string         `json:"text,omitempty"`
	FontSizePt     float64        `json:"fontSize,omitempty"`
	Bold           bool           `json:"bold,omitempty"`
	Color          string         `json:"color,omitempty"`
	Background     string         `json:"background,omitempty"`
	BorderRadiusMM float64        `json:"borderRadius,omitempty"`
	Align          string         `json:"align,omitempty"`
	Href           string         `json:"href,omitempty"`
}

// BadgeLayout is the composed badge. Warnings list nodes that do not fit.
type BadgeLayout struct {
	WidthMM    float64     `json:"width"`
	HeightMM   float64     `json:"height"`
	Background string      `json:"background,omitempty"`
	Nodes      []BadgeNode `json:"nodes"`
	Warnings   []string    `json:"warnings"`
}

// BadgeRequest pairs a template with the attendee values it is filled with,
// typically the data of one submission.
type BadgeRequest struct {
	Template BadgeTemplate  `json:"template"`
	Data     map[string]any `json:"data"`
}
