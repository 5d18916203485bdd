package internal

import (
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/lychee-technology/formflow"
)

const formTemplates = `
{{define "form"}}<form method="post" action="{{.Action}}" class="formflow" id="form-{{.ID}}" novalidate>
<h1>{{.Title}}</h1>
{{- with .Description}}
<p class="form-description">{{.}}</p>
{{- end}}
{{- range .Fields}}
{{template "field" .}}
{{- end}}
<button type="submit"{{if .Submitting}} disabled{{end}}>{{.SubmitText}}</button>
</form>
{{end}}

{{define "confirmation"}}<div class="formflow-confirmation" id="form-{{.ID}}">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</div>
{{end}}

{{define "field"}}
{{- if eq .Type "divider"}}<hr>
{{- else if eq .Type "heading"}}<h2>{{.Label}}</h2>
{{- else if eq .Type "paragraph"}}<p>{{.Label}}</p>
{{- else}}<div class="field{{if .Error}} has-error{{end}}">
<label for="{{.ID}}">{{.Label}}{{if .Required}} *{{end}}</label>
{{template "input" .}}
{{- with .HelpText}}
<small class="help">{{.}}</small>
{{- end}}
{{- with .Error}}
<span class="error" role="alert">{{.}}</span>
{{- end}}
</div>
{{- end}}
{{- end}}

{{define "input"}}
{{- if eq .Type "textarea"}}<textarea id="{{.ID}}" name="{{.Name}}"{{with .Placeholder}} placeholder="{{.}}"{{end}}>{{.Value}}</textarea>
{{- else if eq .Type "select"}}<select id="{{.ID}}" name="{{.Name}}">
<option value="">{{if .Placeholder}}{{.Placeholder}}{{else}}Select...{{end}}</option>
{{- range .Options}}
<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>
{{- end}}
</select>
{{- else if eq .Type "radio"}}{{$name := .Name}}{{range .Options}}
<label><input type="radio" name="{{$name}}" value="{{.Value}}"{{if .Selected}} checked{{end}}> {{.Label}}</label>
{{- end}}
{{- else if and (eq .Type "checkbox") .Options}}{{$name := .Name}}{{range .Options}}
<label><input type="checkbox" name="{{$name}}" value="{{.Value}}"{{if .Selected}} checked{{end}}> {{.Label}}</label>
{{- end}}
{{- else if eq .Type "checkbox"}}<input type="checkbox" id="{{.ID}}" name="{{.Name}}" value="true"{{if .Checked}} checked{{end}}>
{{- else if eq .Type "file"}}<input type="file" id="{{.ID}}" name="{{.Name}}">
{{- else}}<input type="{{.Type}}" id="{{.ID}}" name="{{.Name}}" value="{{.Value}}"{{with .Placeholder}} placeholder="{{.}}"{{end}}>
{{- end}}
{{- end}}
`

type optionView struct {
	Label    string
	Value    string
	Selected bool
}

type fieldView struct {
	ID          string
	Name        string
	Type        string
	Label       string
	Placeholder string
	HelpText    string
	Required    bool
	Value       string
	Checked     bool
	Options     []optionView
	Error       string
}

type formView struct {
	ID          string
	Title       string
	Description string
	Action      string
	SubmitText  string
	Submitting  bool
	Fields      []fieldView
}

type confirmationView struct {
	ID      string
	Title   string
	Message string
}

// Renderer writes server-side HTML for a FormSession.
type Renderer struct {
	tmpl   *template.Template
	action string
}

// NewRenderer parses the form templates. action is the form's POST target;
// an empty action posts back to the current URL.
func NewRenderer(action string) (*Renderer, error) {
	tmpl, err := template.New("formflow").Parse(formTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, action: action}, nil
}

// Render writes the form in field order, or the confirmation message once
// the session has been submitted successfully.
func (r *Renderer) Render(w io.Writer, session *FormSession) error {
	schema := session.Schema()
	if session.Submitted() {
		msg := schema.Settings.ConfirmationMessage
		if msg == "" {
			msg = formflow.DefaultConfirmationMessage
		}
		return r.tmpl.ExecuteTemplate(w, "confirmation", confirmationView{ID: schema.ID, Title: schema.Title, Message: msg})
	}

	view := formView{
		ID:          schema.ID,
		Title:       schema.Title,
		Description: schema.Description,
		Action:      r.action,
		SubmitText:  schema.Settings.SubmitText,
		Submitting:  session.Submitting(),
		Fields:      make([]fieldView, 0, len(schema.Fields)),
	}
	if view.SubmitText == "" {
		view.SubmitText = formflow.DefaultSubmitText
	}

	for _, f := range schema.Fields {
		if !session.Visible(f) {
			continue
		}
		view.Fields = append(view.Fields, buildFieldView(f, session))
	}

	if err := r.tmpl.ExecuteTemplate(w, "form", view); err != nil {
		return fmt.Errorf("failed to render form %s: %w", schema.ID, err)
	}
	return nil
}

func buildFieldView(f formflow.FieldDefinition, session *FormSession) fieldView {
	fv := fieldView{
		ID:          f.ID,
		Name:        f.Name,
		Type:        string(f.Type),
		Label:       f.Label,
		Placeholder: f.Placeholder,
		HelpText:    f.HelpText,
	}
	if fv.ID == "" {
		fv.ID = "field-" + f.Name
	}
	if !f.Type.IsInput() {
		return fv
	}

	fv.Required = f.IsRequired()
	fv.Error = session.VisibleError(f.Name)

	value := session.Value(f.Name)
	selected := map[string]bool{}
	if items, ok := listValue(value); ok {
		for _, item := range items {
			selected[item] = true
		}
	} else if !isEmptyValue(value) {
		selected[scalarString(value)] = true
	}

	switch {
	case f.Type.HasOptions() && len(f.Options) > 0:
		for _, opt := range f.Options {
			fv.Options = append(fv.Options, optionView{Label: opt.Label, Value: opt.Value, Selected: selected[opt.Value]})
		}
	case f.Type == formflow.FieldTypeCheckbox:
		fv.Checked = isChecked(value)
	default:
		fv.Value = displayValue(value)
	}
	return fv
}

func isChecked(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		if val == "on" {
			return true
		}
		b, err := strconv.ParseBool(val)
		return err == nil && b
	default:
		return false
	}
}

// ValuesFromForm converts posted form values into a value map keyed by
// field name. Option checkboxes become lists, a single checkbox becomes a
// boolean and numbers are parsed when they are well formed.
func ValuesFromForm(schema *formflow.FormSchema, form url.Values) map[string]any {
	values := make(map[string]any)
	for _, f := range schema.InputFields() {
		posted := form[f.Name]
		switch {
		case f.Type == formflow.FieldTypeCheckbox && len(f.Options) > 0:
			items := make([]any, 0, len(posted))
			for _, p := range posted {
				if p != "" {
					items = append(items, p)
				}
			}
			values[f.Name] = items
		case f.Type == formflow.FieldTypeCheckbox:
			values[f.Name] = len(posted) > 0 && isChecked(posted[0])
		case len(posted) == 0:
			continue
		case f.Type == formflow.FieldTypeNumber:
			raw := strings.TrimSpace(posted[0])
			if n, err := strconv.ParseFloat(raw, 64); err == nil {
				values[f.Name] = n
			} else {
				values[f.Name] = raw
			}
		default:
			values[f.Name] = posted[0]
		}
	}
	return values
}
