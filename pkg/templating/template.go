package templating

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/CTAG07/markus/pkg/markus"
	"github.com/CTAG07/markus/pkg/tags"
)

// Functions take any so they accept .Content, which is template.HTML.
var funcMap = template.FuncMap{
	"attr":    func(v view, name string) string { return v.Attrs[name] },
	"join":    func(sep string, list []string) string { return strings.Join(list, sep) },
	"upper":   func(s any) string { return strings.ToUpper(str(s)) },
	"lower":   func(s any) string { return strings.ToLower(str(s)) },
	"urlize":  func(s any) string { return tags.Urlize(str(s)) },
	"default": defaultValue,
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// defaultValue returns value, or def when value is empty.
func defaultValue(def string, value any) string {
	if s := str(value); s != "" {
		return s
	}
	return def
}

// templateHandler renders a tag through an html/template body. The rendered
// content is passed as template.HTML so it is not escaped a second time.
type templateHandler struct {
	t *template.Template
}

func newTemplateHandler(name, body string) (*templateHandler, error) {
	t, err := template.New(name).Funcs(funcMap).Parse(body)
	if err != nil {
		return nil, err
	}
	return &templateHandler{t: t}, nil
}

func (h *templateHandler) Render(c *markus.Call) (string, error) {
	var buf bytes.Buffer
	if err := h.t.Execute(&buf, newView(c, template.HTML(c.Content))); err != nil {
		return "", err
	}
	return buf.String(), nil
}
