package templating

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CTAG07/markus/pkg/markus"
)

// TagFile is the document stored in a *.tag.yaml file.
type TagFile struct {
	// Context applies to every tag of the file that does not name its own.
	Context string    `yaml:"context"`
	Tags    []TagSpec `yaml:"tags"`
}

// TagSpec declares one tag. Exactly one of Template and Script must be set.
type TagSpec struct {
	Names      string `yaml:"names"`
	Context    string `yaml:"context"`
	Attributes string `yaml:"attributes"`
	// Nesting defaults to true. A false value captures the content raw.
	Nesting  *bool  `yaml:"nesting"`
	Template string `yaml:"template"`
	Script   string `yaml:"script"`
}

// Kind reports how the tag renders: "template" or "script".
func (s TagSpec) Kind() string {
	if s.Script != "" {
		return "script"
	}
	return "template"
}

var (
	ErrNoBody   = errors.New("tag has neither a template nor a script")
	ErrTwoBodys = errors.New("tag has both a template and a script")
)

// decodeTagFile reads one tag file. Unknown fields are an error when strict.
func decodeTagFile(r io.Reader, strict bool) (*TagFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(strict)
	var f TagFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, err
	}
	return &f, nil
}

// compiled is a tag ready to be registered.
type compiled struct {
	names   []string
	context string
	kind    string
	file    string
	def     markus.Definition
}

// compile validates every spec of f and builds its handler.
func (tm *TagManager) compile(file string, f *TagFile) ([]compiled, error) {
	var out []compiled
	for i, spec := range f.Tags {
		names := splitNames(spec.Names)
		if len(names) == 0 {
			return nil, fmt.Errorf("%s: tag %d: %w", file, i, markus.ErrNoTagNames)
		}
		ctx := spec.Context
		if ctx == "" {
			ctx = f.Context
		}
		if ctx == "" {
			ctx = tm.config.DefaultContext
		}

		var (
			h   markus.Handler
			err error
		)
		switch {
		case spec.Template == "" && spec.Script == "":
			err = ErrNoBody
		case spec.Template != "" && spec.Script != "":
			err = ErrTwoBodys
		case spec.Script != "":
			h, err = newScriptHandler(file+":"+names[0], spec.Script, tm.config.MaxScriptSteps)
		default:
			h, err = newTemplateHandler(names[0], spec.Template)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: tag %q: %w", file, names[0], err)
		}

		out = append(out, compiled{
			names:   names,
			context: ctx,
			kind:    spec.Kind(),
			file:    file,
			def: markus.Definition{
				Handler:    h,
				Attributes: spec.Attributes,
				NonNesting: spec.Nesting != nil && !*spec.Nesting,
				Context:    ctx,
			},
		})
	}
	return out, nil
}

func splitNames(list string) []string {
	var names []string
	for _, n := range strings.Split(list, ",") {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// view is the value a tag template executes against, and the fields a
// script sees on its tag argument.
type view struct {
	Name    string
	Content any
	Attrs   map[string]string
	Values  []string
	Before  string
	After   string
	Data    map[string]any
}

func newView(c *markus.Call, content any) view {
	v := view{
		Name:    c.Node.Name(),
		Content: content,
		Attrs:   c.Node.Attributes().Map(),
		Values:  c.Node.Values(),
		Data:    c.Options.Data,
	}
	if c.Before != nil {
		v.Before = c.Before.Text
	}
	if c.After != nil {
		v.After = c.After.Text
	}
	return v
}
