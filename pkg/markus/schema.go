package markus

import (
	"strings"
)

// Param is one declared attribute of a tag.
type Param struct {
	Name       string
	Default    string
	HasDefault bool
	// DefaultsFollow is set when a later parameter declares a default.
	DefaultsFollow bool
}

// Schema is the compiled attribute declaration of a tag, such as
// `id, class="box"`. Positional values in markup fill the parameters in order.
type Schema struct {
	Params []Param
	lookup map[string]string
}

// ParseSchema compiles an attribute declaration. Parameters are separated by
// whitespace or commas; `name=value` declares a default and a bare name
// declares a parameter without one. It returns nil if nothing is declared.
func ParseSchema(declaration string) *Schema {
	var params []Param
	pending := ""
	for _, tok := range tokenize(declaration, true) {
		if tok.attr {
			pending = tok.text
			continue
		}
		if pending == "" {
			params = append(params, Param{Name: tok.text})
		} else {
			params = append(params, Param{Name: pending, Default: tok.text, HasDefault: true})
		}
		pending = ""
	}
	if len(params) == 0 {
		return nil
	}

	follow := false
	for i := len(params) - 1; i >= 0; i-- {
		params[i].DefaultsFollow = follow
		follow = follow || params[i].HasDefault
	}

	s := &Schema{Params: params, lookup: make(map[string]string, len(params))}
	for _, p := range params {
		s.lookup[strings.ToLower(p.Name)] = p.Name
	}
	return s
}

// Canonical maps an attribute name as written in markup to its declared
// spelling. Unknown names are returned unchanged.
func (s *Schema) Canonical(name string) string {
	if s == nil {
		return name
	}
	if declared, ok := s.lookup[strings.ToLower(name)]; ok {
		return declared
	}
	return name
}

// String reproduces the declaration in its normalized form.
func (s *Schema) String() string {
	if s == nil {
		return ""
	}
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		if p.HasDefault {
			parts[i] = p.Name + "=" + quote(p.Default)
		} else {
			parts[i] = p.Name
		}
	}
	return strings.Join(parts, ", ")
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

type token struct {
	text string
	attr bool
}

// tokenize splits a tag interior into `name=` announcements and values.
// Values are quoted strings, with backslash escapes removed, or bare runs of
// non-whitespace. With commas set, commas separate tokens like whitespace.
func tokenize(s string, commas bool) []token {
	var toks []token
	sep := func(c byte) bool {
		return isSpace(c) || (commas && c == ',')
	}
	i := 0
	for i < len(s) {
		c := s[i]
		if sep(c) {
			i++
			continue
		}

		j := i
		for j < len(s) && isWord(s[j]) {
			j++
		}
		if j > i && j < len(s) && s[j] == '=' {
			toks = append(toks, token{text: s[i:j], attr: true})
			i = j + 1
			continue
		}

		if c == '"' || c == '\'' {
			var b strings.Builder
			j = i + 1
			for j < len(s) && s[j] != c {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				b.WriteByte(s[j])
				j++
			}
			toks = append(toks, token{text: b.String()})
			i = j + 1
			continue
		}

		j = i
		for j < len(s) && !sep(s[j]) {
			j++
		}
		toks = append(toks, token{text: s[i:j]})
		i = j
	}
	return toks
}

func isWord(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
