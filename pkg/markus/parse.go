package markus

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Parse scans text into a Document using the tags of opts.Context. It returns
// nil for empty text. Parsing never fails: malformed markup is kept as text.
func (r *Registry) Parse(text string, opts Options) *Document {
	if text == "" {
		return nil
	}
	p := &parser{
		registry: r,
		context:  opts.context(),
		text:     text,
		doc:      &Document{registry: r},
	}
	p.run()
	return p.doc
}

type parser struct {
	registry *Registry
	context  string
	text     string
	doc      *Document
	current  *Node
}

func (p *parser) run() {
	root := p.doc.newNode(none, RootTag, RootTag, p.registry.Lookup(p.context, RootTag))
	p.current = root
	text := p.text
	end := 0
	for {
		start := indexUnescaped(text, '<', end)
		if start < 0 {
			break
		}
		gt := indexUnescaped(text, '>', start+1)
		if gt < 0 {
			break
		}
		if start > end {
			p.current.addText(unescape(text[end:start]))
		}
		end = gt + 1
		raw := text[start:end]
		inner := text[start+1 : gt]

		if strings.HasPrefix(inner, "/") {
			p.closeTag(strings.TrimSpace(inner[1:]), raw)
			continue
		}

		definition := inner
		selfClosing := strings.HasSuffix(inner, "/")
		if selfClosing {
			definition = inner[:len(inner)-1]
			if slashIsValue(definition) {
				selfClosing = false
				definition = inner
			}
		}
		n := p.open(definition)
		if n == nil {
			p.current.addText(raw)
			continue
		}
		if selfClosing {
			n.selfClosing = true
			p.close(n, "")
			continue
		}
		if n.entry.NonNesting {
			closing := "</" + n.name + ">"
			if k := strings.Index(text[end:], closing); k >= 0 {
				n.addText(text[end : end+k])
				end += k + len(closing)
				p.close(n, closing)
				continue
			}
		}
		p.current = n
	}

	if end < len(text) {
		p.current.addText(unescape(text[end:]))
	}
	for p.current != root {
		parent := p.current.Parent()
		p.close(p.current, "")
		p.current = parent
	}
}

// open creates a tag node under the current node. It returns nil when the
// definition has no name.
func (p *parser) open(definition string) *Node {
	toks := tokenize(definition, false)
	var name string
	rest := toks
	for i, t := range toks {
		if !t.attr {
			name = t.text
			rest = toks[i+1:]
			break
		}
	}
	if name == "" {
		return nil
	}

	entry := p.registry.Lookup(p.context, name)
	n := p.doc.newNode(p.current.id, name, definition, entry)
	pending := ""
	for _, t := range rest {
		switch {
		case t.attr:
			pending = t.text
		case pending != "":
			n.attrs.Set(entry.Schema.Canonical(pending), t.text)
			pending = ""
		default:
			n.values = append(n.values, t.text)
		}
	}
	if entry.Schema != nil {
		n.merge(entry.Schema)
	}
	if entry.Initialize != nil {
		entry.Initialize(n)
	}
	return n
}

// closeTag handles `</name>`. Open tags between the current node and the
// matching ancestor are closed implicitly. A closing tag without a matching
// open tag stays in the output as text.
func (p *parser) closeTag(name, raw string) {
	target := p.current
	for name != "" && !target.IsRoot() && !strings.EqualFold(target.name, name) {
		target = target.Parent()
	}
	if name == "" || target.IsRoot() {
		p.current.addText(raw)
		return
	}
	for p.current != target {
		parent := p.current.Parent()
		p.close(p.current, "")
		p.current = parent
	}
	p.current = target.Parent()
	p.close(target, raw)
}

func (p *parser) close(n *Node, end string) {
	parent := p.doc.nodes[n.parent]
	n.end = end
	n.index = len(parent.items)
	parent.items = append(parent.items, item{node: n.id})
}

// slashIsValue reports whether a trailing slash belongs to the last value of
// the definition, as in `<url http://x/>`, rather than marking `<url/>` or
// `<img src />` as self-closing.
func slashIsValue(definition string) bool {
	if definition == "" || strings.IndexFunc(definition, unicode.IsSpace) < 0 {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(definition)
	return !unicode.IsSpace(last)
}

// indexUnescaped returns the index of the first c at or after from that is
// not preceded by an odd number of backslashes.
func indexUnescaped(s string, c byte, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] != c {
			continue
		}
		slashes := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			slashes++
		}
		if slashes%2 == 0 {
			return i
		}
	}
	return -1
}

// unescape replaces every `\X` by X.
func unescape(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
