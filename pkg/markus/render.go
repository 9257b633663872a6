package markus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Options control parsing and rendering.
type Options struct {
	// Context selects the tag namespace. Empty means DefaultContext.
	Context string
	// Encoding names the encoder applied to literal text. Empty or unknown
	// names fall back to EncodingNone.
	Encoding string
	// AllowedTags is a comma separated list of tag names that may render
	// through their handlers. Empty allows all tags. Ignored when Allowed is set.
	AllowedTags string
	Allowed     TagSet
	// Data is passed through to handlers untouched.
	Data map[string]any
}

func (o Options) context() string {
	if o.Context == "" {
		return DefaultContext
	}
	return o.Context
}

// TagSet is a set of lowercase tag names.
type TagSet map[string]struct{}

// ParseTagSet builds a set from a comma separated list. An empty list yields
// nil, which allows every tag.
func ParseTagSet(list string) TagSet {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	set := make(TagSet)
	for _, n := range strings.Split(list, ",") {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Allows reports whether name is in the set. A nil set allows everything.
func (s TagSet) Allows(name string) bool {
	if s == nil {
		return true
	}
	_, ok := s[strings.ToLower(name)]
	return ok
}

func (s TagSet) String() string {
	if s == nil {
		return "*"
	}
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// RenderError reports a handler failure and the tag it happened in.
type RenderError struct {
	Tag string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("markus: rendering <%s>: %v", e.Tag, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Call carries everything a handler needs to render one node.
type Call struct {
	Node *Node
	// Content is the rendered content of the node's items.
	Content string
	Options Options
	Encode  Encoder
	// Before and After are the items next to the node in its parent, or nil.
	Before *Item
	After  *Item

	r *renderer
}

// Attr returns the value of a named attribute of the node, or "".
func (c *Call) Attr(name string) string { return c.Node.Attr(name) }

// Value returns the i-th remaining positional value of the node, or "".
func (c *Call) Value(i int) string { return c.Node.Value(i) }

// RenderItem renders a single item of the node.
func (c *Call) RenderItem(i int) (string, error) {
	if i < 0 || i >= len(c.Node.items) {
		return "", nil
	}
	return c.r.item(c.Node.items[i])
}

// RenderItems renders the items in [from, to) of the node and concatenates
// the results.
func (c *Call) RenderItems(from, to int) (string, error) {
	return c.r.items(c.Node, from, to)
}

// Render renders the document. Each node's output is memoized per encoding
// and allow-list, so rendering again with equal options returns the same
// string without calling handlers again. A handler error aborts the render.
func (d *Document) Render(opts Options) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	allowed := opts.Allowed
	if allowed == nil {
		allowed = ParseTagSet(opts.AllowedTags)
	}
	encoding, enc := d.registry.Encoder(opts.Encoding)
	r := &renderer{
		doc:     d,
		opts:    opts,
		encode:  enc,
		allowed: allowed,
		key:     encoding + "|" + allowed.String(),
	}
	return r.node(d.Root())
}

type renderer struct {
	doc     *Document
	opts    Options
	encode  Encoder
	allowed TagSet
	key     string
}

func (r *renderer) node(n *Node) (string, error) {
	if out, ok := n.rendered[r.key]; ok {
		return out, nil
	}
	if !n.IsRoot() && !r.allowed.Allows(n.name) {
		return r.encode(n.Source()), nil
	}
	content, err := r.items(n, 0, len(n.items))
	if err != nil {
		return "", err
	}
	c := &Call{
		Node:    n,
		Content: content,
		Options: r.opts,
		Encode:  r.encode,
		r:       r,
	}
	if p := n.Parent(); p != nil {
		c.Before = p.Item(n.index - 1)
		c.After = p.Item(n.index + 1)
	}
	out, err := n.entry.Handler.Render(c)
	if err != nil {
		var re *RenderError
		if errors.As(err, &re) {
			return "", err
		}
		return "", &RenderError{Tag: n.name, Err: err}
	}
	if n.rendered == nil {
		n.rendered = make(map[string]string, 1)
	}
	n.rendered[r.key] = out
	return out, nil
}

func (r *renderer) items(n *Node, from, to int) (string, error) {
	from = max(from, 0)
	to = min(to, len(n.items))
	var b strings.Builder
	for i := from; i < to; i++ {
		s, err := r.item(n.items[i])
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func (r *renderer) item(it item) (string, error) {
	if it.node == none {
		return r.encode(it.text), nil
	}
	return r.node(r.doc.nodes[it.node])
}
