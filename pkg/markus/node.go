package markus

import (
	"strings"
	"sync"
)

const none = -1

// Document is a parsed markup tree. It owns all of its nodes; links between
// nodes are positions in the document's node list.
type Document struct {
	registry *Registry
	nodes    []*Node
	mu       sync.Mutex
}

// Root returns the implicit root node.
func (d *Document) Root() *Node {
	return d.nodes[0]
}

// Len returns the number of nodes, the root included.
func (d *Document) Len() int {
	return len(d.nodes)
}

// Node returns the node with the given id, or nil.
func (d *Document) Node(id int) *Node {
	if id < 0 || id >= len(d.nodes) {
		return nil
	}
	return d.nodes[id]
}

// Source reconstructs the markup of the whole document.
func (d *Document) Source() string {
	var b strings.Builder
	d.Root().writeItems(&b)
	return b.String()
}

type item struct {
	text string
	node int
}

// Item is one entry of a node's content: either literal text or a child tag.
type Item struct {
	Text string
	Node *Node
}

// IsText reports whether the item is literal text.
func (it *Item) IsText() bool {
	return it.Node == nil
}

// Node is a tag in a Document.
type Node struct {
	doc        *Document
	id         int
	name       string
	definition string
	entry      *Entry
	attrs      *Attributes
	values     []string

	items    []item
	children []int
	parent   int
	previous int
	next     int
	index    int

	selfClosing bool
	end         string

	rendered map[string]string
}

func (d *Document) newNode(parent int, name, definition string, entry *Entry) *Node {
	n := &Node{
		doc:        d,
		id:         len(d.nodes),
		name:       name,
		definition: definition,
		entry:      entry,
		attrs:      newAttributes(),
		parent:     parent,
		previous:   none,
		next:       none,
		index:      none,
	}
	d.nodes = append(d.nodes, n)
	if parent != none {
		p := d.nodes[parent]
		if k := len(p.children); k > 0 {
			prev := d.nodes[p.children[k-1]]
			n.previous = prev.id
			prev.next = n.id
		}
		p.children = append(p.children, n.id)
	}
	return n
}

// ID is the node's position in its document.
func (n *Node) ID() int { return n.id }

// Name is the tag name as written in the markup.
func (n *Node) Name() string { return n.name }

// Definition is the raw text between the tag delimiters, without the
// self-closing slash.
func (n *Node) Definition() string { return n.definition }

func (n *Node) Entry() *Entry { return n.entry }

func (n *Node) Attributes() *Attributes { return n.attrs }

// Values returns the positional values left after the attribute schema took
// what it needed.
func (n *Node) Values() []string { return n.values }

// Value returns the i-th remaining positional value, or "".
func (n *Node) Value(i int) string {
	if i < 0 || i >= len(n.values) {
		return ""
	}
	return n.values[i]
}

// Attr returns the value of a named attribute, or "".
func (n *Node) Attr(name string) string { return n.attrs.Value(name) }

func (n *Node) IsRoot() bool { return n.parent == none }

// SelfClosing reports whether the tag was written as `<name/>`.
func (n *Node) SelfClosing() bool { return n.selfClosing }

// End is the closing tag as written, or "" when the tag was self-closing or
// closed implicitly.
func (n *Node) End() string { return n.end }

// Index is the node's position among its parent's items. It is -1 until the
// node has been closed.
func (n *Node) Index() int { return n.index }

func (n *Node) Document() *Document { return n.doc }

func (n *Node) Parent() *Node {
	return n.doc.Node(n.parent)
}

// Previous returns the preceding tag among the parent's children, skipping text.
func (n *Node) Previous() *Node {
	return n.doc.Node(n.previous)
}

// Next returns the following tag among the parent's children, skipping text.
func (n *Node) Next() *Node {
	return n.doc.Node(n.next)
}

// Children returns the child tags in document order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	for i, id := range n.children {
		out[i] = n.doc.nodes[id]
	}
	return out
}

// Len returns the number of content items.
func (n *Node) Len() int { return len(n.items) }

// Item returns the content item at i, or nil when out of range.
func (n *Node) Item(i int) *Item {
	if i < 0 || i >= len(n.items) {
		return nil
	}
	it := n.items[i]
	if it.node == none {
		return &Item{Text: it.text}
	}
	return &Item{Node: n.doc.nodes[it.node]}
}

// Items returns the content of the node: literal text and child tags in order.
func (n *Node) Items() []Item {
	out := make([]Item, len(n.items))
	for i := range n.items {
		out[i] = *n.Item(i)
	}
	return out
}

// Text concatenates the literal text items directly inside the node.
func (n *Node) Text() string {
	var b strings.Builder
	for _, it := range n.items {
		if it.node == none {
			b.WriteString(it.text)
		}
	}
	return b.String()
}

// Source reconstructs the markup of the tag and its content.
func (n *Node) Source() string {
	if n.IsRoot() {
		return n.doc.Source()
	}
	var b strings.Builder
	n.writeSource(&b)
	return b.String()
}

func (n *Node) writeSource(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(n.definition)
	if n.selfClosing {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	n.writeItems(b)
	b.WriteString(n.end)
}

func (n *Node) writeItems(b *strings.Builder) {
	for _, it := range n.items {
		if it.node == none {
			b.WriteString(it.text)
		} else {
			n.doc.nodes[it.node].writeSource(b)
		}
	}
}

func (n *Node) String() string { return n.Source() }

func (n *Node) addText(s string) {
	if s == "" {
		return
	}
	n.items = append(n.items, item{text: s, node: none})
}

// merge fills declared attributes the markup left out, first from the
// positional values in order, then from the declared defaults. Consumed
// values are removed.
func (n *Node) merge(s *Schema) {
	used := 0
	for _, p := range s.Params {
		if !n.attrs.Has(p.Name) {
			if used < len(n.values) {
				n.attrs.Set(p.Name, n.values[used])
				used++
			} else if p.HasDefault {
				n.attrs.Set(p.Name, p.Default)
			}
		}
		if !p.DefaultsFollow && used >= len(n.values) {
			break
		}
	}
	if used > 0 {
		n.values = n.values[used:]
	}
}
