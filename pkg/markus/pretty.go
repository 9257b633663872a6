package markus

import (
	"bytes"
	"fmt"
)

// Pretty returns a line-oriented representation of the document tree.
func Pretty(doc *Document) string {
	if doc == nil {
		return ""
	}
	var buf bytes.Buffer
	ppNode(&buf, 0, doc.Root())
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n *Node) {
	ind := func(k int) {
		for i := 0; i < k; i++ {
			buf.WriteByte(' ')
		}
	}
	ind(indent)
	switch {
	case n.IsRoot():
		buf.WriteString("Root\n")
	case n.SelfClosing():
		fmt.Fprintf(buf, "Tag(%s)/", n.Name())
		ppDetails(buf, n)
	default:
		fmt.Fprintf(buf, "Tag(%s)", n.Name())
		ppDetails(buf, n)
	}
	for _, it := range n.Items() {
		if it.IsText() {
			ind(indent + 2)
			fmt.Fprintf(buf, "Text(%q)\n", it.Text)
			continue
		}
		ppNode(buf, indent+2, it.Node)
	}
}

func ppDetails(buf *bytes.Buffer, n *Node) {
	if n.attrs.Len() > 0 {
		fmt.Fprintf(buf, " [%s]", n.attrs.String())
	}
	if len(n.values) > 0 {
		fmt.Fprintf(buf, " %q", n.values)
	}
	if n.entry.NonNesting {
		buf.WriteString(" raw")
	}
	buf.WriteByte('\n')
}
