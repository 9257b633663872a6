package tags

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	hlhtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/CTAG07/markus/pkg/markus"
)

// renderCode writes a <pre> block when the tag stands on its own lines and
// <tt> when it is inlined in text.
func renderCode(c *markus.Call) (string, error) {
	src := c.Node.Text()
	if src == "" {
		return "", nil
	}
	code, err := highlight(c.Attr("lang"), src)
	if err != nil {
		return "", err
	}
	if code == "" {
		code = c.Content
	}
	if !isBlock(c) {
		return "<tt>" + code + "</tt>", nil
	}
	attrs := c.Node.Attributes().String()
	if attrs != "" {
		attrs = " " + attrs
	}
	return `<pre class="code"` + attrs + ">" + code + "</pre>", nil
}

// isBlock reports whether the node is separated from surrounding text by line
// breaks. A tag nested in another tag with no neighbours is never a block.
// A lone tag directly under the root is deliberately a block, so a document
// that is only a code tag renders as <pre> rather than <tt>.
func isBlock(c *markus.Call) bool {
	if c.Before == nil && c.After == nil && !c.Node.Parent().IsRoot() {
		return false
	}
	endsLine := c.Before == nil || !c.Before.IsText() ||
		strings.HasSuffix(c.Before.Text, "\n") || strings.HasSuffix(c.Before.Text, "\r")
	startsLine := c.After == nil || !c.After.IsText() ||
		strings.HasPrefix(c.After.Text, "\n") || strings.HasPrefix(c.After.Text, "\r")
	return endsLine && startsLine
}

// highlight returns HTML with chroma token classes, or "" when no lexer
// matches lang.
func highlight(lang, src string) (string, error) {
	if lang == "" {
		return "", nil
	}
	l := lexers.Get(strings.TrimSpace(lang))
	if l == nil {
		return "", nil
	}
	l = chroma.Coalesce(l)

	it, err := l.Tokenise(nil, src)
	if err != nil {
		return "", fmt.Errorf("tokenising %s code: %w", lang, err)
	}
	f := hlhtml.New(hlhtml.Standalone(false), hlhtml.WithClasses(true), hlhtml.PreventSurroundingPre(true))
	var buf bytes.Buffer
	if err = f.Format(&buf, styles.Fallback, it); err != nil {
		return "", fmt.Errorf("formatting %s code: %w", lang, err)
	}
	return buf.String(), nil
}
