/*
Package markus parses and renders a small tag markup language into HTML.

Markup looks like HTML but is not validated as such: a tag carries a name,
named attributes and unnamed positional values, for example
`<note title="Careful" warn>text</note>` or `<url http://example.com/>`.
Tags are dispatched to handlers registered on a Registry, grouped into named
contexts so that the same tag can mean different things on different pages.
Tags the registry does not know are passed through unchanged.

Parsing is a single linear scan that never fails: unterminated tags become
literal text, mismatched closing tags are kept as text, and tags left open at
the end of the input are closed implicitly. A parsed Document can be cached and
rendered any number of times; every node memoizes its output per set of render
options, so handlers run at most once per node and option set.

	r := markus.NewRegistry()
	_ = r.RegisterFunc("bold", func(c *markus.Call) (string, error) {
		return "<b>" + c.Content + "</b>", nil
	})
	out, err := r.Render("text <bold>word</bold> more", markus.Options{})
*/
package markus
