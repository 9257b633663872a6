package markus

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRenderEndToEnd(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterFunc("bold", func(c *Call) (string, error) {
		return "<b>" + c.Content + "</b>", nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc() error = %v", err)
	}
	out, err := r.Render("text <bold>word</bold> more", Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "text <b>word</b> more"; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
}

func TestRenderMemoization(t *testing.T) {
	var calls int32
	r := setupRegistry(t, map[string]Definition{
		"count": {Handler: HandlerFunc(func(c *Call) (string, error) {
			n := atomic.AddInt32(&calls, 1)
			return strings.Repeat("+", int(n)) + c.Content, nil
		})},
	})
	doc := mustParse(t, r, "<count>a & b</count>")

	first, err := doc.Render(Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := doc.Render(Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if first != second {
		t.Errorf("second render = %q, want %q", second, first)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}

	escaped, err := doc.Render(Options{Encoding: EncodingHTML})
	if err != nil {
		t.Fatalf("Render(html) error = %v", err)
	}
	if want := "++a &amp; b"; escaped != want {
		t.Errorf("Render(html) = %q, want %q", escaped, want)
	}
	if calls != 2 {
		t.Errorf("handler called %d times after a new encoding, want 2", calls)
	}

	// Unknown encodings fall back to none and share its memo.
	if _, err = doc.Render(Options{Encoding: "bogus"}); err != nil {
		t.Fatalf("Render(bogus) error = %v", err)
	}
	if calls != 2 {
		t.Errorf("handler called %d times for a fallback encoding, want 2", calls)
	}
}

func TestRenderConcurrent(t *testing.T) {
	var calls int32
	r := setupRegistry(t, map[string]Definition{
		"count": {Handler: HandlerFunc(func(c *Call) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "<" + c.Content + ">", nil
		})},
	})
	doc := mustParse(t, r, "<count>x</count><count>y</count>")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := doc.Render(Options{})
			if err != nil || out != "<x><y>" {
				t.Errorf("Render() = %q, %v", out, err)
			}
		}()
	}
	wg.Wait()
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}

func TestRenderAllowList(t *testing.T) {
	r := setupRegistry(t, map[string]Definition{
		"b": wrap("b"),
		"i": wrap("i"),
	})
	in := "<b>x</b><i>y</i>"

	testCases := []struct {
		name string
		opts Options
		want string
	}{
		{name: "all allowed", opts: Options{}, want: "[b:x][i:y]"},
		{name: "string list", opts: Options{AllowedTags: "b"}, want: "[b:x]<i>y</i>"},
		{name: "set", opts: Options{Allowed: TagSet{"b": {}}}, want: "[b:x]<i>y</i>"},
		{name: "list is trimmed", opts: Options{AllowedTags: " B , x "}, want: "[b:x]<i>y</i>"},
		{name: "encoded source", opts: Options{AllowedTags: "b", Encoding: EncodingHTML}, want: "[b:x]&lt;i&gt;y&lt;/i&gt;"},
		{name: "nothing allowed", opts: Options{Allowed: TagSet{}}, want: "<b>x</b><i>y</i>"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := r.Render(in, tc.opts)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if out != tc.want {
				t.Errorf("Render() = %q, want %q", out, tc.want)
			}
		})
	}
}

func TestRenderHTMLEncoding(t *testing.T) {
	r := NewRegistry()
	out, err := r.Render(`a < b & "c"`, Options{Encoding: EncodingHTML})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "a &lt; b &amp; &#34;c&#34;"; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}

	// Unknown tags are passed through the encoder as well.
	out, err = r.Render("<x>y</x>", Options{Encoding: EncodingHTML})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "&lt;x&gt;y&lt;/x&gt;"; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
}

func TestRenderCustomEncoder(t *testing.T) {
	r := setupRegistry(t, map[string]Definition{"b": wrap("b")})
	if err := r.Encode("upper", strings.ToUpper); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := r.Render("a<b>c</b>", Options{Encoding: "upper"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "A[b:C]"; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
}

func TestRenderNeighbours(t *testing.T) {
	var before, after *Item
	r := setupRegistry(t, map[string]Definition{
		"blk": {Handler: HandlerFunc(func(c *Call) (string, error) {
			before, after = c.Before, c.After
			return c.Content, nil
		})},
		"b": wrap("b"),
	})

	if _, err := r.Render("line\n<blk>x</blk>\nmore", Options{}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if before == nil || before.Text != "line\n" {
		t.Errorf("Before = %+v, want text %q", before, "line\n")
	}
	if after == nil || after.Text != "\nmore" {
		t.Errorf("After = %+v, want text %q", after, "\nmore")
	}

	if _, err := r.Render("<blk>x</blk>", Options{}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if before != nil || after != nil {
		t.Errorf("Before, After = %+v, %+v; want nil, nil", before, after)
	}

	if _, err := r.Render("<b>1</b><blk>x</blk>", Options{}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if before == nil || before.IsText() || before.Node.Name() != "b" {
		t.Errorf("Before = %+v, want the b tag", before)
	}
}

func TestRenderHandlerError(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	r := setupRegistry(t, map[string]Definition{
		"bold": wrap("bold"),
		"fail": {Handler: HandlerFunc(func(c *Call) (string, error) {
			calls++
			return "", boom
		})},
	})
	doc := mustParse(t, r, "<bold><fail/></bold>")

	_, err := doc.Render(Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("Render() error = %v, want %v", err, boom)
	}
	var re *RenderError
	if !errors.As(err, &re) || re.Tag != "fail" {
		t.Errorf("Render() error = %#v, want a RenderError for <fail>", err)
	}
	if want := "markus: rendering <fail>: boom"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if _, err = doc.Render(Options{}); err == nil {
		t.Error("second Render() succeeded, want the error again")
	}
	if calls != 2 {
		t.Errorf("failing handler called %d times, want 2", calls)
	}
}

func TestRenderContexts(t *testing.T) {
	r := NewRegistry()
	defs := []struct {
		names string
		def   Definition
	}{
		{"note", wrap("default")},
		{"note", Definition{Context: "docs", Handler: wrap("docs").Handler}},
		{"undefined", Definition{Context: "docs", Handler: HandlerFunc(func(c *Call) (string, error) {
			return "", nil
		})}},
		{"root", Definition{Context: "page", Handler: HandlerFunc(func(c *Call) (string, error) {
			return "<div>" + c.Content + "</div>", nil
		})}},
	}
	for _, d := range defs {
		if err := r.Register(d.names, d.def); err != nil {
			t.Fatalf("Register(%q) error = %v", d.names, err)
		}
	}

	testCases := []struct {
		context string
		want    string
	}{
		{context: "", want: "[default:n]<x>u</x>"},
		{context: "docs", want: "[docs:n]"},
		{context: "page", want: "<div>[default:n]<x>u</x></div>"},
		{context: "missing", want: "[default:n]<x>u</x>"},
	}
	for _, tc := range testCases {
		t.Run(tc.context, func(t *testing.T) {
			out, err := r.Render("<note>n</note><x>u</x>", Options{Context: tc.context})
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if out != tc.want {
				t.Errorf("Render() = %q, want %q", out, tc.want)
			}
		})
	}
}

func TestRenderSelectedItems(t *testing.T) {
	r := setupRegistry(t, map[string]Definition{
		"first": {Handler: HandlerFunc(func(c *Call) (string, error) {
			head, err := c.RenderItem(0)
			if err != nil {
				return "", err
			}
			tail, err := c.RenderItems(1, c.Node.Len())
			if err != nil {
				return "", err
			}
			return head + "|" + tail, nil
		})},
		"b": wrap("b"),
	})
	out, err := r.Render("<first><b>1</b>2<b>3</b></first>", Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "[b:1]|2[b:3]"; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
}

func TestRenderData(t *testing.T) {
	r := setupRegistry(t, map[string]Definition{
		"site": {Handler: HandlerFunc(func(c *Call) (string, error) {
			name, _ := c.Options.Data["site"].(string)
			return name, nil
		})},
	})
	out, err := r.Render("Welcome to <site/>", Options{Data: map[string]any{"site": "Lehni"}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "Welcome to Lehni"; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
}

func TestRenderAttributesAndValues(t *testing.T) {
	r := setupRegistry(t, map[string]Definition{
		"link": {Attributes: `href, title="link"`, Handler: HandlerFunc(func(c *Call) (string, error) {
			return c.Attr("href") + " " + c.Attr("title") + " " + c.Value(0), nil
		})},
	})
	out, err := r.Render(`<link /a "A title" extra>`, Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "/a A title extra"; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
}
