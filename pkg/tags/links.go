package tags

import (
	"regexp"
	"strings"

	"github.com/CTAG07/markus/pkg/markus"
)

var protocol = regexp.MustCompile(`^\w+://`)

// IsRemote reports whether url points to another site: it has a protocol or
// starts with www.
func IsRemote(url string) bool {
	return protocol.MatchString(url) || strings.HasPrefix(url, "www.")
}

// AddProtocol prefixes http:// when url has no protocol.
func AddProtocol(url string) string {
	if protocol.MatchString(url) {
		return url
	}
	return "http://" + url
}

func renderURL(c *markus.Call) (string, error) {
	url := c.Value(0)
	if url == "" {
		url = c.Node.Text()
	}
	title := c.Content
	if title == "" {
		title = c.Encode(url)
	}
	if url == "" {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(`<a href="`)
	if IsRemote(url) {
		b.WriteString(AddProtocol(url))
		b.WriteString(`" target="_blank`)
	} else {
		b.WriteString(url)
	}
	b.WriteString(`">`)
	b.WriteString(title)
	b.WriteString("</a>")
	return b.String(), nil
}

// renderColumn lays out consecutive column tags two per row.
func renderColumn(c *markus.Call) (string, error) {
	pos := 0
	for p := c.Node.Previous(); p != nil && strings.EqualFold(p.Name(), "column"); p = p.Previous() {
		pos++
	}
	pos %= 2
	last := c.Node.Next() == nil || !strings.EqualFold(c.Node.Next().Name(), "column")

	var b strings.Builder
	if pos == 0 {
		b.WriteString(`<div class="row">`)
	}
	b.WriteString(`<div class="column">`)
	b.WriteString(c.Content)
	b.WriteString(`</div>`)
	if pos == 1 || last {
		b.WriteString(`</div>`)
	}
	return b.String(), nil
}

// apiRef matches references such as `Path`, `Path#add(point)` or
// `paper.Item.remove()`.
var apiRef = regexp.MustCompile(`^(?:([a-z]*)\.)?(\w*)(?:([#.])(\w*))?(\([^)]*\))?`)

var optionalArgs = regexp.MustCompile(`^[^\[]*`)

var argSplit = regexp.MustCompile(`\s*,\s*`)

// renderAPI links to a class or member of the API reference.
func renderAPI(c *markus.Call) (string, error) {
	m := apiRef.FindStringSubmatch(c.Attr("id"))
	if m == nil || m[2] == "" {
		return c.Content, nil
	}
	pkg, cls, sep, name, args := m[1], m[2], m[3], m[4], m[5]
	if name == "" {
		name = cls
	}

	var common, all []string
	hasArgs := args != ""
	if hasArgs {
		args = args[1 : len(args)-1]
		if args != "" {
			common = argSplit.Split(optionalArgs.FindString(args), -1)
			all = argSplit.Split(strings.NewReplacer("[", "", "]", "").Replace(args), -1)
		}
	}

	url := cls
	if pkg != "" {
		url = pkg + "/" + cls
	}
	if sep != "" || hasArgs {
		url += "#"
		if sep == "." {
			url += cls + "-"
		}
		url += name
		if len(common) > 0 && common[0] != "" {
			url += "-" + strings.Join(common, "-")
		}
	}

	content := c.Content
	if content == "" {
		label := cls
		if sep == "#" {
			label = strings.ToLower(cls[:1]) + cls[1:]
		}
		if hasArgs && name != "" && isUpper(name[0]) {
			label = "new " + label
		}
		if sep != "" {
			label += "." + name
		}
		if hasArgs {
			label += "(" + strings.Join(all, ", ") + ")"
		}
		content = c.Encode(label)
	}
	return `<tt><a href="/reference/` + strings.ToLower(url) + `">` + content + `</a></tt>`, nil
}

func isUpper(b byte) bool {
	return 'A' <= b && b <= 'Z'
}
