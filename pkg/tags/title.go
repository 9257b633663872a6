package tags

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/CTAG07/markus/pkg/markus"
)

// TitlesKey is the Options.Data key under which a *Titles collects the
// section titles of a render.
const TitlesKey = "titles"

// Title is one section heading produced by the title tag.
type Title struct {
	Text   string `json:"text"`
	Anchor string `json:"anchor"`
	First  bool   `json:"first"`
}

// Titles collects headings in document order, e.g. to build a table of contents.
type Titles []Title

func renderTitle(c *markus.Call) (string, error) {
	text := c.Attr("short")
	if text == "" {
		text = c.Content
	}
	anchor := Urlize(text)
	first := c.Before == nil
	if list, ok := c.Options.Data[TitlesKey].(*Titles); ok {
		*list = append(*list, Title{Text: text, Anchor: anchor, First: first})
	}

	// The anchor is wrapped in a div so paragraph formatting leaves it alone.
	out := `<div id="` + anchor + `" class="section"><a name="` + anchor + `" class="anchor"></a></div>`
	if first {
		return out + "<h1>" + c.Content + "</h1>", nil
	}
	return out + "<h2>" + c.Content + "</h2>", nil
}

var (
	nonSlug  = regexp.MustCompile(`(?i)[^a-z0-9.]+`)
	umlauts  = strings.NewReplacer("ä", "ae", "ë", "ee", "ï", "ie", "ö", "oe", "ü", "ue", "ÿ", "ye", "Ä", "Ae", "Ë", "Ee", "Ï", "Ie", "Ö", "Oe", "Ü", "Ue", "Ÿ", "Ye")
	stripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Urlize turns text into a lowercase slug of letters, digits, dots and dashes.
func Urlize(text string) string {
	s := nonSlug.ReplaceAllString(Unaccent(text), "-")
	return strings.ToLower(strings.Trim(s, "-"))
}

// Unaccent spells umlauts as two letters and drops other diacritics.
func Unaccent(text string) string {
	text = umlauts.Replace(norm.NFC.String(text))
	out, _, err := transform.String(stripper, text)
	if err != nil {
		return text
	}
	return out
}
