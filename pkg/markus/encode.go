package markus

import (
	"golang.org/x/net/html"
)

const (
	// EncodingNone leaves text untouched.
	EncodingNone = "none"
	// EncodingHTML escapes the HTML special characters.
	EncodingHTML = "html"
)

func encodeNone(s string) string {
	return s
}

func encodeHTML(s string) string {
	return html.EscapeString(s)
}
