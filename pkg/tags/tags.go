// Package tags holds the built-in tag library: HTML pass-through tags, raw
// html and svg blocks, highlighted code, notes, section titles, columns,
// links and API references.
package tags

import (
	"strings"

	"github.com/CTAG07/markus/pkg/markus"
)

// Definitions returns the built-in tags keyed by comma separated name lists.
func Definitions() map[string]markus.Definition {
	return map[string]markus.Definition{
		"i,b,em,strong,s,strike": {Handler: markus.HandlerFunc(passthrough)},
		"html":                   {NonNesting: true, Handler: markus.HandlerFunc(rawHTML)},
		"svg":                    {NonNesting: true, Handler: markus.HandlerFunc(rawElement)},
		"code":                   {NonNesting: true, Attributes: "lang", Handler: markus.HandlerFunc(renderCode)},
		"note,warning,tip":       {Attributes: "title", Handler: markus.HandlerFunc(renderNote)},
		"title":                  {Attributes: "short", Handler: markus.HandlerFunc(renderTitle)},
		"column":                 {Handler: markus.HandlerFunc(renderColumn)},
		"url":                    {Handler: markus.HandlerFunc(renderURL)},
		"api":                    {Attributes: "id", Handler: markus.HandlerFunc(renderAPI)},
	}
}

// Register adds the built-in tags to the default context of r.
func Register(r *markus.Registry) error {
	return r.RegisterAll(Definitions())
}

// Names returns every built-in tag name.
func Names() []string {
	var names []string
	for k := range Definitions() {
		names = append(names, strings.Split(k, ",")...)
	}
	return names
}

// passthrough writes the tag back as HTML around its rendered content.
func passthrough(c *markus.Call) (string, error) {
	n := c.Node
	if n.SelfClosing() {
		return "<" + n.Definition() + "/>", nil
	}
	return "<" + n.Definition() + ">" + c.Content + "</" + n.Name() + ">", nil
}

// rawHTML returns the captured content without encoding it.
func rawHTML(c *markus.Call) (string, error) {
	return c.Node.Text(), nil
}

func rawElement(c *markus.Call) (string, error) {
	n := c.Node
	if n.SelfClosing() {
		return "<" + n.Definition() + "/>", nil
	}
	return "<" + n.Definition() + ">" + n.Text() + "</" + n.Name() + ">", nil
}
