/*
Package templating loads markus tags declared in YAML files instead of Go code.

Every *.tag.yaml file in the tag directory lists one or more tags. A tag is
rendered either by an html/template body or by a Starlark script defining a
render(tag) function:

	tags:
	  - names: box
	    attributes: 'title="Box"'
	    template: '<div class="box"><h3>{{.Attrs.title}}</h3>{{.Content}}</div>'
	  - names: shout
	    script: |
	      def render(tag):
	          return "<b>" + tag.content.upper() + "</b>"

The TagManager registers the loaded tags with a markus.Registry and supports
hot-reloading the directory with Refresh, so tag files can be edited while a
server is running.
*/
package templating
