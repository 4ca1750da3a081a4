package present

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/salesboost/internal/page"
)

// Widget host attributes.
const (
	WidgetAttr    = "data-hache-widget"
	PlacementAttr = "data-hache-placement"
	KindAttr      = "data-hache-kind"
	StateAttr     = "data-state"
	ActionID      = "go"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var widgetTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// RenderMarkup renders the host element markup of v.
func RenderMarkup(v View) (string, error) {
	var buf bytes.Buffer
	if err := widgetTemplates.ExecuteTemplate(&buf, v.templateName(), v); err != nil {
		return "", fmt.Errorf("render %s: %w", v.Identity(), err)
	}
	return buf.String(), nil
}

// BuildNode renders v and parses it into a detached host element.
func BuildNode(v View) (*html.Node, error) {
	markup, err := RenderMarkup(v)
	if err != nil {
		return nil, err
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", v.Identity(), err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode && IsWidgetNode(n) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("render %s: no host element", v.Identity())
}

// IsWidgetNode reports whether n is a widget host element.
func IsWidgetNode(n *html.Node) bool {
	_, ok := page.Attr(n, WidgetAttr)
	return ok
}
