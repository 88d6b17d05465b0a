package sandbox

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var boilerplate = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Meta:     true,
	atom.Title:    true,
	atom.Link:     true,
	atom.Noscript: true,
}

// ExtractFragment reduces a whole HTML page to the part worth injecting: the
// first element whose class names a modal or overlay, else the body contents
// without scripts and head-only elements. Fragments are returned unchanged.
func ExtractFragment(source string) string {
	if !isDocument(source) {
		return source
	}

	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return source
	}

	if n := findModal(root); n != nil {
		return render(n)
	}

	body := findBody(root)
	if body == nil {
		return ""
	}

	var buf bytes.Buffer

	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && boilerplate[c.DataAtom] {
			continue
		}

		if c.Type == html.CommentNode {
			continue
		}

		_ = html.Render(&buf, c)
	}

	return strings.TrimSpace(buf.String())
}

func isDocument(source string) bool {
	lower := strings.ToLower(source)

	return strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") || strings.Contains(lower, "<body")
}

func findModal(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key != "class" {
				continue
			}

			class := strings.ToLower(a.Val)
			if strings.Contains(class, "modal") || strings.Contains(class, "overlay") {
				return n
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findModal(c); found != nil {
			return found
		}
	}

	return nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}

	return nil
}

func render(n *html.Node) string {
	var buf bytes.Buffer

	_ = html.Render(&buf, n)

	return buf.String()
}
