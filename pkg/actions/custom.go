package actions

import (
	"fmt"

	"github.com/seentics/tracker/pkg/sandbox"
	"golang.org/x/net/html"
)

// customContent is the author-supplied variant of a modal or banner.
type customContent struct {
	HTML string `mapstructure:"customHtml"`
	CSS  string `mapstructure:"customCss"`
	JS   string `mapstructure:"customJs"`
}

// injectCustom mounts author HTML inside a container carrying class. It is a
// no-op when such a container is already on the page.
func (d *Dependencies) injectCustom(class, extraClass string, content customContent) error {
	doc := d.Page.Document()

	if doc.Exists("." + class) {
		return nil
	}

	if content.CSS != "" {
		if err := d.Sandbox.InjectStyle(class+"-style", content.CSS); err != nil {
			return err
		}
	}

	classes := class
	if extraClass != "" {
		classes += " " + extraClass
	}

	nodes, err := doc.AppendHTML(doc.Body(), fmt.Sprintf(`<div class="%s"></div>`, html.EscapeString(classes)))
	if err != nil {
		return err
	}

	container := nodes[0]

	if _, err := doc.AppendHTML(container, sandbox.ExtractFragment(content.HTML)); err != nil {
		doc.Remove(container)

		return err
	}

	if content.JS != "" {
		err := d.Sandbox.RunScript(class+"-script", content.JS, func() { doc.Remove(container) })
		if err != nil {
			d.logger().Debug("custom script failed", "container", class, "error", err)
		}
	}

	return nil
}
