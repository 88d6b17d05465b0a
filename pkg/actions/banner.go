package actions

import (
	"context"
	"fmt"

	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
	"golang.org/x/net/html"
)

// Banner positions.
const (
	BannerTop    = "top"
	BannerBottom = "bottom"
)

const bannerStyle = `.seentics-banner,.seentics-custom-banner{position:fixed;left:0;right:0;z-index:2147483645}
.seentics-banner{display:flex;align-items:center;justify-content:space-between;padding:12px 16px;background:#111827;color:#fff}
.seentics-banner-top{top:0}.seentics-banner-bottom{bottom:0}
.seentics-banner-close{border:0;background:none;color:inherit;font-size:18px;cursor:pointer}`

type bannerSettings struct {
	Content     string `mapstructure:"bannerContent"`
	Position    string `mapstructure:"bannerPosition"`
	DisplayMode string `mapstructure:"displayMode"`

	customContent `mapstructure:",squash"`
}

// BannerFactory builds "Show Banner" actions.
type BannerFactory struct {
	deps *Dependencies
}

func NewBannerFactory(deps *Dependencies) protocol.ActionFactory {
	return &BannerFactory{deps: deps}
}

func (f *BannerFactory) ID() string {
	return models.ActionShowBanner
}

func (f *BannerFactory) Description() string {
	return "Pins a dismissible banner to the top or bottom of the viewport."
}

func (f *BannerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"bannerContent":  map[string]any{"type": "string"},
			"bannerPosition": map[string]any{"type": "string", "enum": []any{BannerTop, BannerBottom, ""}},
			"displayMode":    map[string]any{"type": "string", "enum": []any{DisplayModeStandard, DisplayModeCustom, ""}},
			"customHtml":     map[string]any{"type": "string"},
			"customCss":      map[string]any{"type": "string"},
			"customJs":       map[string]any{"type": "string"},
		},
	}
}

func (f *BannerFactory) Create(settings map[string]any) (protocol.Action, error) {
	var s bannerSettings

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	if s.Position != BannerBottom {
		s.Position = BannerTop
	}

	positionClass := ClassBanner + "-" + s.Position

	return protocol.ActionFunc(func(_ context.Context, _ models.ExecutionContext) error {
		if err := f.deps.Sandbox.InjectStyle("seentics-banner-style", bannerStyle); err != nil {
			return err
		}

		if s.DisplayMode == DisplayModeCustom && s.HTML != "" {
			return f.deps.injectCustom(ClassCustomBanner, positionClass, s.customContent)
		}

		doc := f.deps.Page.Document()

		nodes, err := doc.AppendHTML(doc.Body(), fmt.Sprintf(
			`<div class="%s %s" role="region"><div class="seentics-banner-content">%s</div>`+
				`<button class="%s" aria-label="Close">&times;</button></div>`,
			ClassBanner, positionClass, html.EscapeString(s.Content), ClassBannerClose,
		))
		if err != nil {
			return err
		}

		banner := nodes[0]

		if button := lastChildElement(banner); button != nil {
			doc.OnClick(button, func() { doc.Remove(banner) })
		}

		return nil
	}), nil
}

func lastChildElement(n *html.Node) *html.Node {
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}

	return nil
}
