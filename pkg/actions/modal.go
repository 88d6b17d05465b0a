package actions

import (
	"context"
	"fmt"

	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
	"golang.org/x/net/html"
)

const modalStyle = `.seentics-modal-overlay{position:fixed;inset:0;background:rgba(0,0,0,.5);display:flex;align-items:center;justify-content:center;z-index:2147483646}
.seentics-modal{background:#fff;border-radius:8px;max-width:480px;width:90%;padding:24px;position:relative}
.seentics-modal-close{position:absolute;top:8px;right:12px;border:0;background:none;font-size:20px;cursor:pointer}
.seentics-custom-modal{position:fixed;inset:0;z-index:2147483646}`

type modalSettings struct {
	Title       string `mapstructure:"modalTitle"`
	Content     string `mapstructure:"modalContent"`
	DisplayMode string `mapstructure:"displayMode"`

	customContent `mapstructure:",squash"`
}

// ModalFactory builds "Show Modal" actions.
type ModalFactory struct {
	deps *Dependencies
}

func NewModalFactory(deps *Dependencies) protocol.ActionFactory {
	return &ModalFactory{deps: deps}
}

func (f *ModalFactory) ID() string {
	return models.ActionShowModal
}

func (f *ModalFactory) Description() string {
	return "Shows a dialog over the page, either the standard one or author HTML in a full-viewport container."
}

func (f *ModalFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"modalTitle":   map[string]any{"type": "string"},
			"modalContent": map[string]any{"type": "string"},
			"displayMode":  map[string]any{"type": "string", "enum": []any{DisplayModeStandard, DisplayModeCustom, ""}},
			"customHtml":   map[string]any{"type": "string"},
			"customCss":    map[string]any{"type": "string"},
			"customJs":     map[string]any{"type": "string"},
		},
	}
}

func (f *ModalFactory) Create(settings map[string]any) (protocol.Action, error) {
	var s modalSettings

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	return protocol.ActionFunc(func(_ context.Context, _ models.ExecutionContext) error {
		if s.DisplayMode == DisplayModeCustom && s.HTML != "" {
			return f.deps.injectCustom(ClassCustomModal, "", s.customContent)
		}

		return f.showStandard(s)
	}), nil
}

func (f *ModalFactory) showStandard(s modalSettings) error {
	doc := f.deps.Page.Document()

	if err := f.deps.Sandbox.InjectStyle("seentics-modal-style", modalStyle); err != nil {
		return err
	}

	markup := fmt.Sprintf(
		`<div class="%s"><div class="%s" role="dialog" aria-modal="true">`+
			`<button class="%s" aria-label="Close">&times;</button>`+
			`<h2 class="seentics-modal-title">%s</h2><div class="seentics-modal-content">%s</div></div></div>`,
		ClassModalOverlay, ClassModal, ClassModalClose,
		html.EscapeString(s.Title), html.EscapeString(s.Content),
	)

	nodes, err := doc.AppendHTML(doc.Body(), markup)
	if err != nil {
		return err
	}

	overlay := nodes[0]

	closeButton, err := doc.QuerySelectorAll("." + ClassModalClose)
	if err != nil {
		return err
	}

	for _, button := range closeButton {
		if isDescendant(button, overlay) {
			doc.OnClick(button, func() { doc.Remove(overlay) })
		}
	}

	return nil
}

func isDescendant(n, ancestor *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}

	return false
}
