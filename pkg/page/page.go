package page

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/net/html"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// Beacon queues a small POST that survives page teardown.
type Beacon interface {
	SendBeacon(url string, body []byte) bool
}

// Page is a headless browser window: document, listeners, history and the
// visitor's device characteristics.
type Page struct {
	document    *Document
	events      *EventTarget
	history     *History
	referrer    string
	userAgent   string
	title       string
	screenWidth int
	touch       bool
	beacon      Beacon

	mu         sync.Mutex
	navigated  []string
	unloaded   bool
	sourceHTML string
}

// Option configures a Page.
type Option func(*Page)

func WithReferrer(referrer string) Option {
	return func(p *Page) { p.referrer = referrer }
}

func WithUserAgent(ua string) Option {
	return func(p *Page) { p.userAgent = ua }
}

func WithTitle(title string) Option {
	return func(p *Page) { p.title = title }
}

// WithScreenWidth sets the viewport width in CSS pixels.
func WithScreenWidth(width int) Option {
	return func(p *Page) { p.screenWidth = width }
}

func WithTouch(touch bool) Option {
	return func(p *Page) { p.touch = touch }
}

// WithHTML sets the initial markup of the document.
func WithHTML(source string) Option {
	return func(p *Page) { p.sourceHTML = source }
}

// WithBeacon gives the page an unload-safe transport.
func WithBeacon(beacon Beacon) Option {
	return func(p *Page) { p.beacon = beacon }
}

// New opens a page at the given absolute URL.
func New(location string, opts ...Option) (*Page, error) {
	history, err := NewHistory(location)
	if err != nil {
		return nil, err
	}

	p := &Page{
		events:      NewEventTarget(),
		history:     history,
		userAgent:   defaultUserAgent,
		screenWidth: 1280,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.document, err = NewDocument(p.sourceHTML)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Page) Document() *Document {
	return p.document
}

func (p *Page) Events() *EventTarget {
	return p.events
}

func (p *Page) History() *History {
	return p.history
}

// URL returns the current location.
func (p *Page) URL() string {
	return p.history.Current().String()
}

// Path returns the path of the current location.
func (p *Page) Path() string {
	path := p.history.Current().Path
	if path == "" {
		return "/"
	}

	return path
}

func (p *Page) Referrer() string {
	return p.referrer
}

func (p *Page) UserAgent() string {
	return p.userAgent
}

func (p *Page) Title() string {
	return p.title
}

func (p *Page) ScreenWidth() int {
	return p.screenWidth
}

func (p *Page) TouchSupport() bool {
	return p.touch
}

// Beacon returns the unload-safe transport, or nil when the host has none.
func (p *Page) Beacon() Beacon {
	return p.beacon
}

// Navigate requests a full navigation to target (location.href assignment).
// The headless page records the request; unloading is left to the host.
func (p *Page) Navigate(target string) error {
	if target == "" {
		return errors.New("empty navigation target")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.navigated = append(p.navigated, target)

	return nil
}

// Navigations returns the full navigations requested so far.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.navigated...)
}

// Click dispatches a click on the first element matching selector: element
// handlers first, then window listeners.
func (p *Page) Click(selector string) error {
	target, err := p.document.QuerySelector(selector)
	if err != nil {
		return err
	}

	if target == nil {
		return fmt.Errorf("no element matches %q", selector)
	}

	p.ClickNode(target)

	return nil
}

// ClickNode dispatches a click on target.
func (p *Page) ClickNode(target *html.Node) {
	p.document.Click(target)
	p.events.Dispatch(Event{Type: EventClick, Target: target})
}

// MoveMouse dispatches a mousemove at the given viewport coordinates.
func (p *Page) MoveMouse(x, y int) {
	p.events.Dispatch(Event{Type: EventMouseMove, X: x, Y: y})
}

// KeyPress dispatches a keypress.
func (p *Page) KeyPress() {
	p.events.Dispatch(Event{Type: EventKeyPress})
}

// Scroll dispatches a scroll.
func (p *Page) Scroll() {
	p.events.Dispatch(Event{Type: EventScroll})
}

// Touch dispatches a touchstart.
func (p *Page) Touch() {
	p.events.Dispatch(Event{Type: EventTouchStart})
}

// DispatchFunnelEvent dispatches the custom funnel event.
func (p *Page) DispatchFunnelEvent(funnelID, eventType string) {
	p.events.Dispatch(Event{
		Type: EventFunnel,
		Detail: map[string]any{
			"funnel_id":  funnelID,
			"event_type": eventType,
		},
	})
}

// Unload fires pagehide once.
func (p *Page) Unload() {
	p.mu.Lock()
	if p.unloaded {
		p.mu.Unlock()

		return
	}

	p.unloaded = true
	p.mu.Unlock()

	p.events.Dispatch(Event{Type: EventPageHide})
}

// Unloaded reports whether Unload ran.
func (p *Page) Unloaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.unloaded
}
