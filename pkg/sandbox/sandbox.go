// Package sandbox is the single place where author-supplied HTML, CSS and
// JavaScript reach the page. Everything here is best effort: failures are
// reported to the caller and never affect the graph walk.
package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/scheduler"
)

// ErrScriptTimeout is returned when a custom script ran past its deadline.
var ErrScriptTimeout = errors.New("custom script timed out")

const (
	DefaultScriptTimeout = 2 * time.Second

	// ScriptRemovalDelay is how long an injected script node stays in the document.
	ScriptRemovalDelay = 100 * time.Millisecond

	// CloseFunction is the global a custom script calls to close its container.
	CloseFunction = "seenticsCloseModal"

	scriptMarkerAttr = "data-seentics-script"
)

type Sandbox struct {
	doc     *page.Document
	timers  *scheduler.Timers
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*Sandbox)

// WithScriptTimeout bounds the run time of a custom script.
func WithScriptTimeout(timeout time.Duration) Option {
	return func(s *Sandbox) { s.timeout = timeout }
}

func New(doc *page.Document, timers *scheduler.Timers, logger *slog.Logger, opts ...Option) *Sandbox {
	s := &Sandbox{
		doc:     doc,
		timers:  timers,
		logger:  logger.With("module", "sandbox"),
		timeout: DefaultScriptTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// InjectStyle installs css under a predictable id, replacing an earlier copy.
func (s *Sandbox) InjectStyle(id, css string) error {
	existing, err := s.doc.QuerySelectorAll(fmt.Sprintf("style[id=%q]", id))
	if err != nil {
		return err
	}

	for _, n := range existing {
		s.doc.Remove(n)
	}

	_, err = s.doc.AppendElement(s.doc.Head(), "style", map[string]string{"id": id}, css)

	return err
}

// RunScript runs author JavaScript wrapped in a closure that swallows its
// exceptions. The script can call seenticsCloseModal() to run onClose.
// A marker <script> node is added to the body and removed shortly after.
func (s *Sandbox) RunScript(id, js string, onClose func()) error {
	wrapped := wrapScript(js)

	marker, err := s.doc.AppendElement(nil, "script", map[string]string{scriptMarkerAttr: id}, wrapped)
	if err != nil {
		return err
	}

	s.timers.AfterFunc(ScriptRemovalDelay, func() { s.doc.Remove(marker) })

	vm := goja.New()

	err = vm.Set(CloseFunction, func() {
		if onClose != nil {
			onClose()
		}
	})
	if err != nil {
		return err
	}

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			args = append(args, a.Export())
		}

		s.logger.Debug("custom script output", "script", id, "args", args)

		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	deadline := time.AfterFunc(s.timeout, func() {
		vm.Interrupt(ErrScriptTimeout)
	})
	defer deadline.Stop()

	_, err = vm.RunString(wrapped)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return ErrScriptTimeout
		}

		return fmt.Errorf("custom script %s: %w", id, err)
	}

	return nil
}

func wrapScript(js string) string {
	return "(function () {\n  try {\n" + js + "\n  } catch (e) {}\n})();"
}
