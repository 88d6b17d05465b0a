package sandbox

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSandbox(t *testing.T, opts ...Option) (*Sandbox, *page.Document, *clockwork.FakeClock) {
	t.Helper()

	doc, err := page.NewDocument("")
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()

	return New(doc, scheduler.NewTimers(clock), log.Discard(), opts...), doc, clock
}

func TestSandbox_InjectStyleReplaces(t *testing.T) {
	sb, doc, _ := newSandbox(t)

	require.NoError(t, sb.InjectStyle("seentics-custom-modal-style", ".a{color:red}"))
	require.NoError(t, sb.InjectStyle("seentics-custom-modal-style", ".a{color:blue}"))

	styles, err := doc.QuerySelectorAll("style#seentics-custom-modal-style")
	require.NoError(t, err)
	require.Len(t, styles, 1)
	assert.Equal(t, ".a{color:blue}", doc.Text(styles[0]))
}

func TestSandbox_RunScript(t *testing.T) {
	t.Run("close function", func(t *testing.T) {
		sb, _, _ := newSandbox(t)
		closed := 0

		require.NoError(t, sb.RunScript("s1", `console.log("closing"); seenticsCloseModal();`, func() { closed++ }))
		assert.Equal(t, 1, closed)
	})

	t.Run("exceptions are swallowed", func(t *testing.T) {
		sb, _, _ := newSandbox(t)

		assert.NoError(t, sb.RunScript("s1", `throw new Error("boom")`, nil))
	})

	t.Run("syntax errors are reported", func(t *testing.T) {
		sb, _, _ := newSandbox(t)

		assert.Error(t, sb.RunScript("s1", `function (`, nil))
	})

	t.Run("runaway scripts are interrupted", func(t *testing.T) {
		sb, _, _ := newSandbox(t, WithScriptTimeout(50*time.Millisecond))

		assert.ErrorIs(t, sb.RunScript("s1", `while (true) {}`, nil), ErrScriptTimeout)
	})
}

func TestSandbox_ScriptNodeIsRemoved(t *testing.T) {
	sb, doc, clock := newSandbox(t)

	require.NoError(t, sb.RunScript("modal", `var x = 1;`, nil))
	assert.True(t, doc.Exists(`script[data-seentics-script="modal"]`))

	clock.Advance(ScriptRemovalDelay)

	assert.Eventually(t, func() bool {
		return !doc.Exists(`script[data-seentics-script="modal"]`)
	}, time.Second, time.Millisecond)
}

func TestExtractFragment(t *testing.T) {
	testCases := []struct {
		name     string
		source   string
		expected string
	}{
		{
			name:     "fragment is kept",
			source:   `<div class="promo">Hi</div>`,
			expected: `<div class="promo">Hi</div>`,
		},
		{
			name: "modal element wins",
			source: `<!DOCTYPE html><html><head><title>x</title></head><body>
				<nav>menu</nav><div class="my-modal"><p>Deal</p></div></body></html>`,
			expected: `<div class="my-modal"><p>Deal</p></div>`,
		},
		{
			name: "overlay class",
			source: `<html><body><section class="Overlay dark">Sale</section></body></html>`,
			expected: `<section class="Overlay dark">Sale</section>`,
		},
		{
			name: "body without boilerplate",
			source: `<html><head><meta charset="utf-8"></head><body><script>track()</script>` +
				`<noscript>no js</noscript><h1>Welcome</h1><link rel="x" href="y"><p>Text</p></body></html>`,
			expected: `<h1>Welcome</h1><p>Text</p>`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ExtractFragment(tc.source))
		})
	}
}
