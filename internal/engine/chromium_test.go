package engine

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whuanle/easytouch/internal/config"
)

func stubChromium(run func(ctx context.Context, actions ...chromedp.Action) error) *chromiumInstance {
	tabCtx, tabCancel := context.WithCancel(context.Background())
	allocCtx, allocCancel := context.WithCancel(context.Background())
	return &chromiumInstance{
		logger:      zap.NewNop(),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		run:         run,
	}
}

func TestChromiumExecuteUnknownCommand(t *testing.T) {
	inst := stubChromium(func(context.Context, ...chromedp.Action) error {
		t.Fatal("run called for unknown command")
		return nil
	})

	_, err := inst.Execute(context.Background(), "teleport", nil)
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.Contains(t, err.Error(), "navigate")
}

func TestChromiumExecuteChecksArity(t *testing.T) {
	inst := stubChromium(func(context.Context, ...chromedp.Action) error {
		t.Fatal("run called with missing arguments")
		return nil
	})

	_, err := inst.Execute(context.Background(), "fill", []string{"#q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: fill <selector> <text>")
}

func TestChromiumExecuteIsCaseInsensitive(t *testing.T) {
	var calls int
	inst := stubChromium(func(_ context.Context, actions ...chromedp.Action) error {
		calls++
		assert.Len(t, actions, 1)
		return nil
	})

	got, err := inst.Execute(context.Background(), "Click", []string{"button.submit"})
	require.NoError(t, err)
	assert.Equal(t, true, got)
	assert.Equal(t, 1, calls)
}

func TestChromiumExecutePropagatesRunErrors(t *testing.T) {
	inst := stubChromium(func(context.Context, ...chromedp.Action) error {
		return errors.New("node not found")
	})

	_, err := inst.Execute(context.Background(), "navigate", []string{"example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "navigate https://example.com")
	assert.Contains(t, err.Error(), "node not found")
}

func TestChromiumWaitRejectsBadTimeout(t *testing.T) {
	inst := stubChromium(func(context.Context, ...chromedp.Action) error { return nil })

	_, err := inst.Execute(context.Background(), "wait", []string{"#ready", "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid timeout "soon"`)
}

func TestChromiumWaitAppliesTimeout(t *testing.T) {
	inst := stubChromium(func(ctx context.Context, _ ...chromedp.Action) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok, "wait must bound the run")
		assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), deadline, 200*time.Millisecond)
		return nil
	})

	_, err := inst.Execute(context.Background(), "wait", []string{"#ready", "250"})
	require.NoError(t, err)
}

func TestChromiumAliveFalseAfterTabGone(t *testing.T) {
	inst := stubChromium(func(context.Context, ...chromedp.Action) error { return nil })
	inst.tabCancel()
	assert.False(t, inst.Alive(context.Background()))
}

func TestChromiumAliveFalseWhenProbeFails(t *testing.T) {
	inst := stubChromium(func(context.Context, ...chromedp.Action) error {
		return errors.New("target closed")
	})
	assert.False(t, inst.Alive(context.Background()))
}

func TestChromiumForceCloseKills(t *testing.T) {
	inst := stubChromium(nil)
	require.NoError(t, inst.Close(context.Background(), true))
	assert.Error(t, inst.allocCtx.Err(), "allocator must be cancelled")
	assert.Error(t, inst.tabCtx.Err(), "tab must be cancelled")
}

func TestChromiumFlags(t *testing.T) {
	headful := false
	flags := chromiumFlags(config.EngineConfig{
		Headless: &headful,
		Flags:    []string{"--lang=de", "mute-audio", "--"},
	}, map[string]string{"window_size": "1280x720"})

	assert.Equal(t, false, flags["headless"])
	assert.NotContains(t, flags, "disable-gpu")
	assert.Equal(t, "de", flags["lang"])
	assert.Equal(t, true, flags["mute-audio"])
	assert.Equal(t, "1280,720", flags["window-size"])
	if runtime.GOOS == "linux" {
		assert.Equal(t, true, flags["no-sandbox"])
	}
}

func TestChromiumFlagsDefaultHeadless(t *testing.T) {
	flags := chromiumFlags(config.EngineConfig{}, nil)
	assert.Equal(t, true, flags["headless"])
	assert.Equal(t, true, flags["disable-gpu"])
}

const samplePage = `<html><head><title>Docs</title><script>var x = 1;</script></head>
<body>
  <h1>Getting started</h1>
  <p>Read the <a href="/guide">guide</a> or the <a href="https://pkg.go.dev/">reference</a>.</p>
  <a href="#top">top</a>
  <a href="javascript:void(0)">noop</a>
</body></html>`

func TestExtractLinksResolvesRelative(t *testing.T) {
	links, err := extractLinks(samplePage, "https://example.com/docs/index.html")
	require.NoError(t, err)
	assert.Equal(t, []Link{
		{Text: "guide", Href: "https://example.com/guide"},
		{Text: "reference", Href: "https://pkg.go.dev/"},
	}, links)
}

func TestExtractLinksEmptyPage(t *testing.T) {
	links, err := extractLinks("<html><body></body></html>", "about:blank")
	require.NoError(t, err)
	assert.NotNil(t, links)
	assert.Empty(t, links)
}

func TestTextFromHTMLDropsScripts(t *testing.T) {
	text, err := textFromHTML(samplePage)
	require.NoError(t, err)
	assert.Equal(t, "Getting started Read the guide or the reference. top noop", text)
}

func TestHTMLToMarkdown(t *testing.T) {
	out, err := htmlToMarkdown(`<h1>Title</h1><p><a href="/a">link</a></p>`, "https://example.com/x")
	require.NoError(t, err)
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "(https://example.com/a)")
}

func TestHTMLToMarkdownResolvesAgainstPage(t *testing.T) {
	page := `<p><a href="guide">guide</a> <img src="img/logo.png" alt="logo"> ` +
		`<a href="http://other.test/x">other</a></p>`
	out, err := htmlToMarkdown(page, "https://example.com/docs/index.html")
	require.NoError(t, err)
	assert.Contains(t, out, "[guide](https://example.com/docs/guide)")
	assert.Contains(t, out, "![logo](https://example.com/docs/img/logo.png)")
	assert.Contains(t, out, "[other](http://other.test/x)")
	assert.NotContains(t, out, "http://https")
}

func TestParseWaitTimeout(t *testing.T) {
	d, err := parseWaitTimeout("1500")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = parseWaitTimeout("2s")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	_, err = parseWaitTimeout("-1s")
	assert.Error(t, err)
}
