package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

type chromiumCommand struct {
	minArgs int
	usage   string
	run     func(ctx context.Context, c *chromiumInstance, args []string) (any, error)
}

// Link is one anchor found on a page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

var chromiumCommands = map[string]chromiumCommand{
	"navigate":   {minArgs: 1, usage: "<url>", run: navigate},
	"url":        {run: currentURL},
	"title":      {run: pageTitle},
	"click":      {minArgs: 1, usage: "<selector>", run: click},
	"fill":       {minArgs: 2, usage: "<selector> <text>", run: fill},
	"text":       {usage: "[selector]", run: pageText},
	"html":       {usage: "[selector]", run: pageHTML},
	"markdown":   {usage: "[selector]", run: pageMarkdown},
	"links":      {usage: "[selector]", run: pageLinks},
	"evaluate":   {minArgs: 1, usage: "<expression>", run: evaluate},
	"screenshot": {usage: "[selector]", run: screenshot},
	"wait":       {minArgs: 1, usage: "<selector> [timeout]", run: waitVisible},
	"reload":     {run: simple(chromedp.Reload)},
	"back":       {run: simple(chromedp.NavigateBack)},
	"forward":    {run: simple(chromedp.NavigateForward)},
}

func chromiumCommandNames() []string {
	names := make([]string, 0, len(chromiumCommands))
	for name := range chromiumCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func navigate(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	target := args[0]
	if !strings.Contains(target, "://") && !strings.HasPrefix(target, "about:") {
		target = "https://" + target
	}

	var loc, title string
	if err := c.run(ctx, chromedp.Navigate(target), chromedp.Location(&loc), chromedp.Title(&title)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", target, err)
	}
	return map[string]string{"url": loc, "title": title}, nil
}

func currentURL(ctx context.Context, c *chromiumInstance, _ []string) (any, error) {
	var loc string
	if err := c.run(ctx, chromedp.Location(&loc)); err != nil {
		return nil, err
	}
	return loc, nil
}

func pageTitle(ctx context.Context, c *chromiumInstance, _ []string) (any, error) {
	var title string
	if err := c.run(ctx, chromedp.Title(&title)); err != nil {
		return nil, err
	}
	return title, nil
}

func click(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	if err := c.run(ctx, chromedp.Click(args[0], chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("click %s: %w", args[0], err)
	}
	return true, nil
}

func fill(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	sel, text := args[0], strings.Join(args[1:], " ")
	if err := c.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("fill %s: %w", sel, err)
	}
	return true, nil
}

func pageText(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	if len(args) > 0 {
		var text string
		if err := c.run(ctx, chromedp.Text(args[0], &text, chromedp.ByQuery)); err != nil {
			return nil, err
		}
		return text, nil
	}

	html, _, err := outerHTML(ctx, c, "html")
	if err != nil {
		return nil, err
	}
	return textFromHTML(html)
}

func pageHTML(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	html, _, err := outerHTML(ctx, c, selectorOr(args, "html"))
	return html, err
}

func pageMarkdown(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	html, loc, err := outerHTML(ctx, c, selectorOr(args, "html"))
	if err != nil {
		return nil, err
	}
	return htmlToMarkdown(html, loc)
}

func pageLinks(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	html, loc, err := outerHTML(ctx, c, selectorOr(args, "html"))
	if err != nil {
		return nil, err
	}
	return extractLinks(html, loc)
}

func evaluate(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	var result any
	if err := c.run(ctx, chromedp.Evaluate(strings.Join(args, " "), &result)); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return result, nil
}

func screenshot(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	var buf []byte
	var action chromedp.Action = chromedp.FullScreenshot(&buf, 90)
	if len(args) > 0 {
		action = chromedp.Screenshot(args[0], &buf, chromedp.ByQuery)
	}
	if err := c.run(ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return map[string]string{
		"mimeType": "image/png",
		"data":     base64.StdEncoding.EncodeToString(buf),
	}, nil
}

func waitVisible(ctx context.Context, c *chromiumInstance, args []string) (any, error) {
	if len(args) > 1 {
		timeout, err := parseWaitTimeout(args[1])
		if err != nil {
			return nil, err
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.run(ctx, chromedp.WaitVisible(args[0], chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("wait %s: %w", args[0], err)
	}
	return true, nil
}

func simple(action func() chromedp.NavigateAction) func(context.Context, *chromiumInstance, []string) (any, error) {
	return func(ctx context.Context, c *chromiumInstance, _ []string) (any, error) {
		var loc string
		if err := c.run(ctx, action(), chromedp.Location(&loc)); err != nil {
			return nil, err
		}
		return loc, nil
	}
}

func outerHTML(ctx context.Context, c *chromiumInstance, sel string) (html, loc string, err error) {
	if err := c.run(ctx, chromedp.Location(&loc), chromedp.OuterHTML(sel, &html, chromedp.ByQuery)); err != nil {
		return "", "", err
	}
	return html, loc, nil
}

func selectorOr(args []string, fallback string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	return fallback
}

// parseWaitTimeout accepts a Go duration or a bare number of milliseconds.
func parseWaitTimeout(raw string) (time.Duration, error) {
	if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q", raw)
	}
	return d, nil
}

func textFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
}

// htmlToMarkdown converts a page to markdown with link and image targets
// resolved against the page, so relative references keep the page's scheme.
func htmlToMarkdown(html, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	if base, err := url.Parse(pageURL); err == nil && base.IsAbs() {
		resolveAttr(doc.Find("a[href]"), "href", base)
		resolveAttr(doc.Find("img[src]"), "src", base)
	}
	return md.NewConverter(md.DomainFromURL(pageURL), true, nil).Convert(doc.Selection), nil
}

func resolveAttr(sel *goquery.Selection, attr string, base *url.URL) {
	sel.Each(func(_ int, s *goquery.Selection) {
		ref, err := url.Parse(strings.TrimSpace(s.AttrOr(attr, "")))
		if err != nil || ref.IsAbs() {
			return
		}
		s.SetAttr(attr, base.ResolveReference(ref).String())
	})
}

func extractLinks(html, pageURL string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(pageURL)

	links := []Link{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		links = append(links, Link{
			Text: strings.Join(strings.Fields(s.Text()), " "),
			Href: href,
		})
	})
	return links, nil
}
