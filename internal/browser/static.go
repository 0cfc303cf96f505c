package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// StaticLauncher opens sessions that load pages with plain HTTP GETs and
// evaluate selectors against the parsed document. No script runs, so it
// suits server-rendered mirrors and tests.
type StaticLauncher struct {
	Client *http.Client
}

func (l *StaticLauncher) Launch(ctx context.Context) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &StaticDriver{ctx: ctx, client: client}, nil
}

// StaticDriver implements Driver over a fetched, parsed HTML document.
type StaticDriver struct {
	ctx    context.Context
	client *http.Client
	base   *url.URL
	doc    *html.Node
	closed bool
}

func (d *StaticDriver) Open(rawURL string) error {
	if d.closed {
		return fmt.Errorf("open %s: session closed", rawURL)
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if d.base != nil {
		target = d.base.ResolveReference(target)
	}

	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "instapost/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("open %s: unexpected status: %d", target, resp.StatusCode)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("detect charset: %w", err)
	}
	doc, err := html.Parse(body)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	d.base = resp.Request.URL
	d.doc = doc
	return nil
}

// WaitUntil evaluates cond once: a static document never changes, so a
// false result is an immediate timeout.
func (d *StaticDriver) WaitUntil(cond Condition, timeout time.Duration) error {
	ok, err := cond(d)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return nil
}

func (d *StaticDriver) FindElement(sel Selector) (Element, error) {
	els, err := d.FindElements(sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchElement, sel)
	}
	return els[0], nil
}

func (d *StaticDriver) FindElements(sel Selector) ([]Element, error) {
	if d.doc == nil {
		return nil, fmt.Errorf("find %s: no page loaded", sel)
	}

	var out []Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if sel.Match(n) {
			out = append(out, &staticElement{driver: d, node: n})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.doc)
	return out, nil
}

func (d *StaticDriver) Quit() error {
	d.closed = true
	d.doc = nil
	return nil
}

type staticElement struct {
	driver *StaticDriver
	node   *html.Node
	typed  strings.Builder
}

// Attribute resolves href and src against the page URL, as a browser's
// element property would.
func (e *staticElement) Attribute(name string) (string, error) {
	if name == "value" && e.typed.Len() > 0 {
		return e.typed.String(), nil
	}
	v, ok := attr(e.node, name)
	if !ok {
		return "", nil
	}
	if (name == "href" || name == "src") && e.driver.base != nil {
		if ref, err := url.Parse(v); err == nil {
			return e.driver.base.ResolveReference(ref).String(), nil
		}
	}
	return v, nil
}

func (e *staticElement) Text() (string, error) {
	return normalizeSpace(textContent(e.node)), nil
}

func (e *staticElement) SendKeys(text string) error {
	e.typed.WriteString(strings.ReplaceAll(text, EnterKey, ""))
	return nil
}

// Click follows anchors; other elements have no static behaviour.
func (e *staticElement) Click() error {
	if e.node.Data != "a" {
		return nil
	}
	href, err := e.Attribute("href")
	if err != nil || href == "" {
		return err
	}
	return e.driver.Open(href)
}

func (e *staticElement) Displayed() (bool, error) {
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if _, hidden := attr(n, "hidden"); hidden {
			return false, nil
		}
		if t, _ := attr(n, "type"); n.Data == "input" && t == "hidden" {
			return false, nil
		}
		if style, _ := attr(n, "style"); strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
			return false, nil
		}
	}
	return true, nil
}

func (e *staticElement) Enabled() (bool, error) {
	_, disabled := attr(e.node, "disabled")
	return !disabled, nil
}
