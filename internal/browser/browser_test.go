package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profilePage = `<!doctype html>
<html><body>
<nav><a href="/explore/">Explore</a></nav>
<main>
  <a href="/p/AAA/"><img src="/thumb/a.jpg"></a>
  <a href="/p/BBB/"><img src="/thumb/b.jpg"></a>
  <a href="https://other.example/p/CCC/">external</a>
</main>
</body></html>`

const postPage = `<!doctype html>
<html><body>
<img src="/logo.png">
<article>
  <h1 class="x1 _ap3a y2">Breaking:   storm
     hits the coast.</h1>
  <div><img src="/media/full.jpg" alt="post"></div>
</article>
</body></html>`

const loginPage = `<!doctype html>
<html><body>
<form>
  <input name="csrf" type="hidden" value="t">
  <input name="username">
  <input name="password" type="password">
  <button type="submit">Log in</button>
</form>
<div style="display: none"><button>Not Now</button></div>
<button disabled> Not   Now </button>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/bbcnews/", page(profilePage))
	mux.HandleFunc("/p/AAA/", page(postPage))
	mux.HandleFunc("/accounts/login/", page(loginPage))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func launchStatic(t *testing.T) Driver {
	t.Helper()
	d, err := (&StaticLauncher{}).Launch(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Quit() })
	return d
}

func TestSelector_XPath(t *testing.T) {
	tests := []struct {
		name string
		sel  Selector
		want string
	}{
		{"by name", ByName("username"), "//*[@name='username']"},
		{"post links", PostLinks, "//a[contains(@href, '/p/')]"},
		{"caption", CaptionHeading("_ap3a"), "//h1[contains(@class, '_ap3a')]"},
		{"article image", ArticleImage, "//article//img"},
		{"button", ButtonLabeled("Not Now"), "//button[normalize-space(.)='Not Now']"},
		{"quote", ButtonLabeled("Don't"), `//button[normalize-space(.)="Don't"]`},
		{"both quotes", ButtonLabeled(`a'b"c`), `//button[normalize-space(.)=concat('a', "'", 'b"c')]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.XPath())
		})
	}
}

func TestStaticDriver_ProfileLinksInDocumentOrder(t *testing.T) {
	srv := newSite(t)
	d := launchStatic(t)

	require.NoError(t, d.Open(srv.URL+"/bbcnews/"))

	_, err := WaitPresent(d, PostLinks, time.Second)
	require.NoError(t, err)

	links, err := d.FindElements(PostLinks)
	require.NoError(t, err)
	require.Len(t, links, 3)

	var hrefs []string
	for _, l := range links {
		href, err := l.Attribute("href")
		require.NoError(t, err)
		hrefs = append(hrefs, href)
	}
	assert.Equal(t, []string{
		srv.URL + "/p/AAA/",
		srv.URL + "/p/BBB/",
		"https://other.example/p/CCC/",
	}, hrefs)
}

func TestStaticDriver_PostExtraction(t *testing.T) {
	srv := newSite(t)
	d := launchStatic(t)
	require.NoError(t, d.Open(srv.URL+"/p/AAA/"))

	heading, err := WaitPresent(d, CaptionHeading("_ap3a"), time.Second)
	require.NoError(t, err)
	text, err := heading.Text()
	require.NoError(t, err)
	assert.Equal(t, "Breaking: storm hits the coast.", text)

	img, err := WaitPresent(d, ArticleImage, time.Second)
	require.NoError(t, err)
	src, err := img.Attribute("src")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/media/full.jpg", src)
}

func TestStaticDriver_LoginFormAndInterstitial(t *testing.T) {
	srv := newSite(t)
	d := launchStatic(t)
	require.NoError(t, d.Open(srv.URL+"/accounts/login/"))

	user, err := WaitVisible(d, ByName("username"), time.Second)
	require.NoError(t, err)
	require.NoError(t, user.SendKeys("scraper"))
	v, err := user.Attribute("value")
	require.NoError(t, err)
	assert.Equal(t, "scraper", v)

	_, err = WaitVisible(d, ByName("csrf"), time.Second)
	assert.ErrorIs(t, err, ErrTimeout)

	// One "Not Now" is hidden, the other disabled: neither is clickable.
	_, err = WaitClickable(d, ButtonLabeled("Not Now"), time.Second)
	assert.ErrorIs(t, err, ErrTimeout)

	buttons, err := d.FindElements(ButtonLabeled("Not Now"))
	require.NoError(t, err)
	assert.Len(t, buttons, 2)
}

func TestStaticDriver_MissingElement(t *testing.T) {
	srv := newSite(t)
	d := launchStatic(t)
	require.NoError(t, d.Open(srv.URL+"/bbcnews/"))

	_, err := d.FindElement(CaptionHeading("_ap3a"))
	assert.ErrorIs(t, err, ErrNoSuchElement)

	_, err = WaitPresent(d, CaptionHeading("_ap3a"), 10*time.Second)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStaticDriver_OpenErrors(t *testing.T) {
	srv := newSite(t)
	d := launchStatic(t)

	err := d.Open(srv.URL + "/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status: 404")

	_, err = d.FindElements(PostLinks)
	assert.Error(t, err)

	require.NoError(t, d.Quit())
	assert.Error(t, d.Open(srv.URL+"/bbcnews/"))
}

func TestStaticDriver_OpenStopsWhenSessionCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	d, err := (&StaticLauncher{}).Launch(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Open(srv.URL + "/slow") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("page load did not stop after cancellation")
	}
}

func TestStaticDriver_ClickFollowsAnchor(t *testing.T) {
	srv := newSite(t)
	d := launchStatic(t)
	require.NoError(t, d.Open(srv.URL+"/bbcnews/"))

	link, err := d.FindElement(PostLinks)
	require.NoError(t, err)
	require.NoError(t, link.Click())

	_, err = d.FindElement(ArticleImage)
	assert.NoError(t, err)
}

type erroringDriver struct{ StaticDriver }

func (erroringDriver) FindElement(Selector) (Element, error) {
	return nil, errors.New("session lost")
}

func (d *erroringDriver) WaitUntil(cond Condition, timeout time.Duration) error {
	_, err := cond(d)
	return err
}

func TestWaitFor_PropagatesDriverErrors(t *testing.T) {
	_, err := WaitPresent(&erroringDriver{}, PostLinks, time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "session lost")
}
