package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"instapost/internal/browser"
	"instapost/internal/config"
	"instapost/internal/domain"
	"instapost/internal/service/mocks"
	"instapost/testdata/utils"
)

const (
	loginURL   = "https://www.instagram.com/accounts/login/"
	profileURL = "https://www.instagram.com/bbcnews/"
)

// fakeElement is a scripted DOM node.
type fakeElement struct {
	attrs    map[string]string
	text     string
	hidden   bool
	disabled bool
	typed    []string
	clicks   int
}

func (e *fakeElement) Attribute(name string) (string, error) { return e.attrs[name], nil }
func (e *fakeElement) Text() (string, error)                 { return e.text, nil }
func (e *fakeElement) Displayed() (bool, error)              { return !e.hidden, nil }
func (e *fakeElement) Enabled() (bool, error)                { return !e.disabled, nil }

func (e *fakeElement) SendKeys(text string) error {
	e.typed = append(e.typed, text)
	return nil
}

func (e *fakeElement) Click() error {
	e.clicks++
	return nil
}

// fakePage maps rendered XPath expressions to the elements they match.
type fakePage map[string][]*fakeElement

// fakeDriver serves scripted pages. Waits are evaluated once, so an absent
// element times out immediately.
type fakeDriver struct {
	pages   map[string]fakePage
	current fakePage
	opened  []string
	quits   int
}

func (d *fakeDriver) Open(url string) error {
	d.opened = append(d.opened, url)
	page, ok := d.pages[url]
	if !ok {
		return fmt.Errorf("navigate %s: net::ERR_NAME_NOT_RESOLVED", url)
	}
	d.current = page
	return nil
}

func (d *fakeDriver) WaitUntil(cond browser.Condition, timeout time.Duration) error {
	ok, err := cond(d)
	if err != nil {
		return err
	}
	if !ok {
		return browser.ErrTimeout
	}
	return nil
}

func (d *fakeDriver) FindElement(sel browser.Selector) (browser.Element, error) {
	els := d.current[sel.XPath()]
	if len(els) == 0 {
		return nil, browser.ErrNoSuchElement
	}
	return els[0], nil
}

func (d *fakeDriver) FindElements(sel browser.Selector) ([]browser.Element, error) {
	var out []browser.Element
	for _, el := range d.current[sel.XPath()] {
		out = append(out, el)
	}
	return out, nil
}

func (d *fakeDriver) Quit() error {
	d.quits++
	return nil
}

type fakeLauncher struct {
	driver *fakeDriver
	err    error
}

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Driver, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.driver, nil
}

// memPostStore keeps posts in insertion order and skips known captions.
type memPostStore struct {
	posts []domain.Post
}

func (m *memPostStore) Insert(_ context.Context, caption string, imageURL *string) (domain.InsertOutcome, error) {
	for _, p := range m.posts {
		if p.Caption == caption {
			return domain.Skipped, nil
		}
	}
	url := *imageURL
	m.posts = append(m.posts, domain.Post{ID: int64(len(m.posts) + 1), Caption: caption, ImageURL: &url})
	return domain.Stored, nil
}

func (m *memPostStore) Latest(context.Context) (*domain.Post, error) {
	if len(m.posts) == 0 {
		return nil, domain.ErrNoPosts
	}
	p := m.posts[len(m.posts)-1]
	return &p, nil
}

type post struct {
	caption, image string
}

type ScrapeServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	state  *mocks.MockScrapeStateStore
	events *mocks.MockEventPublisher

	store    *memPostStore
	driver   *fakeDriver
	launcher *fakeLauncher
	username *fakeElement
	password *fakeElement
	notNow   *fakeElement

	cfg    config.ScraperConfig
	logger *slog.Logger
}

func (s *ScrapeServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.state = mocks.NewMockScrapeStateStore(s.ctrl)
	s.events = mocks.NewMockEventPublisher(s.ctrl)

	s.store = &memPostStore{}
	s.username = &fakeElement{}
	s.password = &fakeElement{}
	s.notNow = &fakeElement{}
	s.driver = &fakeDriver{pages: map[string]fakePage{
		loginURL: {
			browser.ByName("username").XPath():       {s.username},
			browser.ByName("password").XPath():       {s.password},
			browser.ButtonLabeled("Not Now").XPath(): {s.notNow},
		},
	}}
	s.launcher = &fakeLauncher{driver: s.driver}

	s.cfg = config.ScraperConfig{
		ProfileURL:   profileURL,
		Limit:        5,
		LoginURL:     loginURL,
		CaptionClass: "_ap3a",
		WaitTimeout:  10 * time.Second,
		Username:     "scraper",
		Password:     "secret",
	}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ScrapeServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestScrapeServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ScrapeServiceTestSuite))
}

func (s *ScrapeServiceTestSuite) newService(events EventPublisher, recorder ScrapeRecorder) *ScrapeService {
	return NewScrapeService(s.launcher, s.store, s.state, events, recorder, s.logger, s.cfg)
}

// scriptProfile registers a profile page linking to one page per post.
func (s *ScrapeServiceTestSuite) scriptProfile(posts ...post) []string {
	var links []*fakeElement
	var urls []string
	for i, p := range posts {
		url := fmt.Sprintf("https://www.instagram.com/p/P%d/", i+1)
		urls = append(urls, url)
		links = append(links, &fakeElement{attrs: map[string]string{"href": url}})

		page := fakePage{}
		if p.caption != "" {
			page[browser.CaptionHeading("_ap3a").XPath()] = []*fakeElement{{text: p.caption}}
		}
		if p.image != "" {
			page[browser.ArticleImage.XPath()] = []*fakeElement{{attrs: map[string]string{"src": p.image}}}
		}
		s.driver.pages[url] = page
	}
	s.driver.pages[profileURL] = fakePage{browser.PostLinks.XPath(): links}
	return urls
}

func (s *ScrapeServiceTestSuite) expectStateUpdate(ctx context.Context, before, wantTotal int64) {
	s.state.EXPECT().Get(ctx, "bbcnews").Return(&domain.ScrapeState{Profile: "bbcnews", TotalStored: before}, nil)
	s.state.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, st *domain.ScrapeState) error {
		s.Equal("bbcnews", st.Profile)
		s.Equal(wantTotal, st.TotalStored)
		s.False(st.LastScrapedAt.IsZero())
		return nil
	})
}

func (s *ScrapeServiceTestSuite) captions() map[string]string {
	out := map[string]string{}
	for _, p := range s.store.posts {
		out[p.Caption] = *p.ImageURL
	}
	return out
}

func (s *ScrapeServiceTestSuite) TestRun_ColdIngest() {
	ctx := context.Background()
	s.scriptProfile(post{"A", "u1"}, post{"B", "u2"}, post{"A", "u3"})

	s.events.EXPECT().Publish(ctx, gomock.Any()).Times(2).Return(nil)
	s.expectStateUpdate(ctx, 0, 2)

	svc := s.newService(s.events, nil)
	stats, err := svc.Run(ctx)

	s.Require().NoError(err)
	s.Equal(map[string]string{"A": "u1", "B": "u2"}, s.captions())
	s.Equal("A", s.store.posts[0].Caption)
	s.Equal("B", s.store.posts[1].Caption)

	s.Equal(3, stats.Found)
	s.Equal(3, stats.Visited)
	s.Equal(2, stats.Stored)
	s.Equal(1, stats.Skipped)
	s.Equal(0, stats.Failed)
	s.Equal(2, stats.Published)
	s.Equal(string(StateDone), stats.State)
	s.Equal(StateDone, svc.State())

	s.Equal([]string{"scraper"}, s.username.typed)
	s.Equal([]string{"secret", browser.EnterKey}, s.password.typed)
	s.Equal(1, s.notNow.clicks)
	s.Equal(1, s.driver.quits)
}

func (s *ScrapeServiceTestSuite) TestRun_SkipOnDuplicate() {
	ctx := context.Background()
	s.store.posts = []domain.Post{{ID: 1, Caption: "A", ImageURL: utils.Ptr("u1")}}
	s.scriptProfile(post{"A", "u9"})

	s.expectStateUpdate(ctx, 1, 1)

	stats, err := s.newService(s.events, nil).Run(ctx)

	s.Require().NoError(err)
	s.Len(s.store.posts, 1)
	s.Equal("u1", *s.store.posts[0].ImageURL)
	s.Equal(1, stats.Skipped)
	s.Equal(0, stats.Stored)
}

func (s *ScrapeServiceTestSuite) TestRun_PerPostFailuresAreNotFatal() {
	ctx := context.Background()
	urls := s.scriptProfile(
		post{"", "u1"},
		post{"no image", ""},
		post{"unreachable", "u3"},
		post{"C", "u4"},
	)
	delete(s.driver.pages, urls[2])

	s.expectStateUpdate(ctx, 0, 1)

	stats, err := s.newService(nil, nil).Run(ctx)

	s.Require().NoError(err)
	s.Equal(4, stats.Visited)
	s.Equal(3, stats.Failed)
	s.Equal(1, stats.Stored)
	s.Equal(map[string]string{"C": "u4"}, s.captions())
}

func (s *ScrapeServiceTestSuite) TestRun_EmptyCaptionTextIsSkipped() {
	ctx := context.Background()
	urls := s.scriptProfile(post{"X", "u1"})
	s.driver.pages[urls[0]][browser.CaptionHeading("_ap3a").XPath()][0].text = ""

	s.expectStateUpdate(ctx, 0, 0)

	stats, err := s.newService(nil, nil).Run(ctx)

	s.Require().NoError(err)
	s.Equal(1, stats.Failed)
	s.Empty(s.store.posts)
}

func (s *ScrapeServiceTestSuite) TestRun_LimitAndEmptyHrefs() {
	ctx := context.Background()
	var posts []post
	for i := 0; i < 7; i++ {
		posts = append(posts, post{fmt.Sprintf("caption %d", i), fmt.Sprintf("u%d", i)})
	}
	s.scriptProfile(posts...)
	links := s.driver.pages[profileURL][browser.PostLinks.XPath()]
	empty := &fakeElement{attrs: map[string]string{"href": ""}}
	s.driver.pages[profileURL][browser.PostLinks.XPath()] = append([]*fakeElement{empty}, links...)

	s.expectStateUpdate(ctx, 0, 5)

	stats, err := s.newService(nil, nil).Run(ctx)

	s.Require().NoError(err)
	s.Equal(5, stats.Found)
	s.Equal(5, stats.Stored)
	s.Equal("caption 0", s.store.posts[0].Caption)
	s.Equal("caption 4", s.store.posts[4].Caption)
}

func (s *ScrapeServiceTestSuite) TestRun_InterstitialAbsent() {
	ctx := context.Background()
	delete(s.driver.pages[loginURL], browser.ButtonLabeled("Not Now").XPath())
	s.scriptProfile(post{"A", "u1"})

	s.expectStateUpdate(ctx, 0, 1)

	_, err := s.newService(nil, nil).Run(ctx)

	s.NoError(err)
}

func (s *ScrapeServiceTestSuite) TestRun_InterstitialNotClickable() {
	ctx := context.Background()
	s.notNow.disabled = true
	s.scriptProfile(post{"A", "u1"})

	s.expectStateUpdate(ctx, 0, 1)

	_, err := s.newService(nil, nil).Run(ctx)

	s.NoError(err)
	s.Zero(s.notNow.clicks)
}

func (s *ScrapeServiceTestSuite) TestRun_LoginFailureIsFatal() {
	ctx := context.Background()
	delete(s.driver.pages[loginURL], browser.ByName("username").XPath())

	svc := s.newService(nil, nil)
	stats, err := svc.Run(ctx)

	s.Require().Error(err)
	s.ErrorIs(err, browser.ErrTimeout)
	s.Contains(err.Error(), "login")
	s.Equal(StateFailed, svc.State())
	s.Equal(string(StateFailed), stats.State)
	s.Equal(1, s.driver.quits)
}

func (s *ScrapeServiceTestSuite) TestRun_ProfileFailureIsFatal() {
	ctx := context.Background()

	_, err := s.newService(nil, nil).Run(ctx)

	s.Require().Error(err)
	s.Contains(err.Error(), "open profile")
	s.Equal(1, s.driver.quits)
}

func (s *ScrapeServiceTestSuite) TestRun_LaunchFailure() {
	s.launcher.err = errors.New("selenium unreachable")

	svc := s.newService(nil, nil)
	_, err := svc.Run(context.Background())

	s.Require().Error(err)
	s.Contains(err.Error(), "launch browser")
	s.Equal(StateFailed, svc.State())
	s.Zero(s.driver.quits)
}

func (s *ScrapeServiceTestSuite) TestRun_StoreErrorIsFatal() {
	ctx := context.Background()
	s.scriptProfile(post{"A", "u1"}, post{"B", "u2"})

	posts := mocks.NewMockPostStore(s.ctrl)
	posts.EXPECT().Insert(ctx, "A", gomock.Any()).Return(domain.Stored, errors.New("connection refused"))

	svc := NewScrapeService(s.launcher, posts, s.state, nil, nil, s.logger, s.cfg)
	stats, err := svc.Run(ctx)

	s.Require().Error(err)
	s.Contains(err.Error(), "store post")
	s.Equal(1, stats.Visited)
	s.Equal(StateFailed, svc.State())
	s.Equal(1, s.driver.quits)
}

func (s *ScrapeServiceTestSuite) TestRun_ContextCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := s.newService(nil, nil)
	_, err := svc.Run(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Equal(StateFailed, svc.State())
	s.Equal(1, s.driver.quits)
}

func (s *ScrapeServiceTestSuite) TestRun_EventPublishErrorIsCounted() {
	ctx := context.Background()
	s.scriptProfile(post{"A", "u1"})

	s.events.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, p *domain.Post) error {
		s.Equal("A", p.Caption)
		s.Equal("u1", *p.ImageURL)
		return errors.New("channel closed")
	})
	s.expectStateUpdate(ctx, 0, 1)

	stats, err := s.newService(s.events, nil).Run(ctx)

	s.Require().NoError(err)
	s.Equal(1, stats.Errors)
	s.Equal(0, stats.Published)
}

func (s *ScrapeServiceTestSuite) TestRun_RecordsMetrics() {
	ctx := context.Background()
	s.scriptProfile(post{"A", "u1"}, post{"A", "u2"}, post{"", ""})

	recorder := mocks.NewMockScrapeRecorder(s.ctrl)
	gomock.InOrder(
		recorder.EXPECT().PostScraped("stored"),
		recorder.EXPECT().PostScraped("skipped"),
		recorder.EXPECT().PostScraped("failed"),
		recorder.EXPECT().ScrapeRun(nil),
	)
	s.expectStateUpdate(ctx, 0, 1)

	_, err := s.newService(nil, recorder).Run(ctx)

	s.NoError(err)
}

func (s *ScrapeServiceTestSuite) TestRun_StateUpdateFailure() {
	ctx := context.Background()
	s.scriptProfile(post{"A", "u1"})

	s.state.EXPECT().Get(ctx, "bbcnews").Return(nil, errors.New("db gone"))

	svc := s.newService(nil, nil)
	stats, err := svc.Run(ctx)

	s.Require().Error(err)
	s.Contains(err.Error(), "update scrape state")
	s.Equal(1, stats.Stored)
	s.Equal(StateFailed, svc.State())
}

func TestProfileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.instagram.com/bbcnews/", "bbcnews"},
		{"https://www.instagram.com/bbcnews", "bbcnews"},
		{"bbcnews", "bbcnews"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProfileName(tt.in))
	}
}
