package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"
)

// SeleniumLauncher opens sessions on a remote WebDriver endpoint.
type SeleniumLauncher struct {
	RemoteURL   string
	BrowserName string
	Headless    bool
	Logger      *slog.Logger
}

func (l *SeleniumLauncher) Launch(ctx context.Context) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	caps := selenium.Capabilities{"browserName": l.BrowserName}
	switch l.BrowserName {
	case "firefox":
		var args []string
		if l.Headless {
			args = append(args, "-headless")
		}
		caps.AddFirefox(firefox.Capabilities{Args: args})
	case "chrome":
		var args []string
		if l.Headless {
			args = append(args, "--headless=new")
		}
		caps.AddChrome(chrome.Capabilities{Args: args})
	}

	wd, err := selenium.NewRemote(caps, l.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("start remote session: %w", err)
	}

	if err := wd.MaximizeWindow(""); err != nil && l.Logger != nil {
		l.Logger.Warn("failed to maximize window", "error", err)
	}

	return &seleniumDriver{wd: wd}, nil
}

type seleniumDriver struct {
	wd selenium.WebDriver
}

func (d *seleniumDriver) Open(url string) error {
	if err := d.wd.Get(url); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

func (d *seleniumDriver) WaitUntil(cond Condition, timeout time.Duration) error {
	var condErr error
	err := d.wd.WaitWithTimeout(func(selenium.WebDriver) (bool, error) {
		ok, err := cond(d)
		if err != nil {
			condErr = err
		}
		return ok, err
	}, timeout)
	if err == nil {
		return nil
	}
	if condErr != nil {
		return condErr
	}
	return fmt.Errorf("%w after %s", ErrTimeout, timeout)
}

func (d *seleniumDriver) FindElement(sel Selector) (Element, error) {
	el, err := d.wd.FindElement(selenium.ByXPATH, sel.XPath())
	if err != nil {
		return nil, mapSeleniumErr(sel, err)
	}
	return seleniumElement{el: el}, nil
}

func (d *seleniumDriver) FindElements(sel Selector) ([]Element, error) {
	els, err := d.wd.FindElements(selenium.ByXPATH, sel.XPath())
	if err != nil {
		return nil, mapSeleniumErr(sel, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, seleniumElement{el: el})
	}
	return out, nil
}

func (d *seleniumDriver) Quit() error {
	return d.wd.Quit()
}

func mapSeleniumErr(sel Selector, err error) error {
	var serr *selenium.Error
	if errors.As(err, &serr) && serr.Err == "no such element" {
		return fmt.Errorf("%w: %s", ErrNoSuchElement, sel)
	}
	return fmt.Errorf("find %s: %w", sel, err)
}

type seleniumElement struct {
	el selenium.WebElement
}

func (e seleniumElement) Attribute(name string) (string, error) { return e.el.GetAttribute(name) }
func (e seleniumElement) Text() (string, error)                 { return e.el.Text() }
func (e seleniumElement) SendKeys(text string) error            { return e.el.SendKeys(text) }
func (e seleniumElement) Click() error                          { return e.el.Click() }
func (e seleniumElement) Displayed() (bool, error)              { return e.el.IsDisplayed() }
func (e seleniumElement) Enabled() (bool, error)                { return e.el.IsEnabled() }
