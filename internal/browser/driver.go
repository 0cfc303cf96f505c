// Package browser is the narrow browser-automation surface the scraper
// drives: open a page, wait on a DOM predicate, find elements, and read or
// interact with them.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTimeout       = errors.New("browser: wait timed out")
	ErrNoSuchElement = errors.New("browser: no such element")
)

// EnterKey is the WebDriver key code that submits the focused form.
const EnterKey = "\ue007"

// Condition is polled by WaitUntil until it returns true or an error.
type Condition func(d Driver) (bool, error)

// Driver is one live browser session.
type Driver interface {
	Open(url string) error
	WaitUntil(cond Condition, timeout time.Duration) error
	FindElement(sel Selector) (Element, error)
	FindElements(sel Selector) ([]Element, error)
	Quit() error
}

type Element interface {
	Attribute(name string) (string, error)
	Text() (string, error)
	SendKeys(text string) error
	Click() error
	Displayed() (bool, error)
	Enabled() (bool, error)
}

// Launcher acquires a new browser session. The caller owns the returned
// Driver and must Quit it.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// WaitPresent waits until sel matches an element.
func WaitPresent(d Driver, sel Selector, timeout time.Duration) (Element, error) {
	return waitFor(d, sel, timeout, func(Element) (bool, error) { return true, nil })
}

// WaitVisible waits until sel matches a displayed element.
func WaitVisible(d Driver, sel Selector, timeout time.Duration) (Element, error) {
	return waitFor(d, sel, timeout, func(el Element) (bool, error) { return el.Displayed() })
}

// WaitClickable waits until sel matches a displayed, enabled element.
func WaitClickable(d Driver, sel Selector, timeout time.Duration) (Element, error) {
	return waitFor(d, sel, timeout, func(el Element) (bool, error) {
		ok, err := el.Displayed()
		if err != nil || !ok {
			return false, err
		}
		return el.Enabled()
	})
}

func waitFor(d Driver, sel Selector, timeout time.Duration, ready func(Element) (bool, error)) (Element, error) {
	var found Element
	err := d.WaitUntil(func(d Driver) (bool, error) {
		el, err := d.FindElement(sel)
		if errors.Is(err, ErrNoSuchElement) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		ok, err := ready(el)
		if err != nil || !ok {
			return false, err
		}
		found = el
		return true, nil
	}, timeout)
	if err != nil {
		return nil, err
	}
	return found, nil
}
