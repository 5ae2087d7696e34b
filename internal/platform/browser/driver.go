// Package browser is the boundary to the headless-browser engine. The pool
// and orchestrator only speak these interfaces; the Playwright
// implementation lives beside them, and tests substitute fakes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NavigationKind classifies a failed navigation.
type NavigationKind string

const (
	NavStatus  NavigationKind = "status"
	NavTimeout NavigationKind = "timeout"
	NavNetwork NavigationKind = "network"
)

// NavigationError is the typed failure surfaced by Navigate.
type NavigationError struct {
	Kind       NavigationKind
	StatusCode int
	URL        string
	Err        error
}

func (e *NavigationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("navigation %s failed (%s, status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("navigation %s failed (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// IsNavigationError unwraps err into a *NavigationError if it is one.
func IsNavigationError(err error) (*NavigationError, bool) {
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return navErr, true
	}
	return nil, false
}

// Page is one fetched document.
type Page struct {
	HTML       string
	Title      string
	StatusCode int
	ElapsedMs  int64
}

// Driver launches browser processes.
type Driver interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is one launched browser process. Contexts derived from it are
// isolated sessions, cheap to create relative to the browser itself.
type Browser interface {
	NewContext(ctx context.Context) (Context, error)
	Close() error
}

// Context is one isolated browsing session.
type Context interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (*Page, error)
	Close() error
}
