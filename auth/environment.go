package auth

import (
	"net/url"
	"sync"
)

// Environment is the host the client runs in when it handles browser style
// redirects. Without one the client behaves as a server process: no URL
// detection and an always-on auto refresh.
type Environment interface {
	// CurrentURL is the URL the user landed on, nil when there is none.
	CurrentURL() *url.URL
	// ReplaceURL swaps the current URL without navigating, used to strip
	// tokens and codes once they have been consumed.
	ReplaceURL(u *url.URL)
	// Navigate sends the user to rawURL, e.g. a provider authorization page.
	Navigate(rawURL string) error
}

// VisibilityNotifier is implemented by environments with a foreground
// concept. Auto refresh then only runs while the environment is visible.
type VisibilityNotifier interface {
	Visible() bool
	OnVisibilityChange(fn func(visible bool)) (cancel func())
}

// URLEnvironment is an Environment backed by a single URL, as seen by a CLI
// callback server or a test.
type URLEnvironment struct {
	navigate func(rawURL string) error

	lock    sync.Mutex
	current *url.URL
}

var _ Environment = (*URLEnvironment)(nil)

// NewURLEnvironment creates an environment positioned at current. navigate
// may be nil, in which case Navigate only records the URL as current.
func NewURLEnvironment(current *url.URL, navigate func(rawURL string) error) *URLEnvironment {
	return &URLEnvironment{current: current, navigate: navigate}
}

func (e *URLEnvironment) CurrentURL() *url.URL {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.current == nil {
		return nil
	}
	c := *e.current
	return &c
}

func (e *URLEnvironment) ReplaceURL(u *url.URL) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.current = u
}

func (e *URLEnvironment) Navigate(rawURL string) error {
	if e.navigate != nil {
		return e.navigate(rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	e.ReplaceURL(u)
	return nil
}
