package mensa

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// Session is the cookie jar of one menu fetch. The backend ties basket
// state to it, so an order must go out over the session whose fetch
// loaded the menu. A Session belongs to one order flow.
type Session struct {
	jar    http.CookieJar
	client *http.Client
}

func (c *Client) newSession() (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("mensa: cookie jar: %w", err)
	}
	return &Session{jar: jar, client: c.httpClient(jar)}, nil
}

// Cookies returns the cookies the session would send to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	if s == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return s.jar.Cookies(u)
}
