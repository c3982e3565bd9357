package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authgate"
)

// Cookies names, scopes and times the three credential cookies.
type Cookies struct {
	AccessName  string
	RefreshName string
	CSRFName    string
	Domain      string
	Path        string
	Secure      bool
	SameSite    http.SameSite

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CSRFTTL    time.Duration
}

// CookiesFromConfig derives cookie settings from the engine configuration.
// The refresh cookie lives as long as the session.
func CookiesFromConfig(cfg authgate.Config) Cookies {
	return Cookies{
		AccessName:  cfg.Cookies.AccessName,
		RefreshName: cfg.Cookies.RefreshName,
		CSRFName:    cfg.Cookies.CSRFName,
		Domain:      cfg.Cookies.Domain,
		Path:        cfg.Cookies.Path,
		Secure:      cfg.Cookies.Secure,
		SameSite:    cfg.Cookies.SameSite,
		AccessTTL:   cfg.JWT.AccessTTL,
		RefreshTTL:  cfg.Session.TTL,
		CSRFTTL:     cfg.CSRF.TTL,
	}
}

func (c Cookies) SetAccess(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(c.AccessName, token, c.AccessTTL))
}

func (c Cookies) SetRefresh(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(c.RefreshName, token, c.RefreshTTL))
}

func (c Cookies) SetCSRF(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(c.CSRFName, token, c.CSRFTTL))
}

// ClearAll expires every credential cookie.
func (c Cookies) ClearAll(w http.ResponseWriter) {
	for _, name := range []string{c.AccessName, c.RefreshName, c.CSRFName} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

// Read returns the named cookie's value, or "".
func (c Cookies) Read(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c Cookies) cookie(name, value string, ttl time.Duration) *http.Cookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
	if ttl > 0 {
		ck.MaxAge = int(ttl.Seconds())
		ck.Expires = time.Now().Add(ttl)
	}
	return ck
}
