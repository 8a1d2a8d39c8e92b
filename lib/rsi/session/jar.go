package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	cookieBlobVersion = 1
	expirySlack       = time.Minute
)

type storedCookie struct {
	Url      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (c storedCookie) key() string {
	domain := c.Domain
	if domain == "" {
		parsed, err := url.Parse(c.Url)
		if err == nil {
			domain = parsed.Hostname()
		}
	}
	return strings.TrimPrefix(domain, ".") + "|" + c.Path + "|" + c.Name
}

// same reports whether two cookies would persist the same way, expiries that moved
// by less than expirySlack count as unchanged.
func (c storedCookie) same(other storedCookie) bool {
	drift := c.Expires.Sub(other.Expires)
	if drift < 0 {
		drift = -drift
	}
	c.Expires, other.Expires = time.Time{}, time.Time{}
	return c == other && drift < expirySlack
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

// defaultPath is the path a cookie without a path attribute is scoped to (RFC 6265 5.1.4).
func defaultPath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(requestPath, "/")
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}

type cookieBlob struct {
	Version int            `json:"version"`
	Cookies []storedCookie `json:"cookies"`
}

// recordingJar is a cookiejar.Jar that remembers every cookie it was given so the
// jar can be written out and restored later.
type recordingJar struct {
	mu      sync.Mutex
	inner   *cookiejar.Jar
	cookies map[string]storedCookie
	// dirty is set when the recorded cookies changed since the last Encode.
	dirty bool
}

func newRecordingJar() *recordingJar {
	inner, _ := cookiejar.New(nil)
	return &recordingJar{
		inner:   inner,
		cookies: make(map[string]storedCookie),
	}
}

func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)

	now := time.Now()
	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
	for _, c := range cookies {
		path := c.Path
		if path == "" || path[0] != '/' {
			path = defaultPath(u.Path)
		}
		stored := storedCookie{
			Url:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		switch {
		case c.MaxAge < 0:
			j.remove(stored.key())
			continue
		case c.MaxAge > 0:
			stored.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			stored.Expires = c.Expires
		}
		if stored.expired(now) {
			j.remove(stored.key())
			continue
		}
		if old, ok := j.cookies[stored.key()]; ok && old.same(stored) {
			continue
		}
		j.cookies[stored.key()] = stored
		j.dirty = true
	}
}

func (j *recordingJar) remove(key string) {
	if _, ok := j.cookies[key]; ok {
		delete(j.cookies, key)
		j.dirty = true
	}
}

// Dirty reports whether the recorded cookies changed since the last Encode.
func (j *recordingJar) Dirty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dirty
}

func (j *recordingJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// Clear drops every cookie.
func (j *recordingJar) Clear() {
	inner, _ := cookiejar.New(nil)
	j.mu.Lock()
	j.inner = inner
	j.cookies = make(map[string]storedCookie)
	j.dirty = true
	j.mu.Unlock()
}

// Len is the number of unexpired cookies held by the jar.
func (j *recordingJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	count := 0
	for _, c := range j.cookies {
		if !c.expired(now) {
			count++
		}
	}
	return count
}

// Encode serializes the jar into a base64 string and marks it clean.
func (j *recordingJar) Encode() (string, error) {
	j.mu.Lock()
	j.dirty = false
	now := time.Now()
	blob := cookieBlob{Version: cookieBlobVersion}
	for _, c := range j.cookies {
		if c.expired(now) {
			continue
		}
		blob.Cookies = append(blob.Cookies, c)
	}
	j.mu.Unlock()

	buff, err := json.Marshal(blob)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buff), nil
}

// Decode replaces the contents of the jar with the ones in an encoded string.
func (j *recordingJar) Decode(encoded string) error {
	buff, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode cookies: %w", err)
	}
	var blob cookieBlob
	err = json.Unmarshal(buff, &blob)
	if err != nil {
		return fmt.Errorf("unmarshal cookies: %w", err)
	}
	if blob.Version != cookieBlobVersion {
		return fmt.Errorf("unsupported cookie blob version %d", blob.Version)
	}

	inner, _ := cookiejar.New(nil)
	cookies := make(map[string]storedCookie, len(blob.Cookies))
	now := time.Now()
	for _, c := range blob.Cookies {
		if c.expired(now) {
			continue
		}
		u, err := url.Parse(c.Url)
		if err != nil {
			return fmt.Errorf("parse cookie url: %w", err)
		}
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		inner.SetCookies(u, []*http.Cookie{cookie})
		cookies[c.key()] = c
	}

	j.mu.Lock()
	j.inner = inner
	j.cookies = cookies
	j.dirty = false
	j.mu.Unlock()
	return nil
}
