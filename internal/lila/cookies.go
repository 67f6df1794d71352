package lila

import (
	"sort"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
)

// CookieJar holds the session cookies by name. Safe for concurrent use.
type CookieJar struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewCookieJar() *CookieJar {
	return &CookieJar{m: make(map[string]string)}
}

// Set stores a cookie; an empty value removes it.
func (j *CookieJar) Set(name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if value == "" {
		delete(j.m, name)
		return
	}
	j.m[name] = value
}

func (j *CookieJar) Get(name string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v, ok := j.m[name]
	return v, ok
}

func (j *CookieJar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.m)
}

// All returns a copy of the stored cookies.
func (j *CookieJar) All() map[string]string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make(map[string]string, len(j.m))
	for k, v := range j.m {
		out[k] = v
	}
	return out
}

// Load merges cookies, typically restored from a cookie store.
func (j *CookieJar) Load(cookies map[string]string) {
	for k, v := range cookies {
		j.Set(k, v)
	}
}

// Header renders the Cookie request header, names sorted.
func (j *CookieJar) Header() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.m) == 0 {
		return ""
	}
	names := make([]string, 0, len(j.m))
	for k := range j.m {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+j.m[k])
	}
	return strings.Join(parts, "; ")
}

// absorb copies every Set-Cookie of resp into the jar.
func (j *CookieJar) absorb(resp *fasthttp.Response) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	resp.Header.VisitAllCookie(func(_, value []byte) {
		c.Reset()
		if err := c.ParseBytes(value); err != nil {
			return
		}
		if c.MaxAge() < 0 {
			j.Set(string(c.Key()), "")
			return
		}
		j.Set(string(c.Key()), string(c.Value()))
	})
}
