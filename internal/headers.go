package internal

import (
	"sort"
	"strings"
)

// Well known header names used by the engine itself.
const (
	HeaderAuthorization    = "Authorization"
	HeaderContentLength    = "Content-Length"
	HeaderContentType      = "Content-Type"
	HeaderHost             = "Host"
	HeaderLocation         = "Location"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderUserAgent        = "User-Agent"
)

// headerRank places a fixed subset of well known headers before all others on
// the wire. RFC 2616 section 4.2 calls sending general headers first "good
// practice"; the remaining headers sort case-insensitively.
var headerRank = map[string]int{
	strings.ToLower(HeaderHost):             1,
	strings.ToLower(HeaderAuthorization):    2,
	strings.ToLower(HeaderContentLength):    3,
	strings.ToLower(HeaderTransferEncoding): 4,
	strings.ToLower(HeaderContentType):      5,
	strings.ToLower(HeaderLocation):         6,
	strings.ToLower(HeaderUserAgent):        7,
}

func headerLess(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	ra, oka := headerRank[la]
	rb, okb := headerRank[lb]
	switch {
	case oka && okb:
		return ra < rb
	case oka:
		return true
	case okb:
		return false
	}
	return la < lb
}

type headerEntry struct {
	name  string
	value string
}

// HeaderMap is a case-insensitive single-valued header collection. Setting an
// existing name replaces its value but keeps the original spelling, matching
// last-write-wins semantics. Iteration order is deterministic: the fixed-rank
// subset first, then the rest alphabetically.
//
// HeaderMap is not safe for concurrent mutation; requests are single-owner
// objects while being configured.
type HeaderMap struct {
	entries []headerEntry
}

func (m *HeaderMap) find(name string) int {
	for i := range m.entries {
		if strings.EqualFold(m.entries[i].name, name) {
			return i
		}
	}
	return -1
}

// Set adds or replaces the header.
func (m *HeaderMap) Set(name, value string) {
	if i := m.find(name); i >= 0 {
		m.entries[i].value = value
		return
	}
	m.entries = append(m.entries, headerEntry{name: name, value: value})
}

// Get returns the header value and whether it was present.
func (m *HeaderMap) Get(name string) (string, bool) {
	if i := m.find(name); i >= 0 {
		return m.entries[i].value, true
	}
	return "", false
}

// Del removes the header if present.
func (m *HeaderMap) Del(name string) {
	if i := m.find(name); i >= 0 {
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
	}
}

// Len reports the number of headers held.
func (m *HeaderMap) Len() int { return len(m.entries) }

// Clear removes every header.
func (m *HeaderMap) Clear() { m.entries = nil }

// Each calls fn for every header in deterministic wire order.
func (m *HeaderMap) Each(fn func(name, value string)) {
	sorted := make([]headerEntry, len(m.entries))
	copy(sorted, m.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return headerLess(sorted[i].name, sorted[j].name)
	})
	for _, e := range sorted {
		fn(e.name, e.value)
	}
}

// Names returns the header names in deterministic wire order.
func (m *HeaderMap) Names() []string {
	names := make([]string, 0, len(m.entries))
	m.Each(func(name, _ string) { names = append(names, name) })
	return names
}
