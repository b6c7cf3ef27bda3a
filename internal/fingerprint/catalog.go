// Package fingerprint holds the browser impersonation catalog and selects a
// fingerprint for each hop.
//
// A fingerprint bundles the signals anti-bot systems correlate: the TLS
// ClientHello (parroted by uTLS) and the browser's default request headers.
// The two are kept consistent per entry so a Chrome ClientHello is never
// paired with a Firefox User-Agent.
package fingerprint

import (
	"net/http"
	"slices"

	utls "github.com/refraction-networking/utls"
)

// Profile is one catalog entry.
type Profile struct {
	ID      string
	HelloID utls.ClientHelloID
	Headers []Header
}

// Header is an ordered name-value pair.
type Header struct {
	Name  string
	Value string
}

// ApplyHeaders sets the profile's headers on h where h does not already
// carry a value, so caller-supplied headers win.
func (p *Profile) ApplyHeaders(h http.Header) {
	for _, kv := range p.Headers {
		if h.Get(kv.Name) == "" {
			h.Set(kv.Name, kv.Value)
		}
	}
}

// UserAgent returns the profile's User-Agent value.
func (p *Profile) UserAgent() string {
	for _, kv := range p.Headers {
		if kv.Name == "User-Agent" {
			return kv.Value
		}
	}
	return ""
}

// Catalog is an immutable ordered set of profiles.
type Catalog struct {
	ids      []string
	profiles map[string]*Profile
}

// NewCatalog builds a catalog. Duplicate IDs keep their first position.
func NewCatalog(profiles ...*Profile) *Catalog {
	c := &Catalog{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		if _, dup := c.profiles[p.ID]; dup {
			continue
		}
		c.ids = append(c.ids, p.ID)
		c.profiles[p.ID] = p
	}
	return c
}

// IDs returns a copy of the identifiers in catalog order.
func (c *Catalog) IDs() []string {
	return slices.Clone(c.ids)
}

// Len returns the number of profiles.
func (c *Catalog) Len() int {
	return len(c.ids)
}

// Lookup returns the profile for id.
func (c *Catalog) Lookup(id string) (*Profile, bool) {
	p, ok := c.profiles[id]
	return p, ok
}

// Default returns the built-in catalog. Versions without an exact uTLS
// parrot map to the nearest one of the same browser family.
func Default() *Catalog {
	return NewCatalog(
		chromium("chrome99", utls.HelloChrome_96, "99", desktopChrome),
		chromium("chrome100", utls.HelloChrome_100, "100", desktopChrome),
		chromium("chrome101", utls.HelloChrome_100, "101", desktopChrome),
		chromium("chrome104", utls.HelloChrome_102, "104", desktopChrome),
		chromium("chrome107", utls.HelloChrome_106_Shuffle, "107", desktopChrome),
		chromium("chrome110", utls.HelloChrome_106_Shuffle, "110", desktopChrome),
		chromium("chrome116", utls.HelloChrome_106_Shuffle, "116", desktopChrome),
		chromium("chrome119", utls.HelloChrome_120, "119", desktopChrome),
		chromium("chrome120", utls.HelloChrome_120, "120", desktopChrome),
		chromium("chrome123", utls.HelloChrome_120, "123", desktopChrome),
		chromium("chrome124", utls.HelloChrome_120, "124", desktopChrome),
		chromium("chrome131", utls.HelloChrome_131, "131", desktopChrome),
		chromium("chrome133a", utls.HelloChrome_131, "133", desktopChrome),
		chromium("chrome136", utls.HelloChrome_131, "136", desktopChrome),
		chromium("chrome99_android", utls.HelloChrome_96, "99", androidChrome),
		chromium("chrome131_android", utls.HelloChrome_131, "131", androidChrome),
		chromium("edge99", utls.HelloEdge_85, "99", desktopEdge),
		chromium("edge101", utls.HelloEdge_85, "101", desktopEdge),
		safari("safari15_3", utls.HelloSafari_16_0, "15.3", macSafari),
		safari("safari15_5", utls.HelloSafari_16_0, "15.5", macSafari),
		safari("safari17_0", utls.HelloSafari_16_0, "17.0", macSafari),
		safari("safari17_2_ios", utls.HelloIOS_14, "17.2", iosSafari),
		safari("safari18_0", utls.HelloSafari_16_0, "18.0", macSafari),
		safari("safari18_0_ios", utls.HelloIOS_14, "18.0", iosSafari),
		safari("safari18_4", utls.HelloSafari_16_0, "18.4", macSafari),
		safari("safari18_4_ios", utls.HelloIOS_14, "18.4", iosSafari),
		firefox("firefox133", utls.HelloFirefox_120, "133"),
		firefox("tor145", utls.HelloFirefox_120, "128"),
	)
}
