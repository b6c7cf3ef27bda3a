package fingerprint

import (
	"bytes"
	"errors"
	"net/http"
	"testing"

	utls "github.com/refraction-networking/utls"
)

func TestDefault_Catalog(t *testing.T) {
	c := Default()

	ids := c.IDs()
	if len(ids) != 28 {
		t.Errorf("len(IDs) = %d, want 28", len(ids))
	}
	if ids[0] != "chrome99" || ids[len(ids)-1] != "tor145" {
		t.Errorf("catalog order = %v", ids)
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %q", id)
		}
		seen[id] = true

		p, ok := c.Lookup(id)
		if !ok {
			t.Fatalf("Lookup(%q) missing", id)
		}
		if p.HelloID == (utls.ClientHelloID{}) {
			t.Errorf("%s: zero HelloID", id)
		}
		if p.UserAgent() == "" {
			t.Errorf("%s: empty User-Agent", id)
		}
	}
}

func TestCatalog_IDsIsCopy(t *testing.T) {
	c := Default()
	ids := c.IDs()
	ids[0] = "mutated"
	if c.IDs()[0] != "chrome99" {
		t.Error("IDs() exposed internal slice")
	}
}

func TestNewCatalog_Dedup(t *testing.T) {
	c := NewCatalog(
		&Profile{ID: "a"},
		&Profile{ID: "b"},
		&Profile{ID: "a"},
	)
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestSelect_ValidMembers(t *testing.T) {
	s := NewSelector(Default())
	for _, id := range Default().IDs() {
		p, err := s.Select(id)
		if err != nil {
			t.Fatalf("Select(%q) error = %v", id, err)
		}
		if p.ID != id {
			t.Errorf("Select(%q) = %q", id, p.ID)
		}
	}
}

func TestSelect_Unsupported(t *testing.T) {
	s := NewSelector(Default())
	for _, id := range []string{"chrome1", "CHROME120", "netscape", " chrome120"} {
		_, err := s.Select(id)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Select(%q) error = %v, want ErrUnsupported", id, err)
		}
	}
}

func TestSelect_RandomIsMember(t *testing.T) {
	s := NewSelector(Default())
	seen := make(map[string]bool)
	for range 200 {
		p, err := s.Select("")
		if err != nil {
			t.Fatalf("Select(\"\") error = %v", err)
		}
		if _, ok := s.Catalog().Lookup(p.ID); !ok {
			t.Fatalf("random pick %q not in catalog", p.ID)
		}
		seen[p.ID] = true
	}
	if len(seen) < 2 {
		t.Errorf("200 random picks produced %d distinct ids", len(seen))
	}
}

func TestSelect_UsesRandomSource(t *testing.T) {
	c := NewCatalog(&Profile{ID: "a"}, &Profile{ID: "b"})
	s := &Selector{catalog: c, random: bytes.NewReader(make([]byte, 64))}

	p, err := s.Select("")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if p.ID != "a" {
		t.Errorf("Select() with zero entropy = %q, want %q", p.ID, "a")
	}
}

func TestSelect_EmptyCatalog(t *testing.T) {
	s := NewSelector(NewCatalog())
	if _, err := s.Select(""); err == nil {
		t.Error("Select() on empty catalog: expected error")
	}
}

func TestApplyHeaders_CallerWins(t *testing.T) {
	p, _ := Default().Lookup("chrome120")
	h := http.Header{}
	h.Set("User-Agent", "custom/1.0")

	p.ApplyHeaders(h)

	if got := h.Get("User-Agent"); got != "custom/1.0" {
		t.Errorf("User-Agent = %q, want caller value", got)
	}
	if h.Get("Accept-Encoding") == "" {
		t.Error("Accept-Encoding not filled from profile")
	}
	if h.Get("Sec-Ch-Ua") == "" {
		t.Error("Sec-Ch-Ua not filled for chromium profile")
	}
}

func TestApplyHeaders_FirefoxHasNoClientHints(t *testing.T) {
	p, _ := Default().Lookup("firefox133")
	h := http.Header{}
	p.ApplyHeaders(h)
	if h.Get("Sec-Ch-Ua") != "" {
		t.Error("firefox profile should not send Sec-Ch-Ua")
	}
}
