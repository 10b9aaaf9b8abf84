//go:build unit

package dsig

import (
	"bytes"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

// parseElement parses an XML string and returns its root element.
func parseElement(t *testing.T, raw string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	root := doc.Root()
	if root == nil {
		t.Fatal("fixture has no root element")
	}
	return root
}

func TestCanonicalBytes_Deterministic(t *testing.T) {
	el := parseElement(t, `<a b="2" a="1"><child>text</child></a>`)

	first, err := CanonicalBytes(el, false, nil, nil)
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("CanonicalBytes() returned empty output")
	}

	second, err := CanonicalBytes(el, false, nil, nil)
	if err != nil {
		t.Fatalf("CanonicalBytes() second call error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("canonicalization is not deterministic:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestCanonicalBytes_NormalizesAttributeOrder(t *testing.T) {
	a := parseElement(t, `<a b="2" a="1"/>`)
	b := parseElement(t, `<a a="1" b="2"/>`)

	ca, err := CanonicalBytes(a, false, nil, nil)
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}
	cb, err := CanonicalBytes(b, false, nil, nil)
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}
	if !bytes.Equal(ca, cb) {
		t.Errorf("semantically equivalent documents canonicalized differently:\n%s\n%s", ca, cb)
	}
}

func TestCanonicalBytes_InclusivePrefixDeclarationPreserved(t *testing.T) {
	// The subtree uses the saml prefix only inside an attribute value, so
	// exclusive canonicalization would drop the declaration without the
	// inclusive-prefix mechanism.
	el := parseElement(t, `<Assertion Type="saml:AssertionType"/>`)

	out, err := CanonicalBytes(el, false, []string{"saml"},
		map[string]string{"saml": "urn:oasis:names:tc:SAML:2.0:assertion"})
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}
	if !strings.Contains(string(out), `xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"`) {
		t.Errorf("inclusive prefix declaration missing from canonical output: %s", out)
	}
}

func TestCanonicalBytes_UnresolvablePrefixSkipped(t *testing.T) {
	el := parseElement(t, `<Assertion Type="x"/>`)

	// The prefix cannot be resolved; best-effort behavior is to skip it, not
	// to fail the canonicalization.
	withMissing, err := CanonicalBytes(el, false, []string{"missing"}, map[string]string{})
	if err != nil {
		t.Fatalf("CanonicalBytes() with unresolvable prefix error: %v", err)
	}
	plain, err := CanonicalBytes(el, false, nil, nil)
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}
	if !bytes.Equal(withMissing, plain) {
		t.Errorf("unresolvable prefix changed canonical output:\nwith:  %s\nplain: %s", withMissing, plain)
	}
}

func TestCanonicalBytes_NilElement(t *testing.T) {
	if _, err := CanonicalBytes(nil, false, nil, nil); err == nil {
		t.Error("CanonicalBytes(nil) should fail")
	}
}

func TestReparseBuffer_RoundTrip(t *testing.T) {
	el := parseElement(t, `<root><child attr="v">text</child></root>`)
	canonical, err := CanonicalBytes(el, false, nil, nil)
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}

	reparsed, err := ReparseBuffer(canonical)
	if err != nil {
		t.Fatalf("ReparseBuffer() error: %v", err)
	}
	if reparsed.Tag != "root" {
		t.Errorf("ReparseBuffer() root tag = %q, want %q", reparsed.Tag, "root")
	}

	again, err := CanonicalBytes(reparsed, false, nil, nil)
	if err != nil {
		t.Fatalf("CanonicalBytes() after reparse error: %v", err)
	}
	if !bytes.Equal(canonical, again) {
		t.Errorf("reparse round trip changed canonical bytes:\nbefore: %s\nafter:  %s", canonical, again)
	}
}

func TestReparseBuffer_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"malformed", []byte(`<unclosed`)},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReparseBuffer(tt.data); err == nil {
				t.Error("ReparseBuffer() should fail")
			}
		})
	}
}

func TestNamespacesInScope(t *testing.T) {
	root := parseElement(t, `<root xmlns:a="urn:outer-a" xmlns:b="urn:b"><mid xmlns:a="urn:inner-a"><leaf/></mid></root>`)
	leaf := root.FindElement("./mid/leaf")
	if leaf == nil {
		t.Fatal("fixture leaf not found")
	}

	bindings := namespacesInScope(leaf)
	if got := bindings["a"]; got != "urn:inner-a" {
		t.Errorf("inner declaration should shadow outer: a = %q, want %q", got, "urn:inner-a")
	}
	if got := bindings["b"]; got != "urn:b" {
		t.Errorf("outer declaration not visible: b = %q, want %q", got, "urn:b")
	}
}
