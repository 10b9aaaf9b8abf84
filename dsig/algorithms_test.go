//go:build unit

package dsig

import (
	"testing"

	"github.com/rymeskar/identitymodel"
)

func TestNewDigest(t *testing.T) {
	supported := []string{
		"http://www.w3.org/2000/09/xmldsig#sha1",
		"http://www.w3.org/2001/04/xmlenc#sha256",
		"http://www.w3.org/2001/04/xmldsig-more#sha384",
		"http://www.w3.org/2001/04/xmlenc#sha512",
	}
	for _, uri := range supported {
		h, err := NewDigest(uri)
		if err != nil {
			t.Errorf("NewDigest(%q) error: %v", uri, err)
			continue
		}
		if h == nil || h.Size() == 0 {
			t.Errorf("NewDigest(%q) returned unusable accumulator", uri)
		}
	}

	_, err := NewDigest("urn:bogus")
	if err == nil {
		t.Fatal("NewDigest() should reject an unknown algorithm")
	}
	if !identitymodel.HasCode(err, identitymodel.ErrCodeUnsupportedAlgorithm) {
		t.Errorf("error = %v, want unsupported_algorithm", err)
	}
}

func TestSignatureAlgorithmName(t *testing.T) {
	if got := SignatureAlgorithmName("http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"); got != "RSA-SHA256" {
		t.Errorf("SignatureAlgorithmName() = %q, want RSA-SHA256", got)
	}
	// Unknown URIs pass through unchanged.
	if got := SignatureAlgorithmName("urn:unknown"); got != "urn:unknown" {
		t.Errorf("SignatureAlgorithmName() = %q, want urn:unknown", got)
	}
}

func TestIsSupportedCanonicalizationMethod(t *testing.T) {
	if !IsSupportedCanonicalizationMethod(ExclusiveC14N) {
		t.Error("exclusive C14N should be supported")
	}
	if !IsSupportedCanonicalizationMethod(ExclusiveC14NWithComments) {
		t.Error("exclusive C14N with comments should be supported")
	}
	if IsSupportedCanonicalizationMethod("http://www.w3.org/TR/2001/REC-xml-c14n-20010315") {
		t.Error("inclusive C14N 1.0 must not be supported")
	}
}
