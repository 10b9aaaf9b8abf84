package dsig

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/rymeskar/identitymodel"
)

// Reference is a pointer plus digest asserting that specific content,
// canonicalized, matches a declared hash. A Reference is owned exclusively by
// its SignedInfo; verified starts false and is set true only after an
// explicit successful digest comparison, never assumed.
type Reference struct {
	uri          string
	digestMethod string
	digestValue  []byte
	verified     bool
}

// NewReference creates a Reference for the signing path.
func NewReference(uri, digestMethod string) *Reference {
	return &Reference{uri: uri, digestMethod: digestMethod}
}

// URI returns the pointer to the signed content (same document).
func (r *Reference) URI() string { return r.uri }

// DigestMethod returns the declared digest algorithm URI.
func (r *Reference) DigestMethod() string { return r.digestMethod }

// DigestValue returns a copy of the declared digest bytes.
func (r *Reference) DigestValue() []byte {
	out := make([]byte, len(r.digestValue))
	copy(out, r.digestValue)
	return out
}

// Verified reports whether an explicit digest comparison has succeeded.
func (r *Reference) Verified() bool { return r.verified }

// ComputeDigest canonicalizes content and returns its digest under the
// declared digest method. It does not mutate the verified flag.
func (r *Reference) ComputeDigest(content *etree.Element) ([]byte, error) {
	h, err := NewDigest(r.digestMethod)
	if err != nil {
		return nil, err
	}
	canonical, err := CanonicalBytes(content, false, nil, nil)
	if err != nil {
		return nil, err
	}
	h.Write(canonical)
	return h.Sum(nil), nil
}

// VerifyDigest computes the digest of the canonicalized referenced content
// and compares it byte-for-byte to the declared digest value. The verified
// flag is set only on an exact match; a mismatch is a verification failure,
// never a warning.
func (r *Reference) VerifyDigest(content *etree.Element) error {
	if len(r.digestValue) == 0 {
		return identitymodel.StructuralError("reference declares no digest value")
	}
	actual, err := r.ComputeDigest(content)
	if err != nil {
		return err
	}
	if !bytes.Equal(actual, r.digestValue) {
		return identitymodel.VerificationError(fmt.Sprintf("reference digest mismatch for URI %q", r.uri), nil)
	}
	r.verified = true
	return nil
}

// readFrom populates the Reference from a parsed Reference element.
func (r *Reference) readFrom(el *etree.Element) error {
	r.uri = el.SelectAttrValue(URIAttr, "")

	digestMethod := childElement(el, DigestMethodTag)
	if digestMethod == nil {
		return identitymodel.StructuralError("Reference is missing DigestMethod")
	}
	r.digestMethod = digestMethod.SelectAttrValue(AlgorithmAttr, "")
	if _, ok := digestAlgorithms[r.digestMethod]; !ok {
		return identitymodel.UnsupportedAlgorithmError("digest", r.digestMethod)
	}

	digestValue := childElement(el, DigestValueTag)
	if digestValue == nil {
		return identitymodel.StructuralError("Reference is missing DigestValue")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(digestValue.Text()))
	if err != nil {
		return identitymodel.StructuralError("Reference DigestValue is not valid base64: " + err.Error())
	}
	r.digestValue = decoded
	r.verified = false
	return nil
}

// writeTo emits the Reference element in fixed order: URI attribute,
// DigestMethod, DigestValue.
func (r *Reference) writeTo(parent *etree.Element) *etree.Element {
	el := parent.CreateElement(ReferenceTag)
	el.CreateAttr(URIAttr, r.uri)
	el.CreateElement(DigestMethodTag).CreateAttr(AlgorithmAttr, r.digestMethod)
	el.CreateElement(DigestValueTag).SetText(base64.StdEncoding.EncodeToString(r.digestValue))
	return el
}

// childElement returns the first child of el whose local name matches tag,
// ignoring namespace prefixes.
func childElement(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}
