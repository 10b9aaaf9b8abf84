package dsig

import (
	"hash"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/rymeskar/identitymodel"
)

// SignedInfo owns exactly one Reference, the declared canonicalization method
// and signature algorithm, and the verbatim buffered form of the SignedInfo
// subtree, which is the data that is itself signed.
//
// A SignedInfo is used single-threaded for the duration of one parse-verify
// or build-sign sequence. The captured subtree is read, never mutated, after
// ReadFrom.
type SignedInfo struct {
	id                     string
	canonicalizationMethod string
	signatureMethod        string
	reference              *Reference

	// root is the subtree captured verbatim at ReadFrom; raw is its buffered
	// byte form, kept so the subtree can be re-parsed without re-reading the
	// wire. precanonicalized is the eager fast-path canonical form, valid
	// only when no inclusive prefixes are declared.
	root             *etree.Element
	raw              []byte
	precanonicalized []byte

	inclusivePrefixes   []string
	inclusiveNamespaces map[string]string

	logger *zap.Logger
}

// NewSignedInfo creates an empty SignedInfo with the default exclusive-C14N
// canonicalization method.
func NewSignedInfo() *SignedInfo {
	return &SignedInfo{canonicalizationMethod: ExclusiveC14N}
}

// NewSignedInfoWithLogger creates a SignedInfo that logs parse and
// verification events.
func NewSignedInfoWithLogger(logger *zap.Logger) *SignedInfo {
	si := NewSignedInfo()
	si.logger = logger
	return si
}

// ID returns the optional Id attribute.
func (si *SignedInfo) ID() string { return si.id }

// SetID sets the optional Id attribute.
func (si *SignedInfo) SetID(id string) { si.id = id }

// CanonicalizationMethod returns the declared canonicalization algorithm URI.
func (si *SignedInfo) CanonicalizationMethod() string { return si.canonicalizationMethod }

// SetCanonicalizationMethod sets the canonicalization algorithm. Only the two
// exclusive-C14N URIs are accepted; anything else is rejected here, at
// assignment time, not deferred to use time.
func (si *SignedInfo) SetCanonicalizationMethod(uri string) error {
	if !IsSupportedCanonicalizationMethod(uri) {
		return identitymodel.UnsupportedAlgorithmError("canonicalization", uri)
	}
	si.canonicalizationMethod = uri
	return nil
}

// SignatureMethod returns the declared signature algorithm URI.
func (si *SignedInfo) SignatureMethod() string { return si.signatureMethod }

// SetSignatureMethod sets the signature algorithm URI for the signing path.
func (si *SignedInfo) SetSignatureMethod(uri string) { si.signatureMethod = uri }

// Reference returns the single owned Reference, nil before parse or build.
func (si *SignedInfo) Reference() *Reference { return si.reference }

// SetReference assigns the single mandatory Reference for the signing path.
func (si *SignedInfo) SetReference(r *Reference) error {
	if r == nil {
		return identitymodel.StructuralError("reference must not be nil")
	}
	si.reference = r
	return nil
}

// InclusivePrefixes returns the namespace prefixes declared by the
// canonicalization method's InclusiveNamespaces PrefixList.
func (si *SignedInfo) InclusivePrefixes() []string {
	out := make([]string, len(si.inclusivePrefixes))
	copy(out, si.inclusivePrefixes)
	return out
}

// Raw returns a copy of the buffered byte form of the captured subtree. The
// buffer is a reserialization of the captured tree, not the original wire
// bytes: it exists to back re-parsing, and must not be hashed directly.
// Digests are computed over the canonical form only.
func (si *SignedInfo) Raw() []byte {
	out := make([]byte, len(si.raw))
	copy(out, si.raw)
	return out
}

// ReadFrom populates the SignedInfo from a parsed SignedInfo element,
// capturing the subtree before any interpretation. A second Reference element
// is a hard structural error: ambiguity between the signed reference and the
// content actually processed is how signature-wrapping attacks work.
func (si *SignedInfo) ReadFrom(el *etree.Element) error {
	if el == nil {
		return identitymodel.StructuralError("SignedInfo element is nil")
	}
	if el.Tag != SignedInfoTag {
		return identitymodel.StructuralError("expected SignedInfo element, found " + el.Tag)
	}

	// Capture the subtree before reading any of it. The captured tree, not a
	// round-tripped reserialization, backs all later canonicalization.
	si.root = el.Copy()
	rawDoc := etree.NewDocument()
	rawDoc.SetRoot(si.root.Copy())
	raw, err := rawDoc.WriteToBytes()
	if err != nil {
		return identitymodel.StructuralError("failed to buffer SignedInfo subtree: " + err.Error())
	}
	si.raw = raw

	si.id = el.SelectAttrValue(IDAttr, "")

	var sawCanonicalizationMethod, sawSignatureMethod bool
	for _, child := range el.ChildElements() {
		switch child.Tag {
		case CanonicalizationMethodTag:
			if sawCanonicalizationMethod {
				return identitymodel.StructuralError("duplicate CanonicalizationMethod element")
			}
			sawCanonicalizationMethod = true
			if err := si.SetCanonicalizationMethod(child.SelectAttrValue(AlgorithmAttr, "")); err != nil {
				return err
			}
			if inclusive := childElement(child, InclusiveNamespacesTag); inclusive != nil {
				si.inclusivePrefixes = strings.Fields(inclusive.SelectAttrValue(PrefixListAttr, ""))
				// Prefix bindings must be resolved against the original
				// element, still attached to its ancestors.
				si.inclusiveNamespaces = namespacesInScope(el)
			}
		case SignatureMethodTag:
			if sawSignatureMethod {
				return identitymodel.StructuralError("duplicate SignatureMethod element")
			}
			sawSignatureMethod = true
			si.signatureMethod = child.SelectAttrValue(AlgorithmAttr, "")
			if si.signatureMethod == "" {
				return identitymodel.StructuralError("SignatureMethod is missing its Algorithm attribute")
			}
		case ReferenceTag:
			if si.reference != nil {
				return identitymodel.StructuralError("SignedInfo contains more than one Reference")
			}
			ref := &Reference{}
			if err := ref.readFrom(child); err != nil {
				return err
			}
			si.reference = ref
		}
	}

	if !sawCanonicalizationMethod {
		return identitymodel.StructuralError("SignedInfo is missing CanonicalizationMethod")
	}
	if !sawSignatureMethod {
		return identitymodel.StructuralError("SignedInfo is missing SignatureMethod")
	}
	if si.reference == nil {
		return identitymodel.StructuralError("SignedInfo is missing its mandatory Reference")
	}

	// Eager fast path: canonicalize once now. If the canonicalization method
	// declares inclusive prefixes this result was computed without the extra
	// namespace declarations the final digest must include, so discard it and
	// re-canonicalize from the captured subtree at digest time.
	pre, err := CanonicalBytes(si.root, si.withComments(), nil, nil)
	if err != nil {
		return err
	}
	si.precanonicalized = pre
	if len(si.inclusivePrefixes) > 0 {
		si.precanonicalized = nil
	}

	if si.logger != nil {
		si.logger.Debug("signed info parsed",
			zap.String("id", si.id),
			zap.String("canonicalization_method", si.canonicalizationMethod),
			zap.String("signature_method", SignatureAlgorithmName(si.signatureMethod)),
			zap.Strings("inclusive_prefixes", si.inclusivePrefixes),
		)
	}
	return nil
}

// CanonicalBytes returns the canonical byte form of the SignedInfo subtree,
// from the fast-path cache when present, otherwise by canonicalizing the
// captured subtree with the inclusive-prefix context. The canonicalization
// method is validated again here: reaching use time with an unsupported
// method must still fail closed.
func (si *SignedInfo) CanonicalBytes() ([]byte, error) {
	if !IsSupportedCanonicalizationMethod(si.canonicalizationMethod) {
		return nil, identitymodel.UnsupportedAlgorithmError("canonicalization", si.canonicalizationMethod)
	}
	if si.precanonicalized != nil {
		return si.precanonicalized, nil
	}

	root := si.root
	if root == nil {
		if len(si.raw) == 0 {
			return nil, identitymodel.StructuralError("SignedInfo has no captured subtree to canonicalize")
		}
		reparsed, err := ReparseBuffer(si.raw)
		if err != nil {
			return nil, err
		}
		root = reparsed
	}
	return CanonicalBytes(root, si.withComments(), si.inclusivePrefixes, si.inclusiveNamespaces)
}

// ComputeHash feeds the canonical bytes of the SignedInfo subtree into the
// supplied hash accumulator and returns the finalized digest. This hash
// covers the SignedInfo element itself, the signed envelope, separate from
// the Reference's digest over the referenced payload.
func (si *SignedInfo) ComputeHash(h hash.Hash) ([]byte, error) {
	if h == nil {
		return nil, identitymodel.StructuralError("hash accumulator must not be nil")
	}
	canonical, err := si.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	if _, err := h.Write(canonical); err != nil {
		return nil, identitymodel.VerificationError("failed to hash canonical SignedInfo", err)
	}
	return h.Sum(nil), nil
}

// VerifyReference verifies the owned Reference's digest against the
// canonicalized referenced content.
func (si *SignedInfo) VerifyReference(content *etree.Element) error {
	if si.reference == nil {
		return identitymodel.StructuralError("SignedInfo has no Reference to verify")
	}
	if err := si.reference.VerifyDigest(content); err != nil {
		if si.logger != nil {
			si.logger.Warn("reference digest verification failed",
				zap.String("uri", si.reference.URI()),
				zap.Error(err),
			)
		}
		return err
	}
	if si.logger != nil {
		si.logger.Debug("reference digest verified", zap.String("uri", si.reference.URI()))
	}
	return nil
}

// EnsureReferenceVerified fails unless the owned Reference exists and its
// digest comparison has succeeded. A missing or unverified reference is a
// hard failure; signature verification must never proceed past it.
func (si *SignedInfo) EnsureReferenceVerified() error {
	if si.reference == nil {
		return identitymodel.VerificationError("SignedInfo has no verified Reference", nil)
	}
	if !si.reference.verified {
		return identitymodel.VerificationError("reference digest has not been verified", nil)
	}
	return nil
}

// WriteTo emits the SignedInfo element: optional Id attribute, then
// CanonicalizationMethod, SignatureMethod, and the Reference, in that fixed
// order. Canonicalization and downstream verification depend on structural
// position, not just content. When parent is nil a detached element carrying
// the dsig namespace is returned.
func (si *SignedInfo) WriteTo(parent *etree.Element) (*etree.Element, error) {
	if si.signatureMethod == "" {
		return nil, identitymodel.StructuralError("SignedInfo has no SignatureMethod to write")
	}
	if si.reference == nil {
		return nil, identitymodel.StructuralError("SignedInfo has no Reference to write")
	}

	var el *etree.Element
	if parent == nil {
		el = etree.NewElement(SignedInfoTag)
		el.CreateAttr("xmlns", Namespace)
	} else {
		el = parent.CreateElement(SignedInfoTag)
	}
	if si.id != "" {
		el.CreateAttr(IDAttr, si.id)
	}

	c14n := el.CreateElement(CanonicalizationMethodTag)
	c14n.CreateAttr(AlgorithmAttr, si.canonicalizationMethod)
	if len(si.inclusivePrefixes) > 0 {
		inclusive := c14n.CreateElement(InclusiveNamespacesTag)
		inclusive.CreateAttr(PrefixListAttr, strings.Join(si.inclusivePrefixes, " "))
	}

	el.CreateElement(SignatureMethodTag).CreateAttr(AlgorithmAttr, si.signatureMethod)
	si.reference.writeTo(el)
	return el, nil
}

func (si *SignedInfo) withComments() bool {
	return si.canonicalizationMethod == ExclusiveC14NWithComments
}
