// Package dsig implements the SignedInfo/Reference protocol of XML digital
// signatures attached to security tokens: exclusive canonicalization of a
// buffered XML subtree, digest computation and verification, and the
// structural invariants that defend against signature-wrapping attacks.
//
// The canonicalization algorithm itself and the hash primitives are consumed
// as external capabilities (goxmldsig canonicalizers, crypto hashes); this
// package orchestrates them and enforces the invariants.
package dsig

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"hash"

	"github.com/rymeskar/identitymodel"
)

// XML DSig namespace and element/attribute names.
const (
	Namespace = "http://www.w3.org/2000/09/xmldsig#"

	SignedInfoTag             = "SignedInfo"
	CanonicalizationMethodTag = "CanonicalizationMethod"
	SignatureMethodTag        = "SignatureMethod"
	ReferenceTag              = "Reference"
	DigestMethodTag           = "DigestMethod"
	DigestValueTag            = "DigestValue"
	InclusiveNamespacesTag    = "InclusiveNamespaces"

	AlgorithmAttr  = "Algorithm"
	URIAttr        = "URI"
	IDAttr         = "Id"
	PrefixListAttr = "PrefixList"
)

// Supported canonicalization algorithm URIs. Any other value is rejected at
// assignment time, not deferred to use time.
const (
	ExclusiveC14N             = "http://www.w3.org/2001/10/xml-exc-c14n#"
	ExclusiveC14NWithComments = "http://www.w3.org/2001/10/xml-exc-c14n#WithComments"

	// EnvelopedSignature is the transform URI emitted alongside exclusive
	// canonicalization in enveloped signatures.
	EnvelopedSignature = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// digestAlgorithms maps digest method URIs to crypto hashes.
var digestAlgorithms = map[string]crypto.Hash{
	"http://www.w3.org/2000/09/xmldsig#sha1":        crypto.SHA1,
	"http://www.w3.org/2001/04/xmlenc#sha256":       crypto.SHA256,
	"http://www.w3.org/2001/04/xmldsig-more#sha384": crypto.SHA384,
	"http://www.w3.org/2001/04/xmlenc#sha512":       crypto.SHA512,
}

// signatureAlgorithmNames maps XML DSig signature algorithm URIs to
// human-readable names for logging. Unknown URIs are passed through.
var signatureAlgorithmNames = map[string]string{
	"http://www.w3.org/2000/09/xmldsig#rsa-sha1":          "RSA-SHA1",
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha256":   "RSA-SHA256",
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha384":   "RSA-SHA384",
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha512":   "RSA-SHA512",
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256": "ECDSA-SHA256",
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha384": "ECDSA-SHA384",
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha512": "ECDSA-SHA512",
}

// SignatureAlgorithmName converts a signature algorithm URI to a
// human-readable name. Returns the URI unchanged if not recognized.
func SignatureAlgorithmName(uri string) string {
	if name, ok := signatureAlgorithmNames[uri]; ok {
		return name
	}
	return uri
}

// IsSupportedCanonicalizationMethod reports whether uri is one of the two
// supported exclusive-C14N algorithm URIs.
func IsSupportedCanonicalizationMethod(uri string) bool {
	return uri == ExclusiveC14N || uri == ExclusiveC14NWithComments
}

// NewDigest returns an incremental hash accumulator for the given digest
// method URI, or an unsupported-algorithm error.
func NewDigest(uri string) (hash.Hash, error) {
	h, ok := digestAlgorithms[uri]
	if !ok || !h.Available() {
		return nil, identitymodel.UnsupportedAlgorithmError("digest", uri)
	}
	return h.New(), nil
}
