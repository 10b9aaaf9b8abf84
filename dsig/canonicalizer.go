package dsig

import (
	"strings"

	"github.com/beevik/etree"
	xmlc14n "github.com/russellhaering/goxmldsig"

	"github.com/rymeskar/identitymodel"
)

// CanonicalBytes produces the deterministic exclusive-C14N byte form of el.
// Identical inputs always yield byte-identical output; the same subtree may
// be canonicalized during parse validation and again when digesting.
//
// When inclusivePrefixes is non-empty, el is canonicalized under a synthetic
// wrapping root that declares each requested prefix, resolved through
// namespaces. Exclusive canonicalization would otherwise drop declarations
// the InclusiveNamespaces PrefixList requires to be preserved. A prefix that
// cannot be resolved is skipped, best effort to preserve declared prefixes.
func CanonicalBytes(el *etree.Element, withComments bool, inclusivePrefixes []string, namespaces map[string]string) ([]byte, error) {
	if el == nil {
		return nil, identitymodel.StructuralError("cannot canonicalize a nil element")
	}

	target := el.Copy()
	if len(inclusivePrefixes) > 0 {
		wrapper := etree.NewElement("c14nContext")
		for _, prefix := range inclusivePrefixes {
			uri, ok := namespaces[prefix]
			if !ok || uri == "" {
				continue
			}
			wrapper.CreateAttr("xmlns:"+prefix, uri)
		}
		wrapper.AddChild(target)
	}

	canonicalizer := canonicalizerFor(withComments, inclusivePrefixes)
	out, err := canonicalizer.Canonicalize(target)
	if err != nil {
		return nil, identitymodel.VerificationError("canonicalization failed", err)
	}
	return out, nil
}

// canonicalizerFor selects the exclusive-C14N canonicalizer matching the
// comment policy and prefix list.
func canonicalizerFor(withComments bool, inclusivePrefixes []string) xmlc14n.Canonicalizer {
	prefixList := strings.Join(inclusivePrefixes, " ")
	if withComments {
		return xmlc14n.MakeC14N10ExclusiveWithCommentsCanonicalizerWithPrefixList(prefixList)
	}
	return xmlc14n.MakeC14N10ExclusiveCanonicalizerWithPrefixList(prefixList)
}

// ReparseBuffer re-parses a previously buffered subtree as a structured
// element. The buffer was already validated against real quotas when it was
// first read, so re-reading it is safe.
func ReparseBuffer(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, identitymodel.StructuralError("buffered XML is not re-parseable: " + err.Error())
	}
	root := doc.Root()
	if root == nil {
		return nil, identitymodel.StructuralError("buffered XML has no root element")
	}
	return root, nil
}

// namespacesInScope collects the prefix to namespace-URI bindings visible at
// el, walking toward the document root. Inner declarations shadow outer ones.
func namespacesInScope(el *etree.Element) map[string]string {
	bindings := make(map[string]string)
	for cur := el; cur != nil; cur = cur.Parent() {
		for _, attr := range cur.Attr {
			if attr.Space != "xmlns" {
				continue
			}
			if _, seen := bindings[attr.Key]; !seen {
				bindings[attr.Key] = attr.Value
			}
		}
	}
	return bindings
}
