// Package federation turns fetched federation metadata documents into typed
// trust configurations: the issuer identity, token endpoints, and the signing
// certificates tokens must verify against.
package federation

import (
	"crypto"
	"crypto/x509"
)

// Configuration is the trust configuration extracted from a federation
// metadata document.
type Configuration struct {
	// Issuer is the entity ID of the token issuer.
	Issuer string

	// PassiveTokenEndpoint is where browser-based token requests are sent.
	PassiveTokenEndpoint string

	// ActiveTokenEndpoint is the backchannel token endpoint, when published.
	ActiveTokenEndpoint string

	// SigningCertificates are the issuer's declared signing certificates.
	SigningCertificates []*x509.Certificate
}

// SigningKeys returns the public keys of the signing certificates.
func (c *Configuration) SigningKeys() []crypto.PublicKey {
	keys := make([]crypto.PublicKey, 0, len(c.SigningCertificates))
	for _, cert := range c.SigningCertificates {
		keys = append(keys, cert.PublicKey)
	}
	return keys
}
