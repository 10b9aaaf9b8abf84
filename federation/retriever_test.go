//go:build unit

package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/rymeskar/identitymodel/configuration"
)

// testCertificate generates a self-signed certificate and returns it with its
// base64 DER encoding as embedded in metadata.
func testCertificate(t *testing.T) (*x509.Certificate, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sts.example.org"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	return cert, base64.StdEncoding.EncodeToString(der)
}

func samlMetadata(cert string) []byte {
	return []byte(fmt.Sprintf(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://sts.example.org">
  <IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <KeyDescriptor use="signing">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">
        <X509Data><X509Certificate>%s</X509Certificate></X509Data>
      </KeyInfo>
    </KeyDescriptor>
    <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://sts.example.org/sso"/>
  </IDPSSODescriptor>
</EntityDescriptor>`, cert))
}

func wsfedMetadata(cert string) []byte {
	return []byte(fmt.Sprintf(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://sts.example.org/adfs">
  <RoleDescriptor xmlns:fed="http://docs.oasis-open.org/wsfed/federation/200706" xsi:type="fed:SecurityTokenServiceType" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" protocolSupportEnumeration="http://docs.oasis-open.org/wsfed/federation/200706">
    <KeyDescriptor use="signing">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">
        <X509Data><X509Certificate>%s</X509Certificate></X509Data>
      </KeyInfo>
    </KeyDescriptor>
    <fed:PassiveRequestorEndpoint>
      <EndpointReference xmlns="http://www.w3.org/2005/08/addressing">
        <Address>https://sts.example.org/adfs/ls/</Address>
      </EndpointReference>
    </fed:PassiveRequestorEndpoint>
  </RoleDescriptor>
</EntityDescriptor>`, cert))
}

func TestParseMetadata_SAML(t *testing.T) {
	cert, encoded := testCertificate(t)

	cfg, err := ParseMetadata(samlMetadata(encoded))
	if err != nil {
		t.Fatalf("ParseMetadata() error: %v", err)
	}
	if cfg.Issuer != "https://sts.example.org" {
		t.Errorf("Issuer = %q, want https://sts.example.org", cfg.Issuer)
	}
	if cfg.PassiveTokenEndpoint != "https://sts.example.org/sso" {
		t.Errorf("PassiveTokenEndpoint = %q, want the redirect SSO location", cfg.PassiveTokenEndpoint)
	}
	if len(cfg.SigningCertificates) != 1 {
		t.Fatalf("got %d signing certificates, want 1", len(cfg.SigningCertificates))
	}
	if !cfg.SigningCertificates[0].Equal(cert) {
		t.Error("parsed certificate does not match the embedded one")
	}
	if len(cfg.SigningKeys()) != 1 {
		t.Errorf("SigningKeys() returned %d keys, want 1", len(cfg.SigningKeys()))
	}
}

func TestParseMetadata_WSFederation(t *testing.T) {
	cert, encoded := testCertificate(t)

	cfg, err := ParseMetadata(wsfedMetadata(encoded))
	if err != nil {
		t.Fatalf("ParseMetadata() error: %v", err)
	}
	if cfg.Issuer != "https://sts.example.org/adfs" {
		t.Errorf("Issuer = %q, want https://sts.example.org/adfs", cfg.Issuer)
	}
	if cfg.PassiveTokenEndpoint != "https://sts.example.org/adfs/ls/" {
		t.Errorf("PassiveTokenEndpoint = %q, want the passive requestor endpoint", cfg.PassiveTokenEndpoint)
	}
	if len(cfg.SigningCertificates) != 1 {
		t.Fatalf("got %d signing certificates, want 1", len(cfg.SigningCertificates))
	}
	if !cfg.SigningCertificates[0].Equal(cert) {
		t.Error("parsed certificate does not match the embedded one")
	}
}

func TestParseMetadata_Invalid(t *testing.T) {
	_, encoded := testCertificate(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"not xml", []byte("{}")},
		{
			"missing entityID",
			[]byte(fmt.Sprintf(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata"><IDPSSODescriptor><KeyDescriptor use="signing"><KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><X509Data><X509Certificate>%s</X509Certificate></X509Data></KeyInfo></KeyDescriptor></IDPSSODescriptor></EntityDescriptor>`, encoded)),
		},
		{
			"no signing certificates",
			[]byte(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://sts.example.org"><IDPSSODescriptor/></EntityDescriptor>`),
		},
		{
			"garbage certificate",
			[]byte(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://sts.example.org"><IDPSSODescriptor><KeyDescriptor use="signing"><KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><X509Data><X509Certificate>!!not-base64!!</X509Certificate></X509Data></KeyInfo></KeyDescriptor></IDPSSODescriptor></EntityDescriptor>`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMetadata(tt.data); err == nil {
				t.Error("ParseMetadata() should fail")
			}
		})
	}
}

func TestParseMetadata_SkipsEncryptionKeys(t *testing.T) {
	_, signing := testCertificate(t)
	_, encryption := testCertificate(t)

	data := []byte(fmt.Sprintf(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://sts.example.org">
  <IDPSSODescriptor>
    <KeyDescriptor use="encryption">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><X509Data><X509Certificate>%s</X509Certificate></X509Data></KeyInfo>
    </KeyDescriptor>
    <KeyDescriptor use="signing">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#"><X509Data><X509Certificate>%s</X509Certificate></X509Data></KeyInfo>
    </KeyDescriptor>
  </IDPSSODescriptor>
</EntityDescriptor>`, encryption, signing))

	cfg, err := ParseMetadata(data)
	if err != nil {
		t.Fatalf("ParseMetadata() error: %v", err)
	}
	if len(cfg.SigningCertificates) != 1 {
		t.Errorf("got %d signing certificates, want only the use=signing one", len(cfg.SigningCertificates))
	}
}

func TestMetadataRetriever_Retrieve(t *testing.T) {
	_, encoded := testCertificate(t)
	docs := configuration.StaticDocumentRetriever{Document: samlMetadata(encoded)}

	cfg, err := NewMetadataRetriever().Retrieve(context.Background(), "https://sts.example.org/metadata", docs)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if cfg.Issuer != "https://sts.example.org" {
		t.Errorf("Issuer = %q, want https://sts.example.org", cfg.Issuer)
	}
}

func TestMetadataRetriever_Retrieve_NilDocuments(t *testing.T) {
	if _, err := NewMetadataRetriever().Retrieve(context.Background(), "https://sts.example.org/metadata", nil); err == nil {
		t.Error("Retrieve() should fail without a document retriever")
	}
}
