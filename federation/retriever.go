package federation

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/crewjam/saml"
	"go.uber.org/zap"

	"github.com/rymeskar/identitymodel"
	"github.com/rymeskar/identitymodel/configuration"
)

// rawRoleDescriptors is used to parse WS-Federation RoleDescriptor entries
// that crewjam/saml does not expose. Element names are matched by local name
// so prefixed federation metadata parses the same as unprefixed.
type rawRoleDescriptors struct {
	EntityID        string `xml:"entityID,attr"`
	RoleDescriptors []struct {
		KeyDescriptors []struct {
			Use          string   `xml:"use,attr"`
			Certificates []string `xml:"KeyInfo>X509Data>X509Certificate"`
		} `xml:"KeyDescriptor"`
		PassiveRequestorEndpoints []string `xml:"PassiveRequestorEndpoint>EndpointReference>Address"`
	} `xml:"RoleDescriptor"`
}

// MetadataRetriever parses a fetched federation metadata document into a
// Configuration. It understands SAML IDPSSODescriptor metadata and
// WS-Federation RoleDescriptor metadata.
type MetadataRetriever struct {
	logger *zap.Logger
}

// NewMetadataRetriever creates a metadata retriever.
func NewMetadataRetriever() *MetadataRetriever {
	return &MetadataRetriever{}
}

// NewMetadataRetrieverWithLogger creates a metadata retriever that logs what
// it extracts.
func NewMetadataRetrieverWithLogger(logger *zap.Logger) *MetadataRetriever {
	return &MetadataRetriever{logger: logger}
}

// Retrieve fetches the metadata document at address and extracts the trust
// configuration from it.
func (r *MetadataRetriever) Retrieve(ctx context.Context, address string, docs configuration.DocumentRetriever) (*Configuration, error) {
	if docs == nil {
		return nil, identitymodel.StructuralError("document retriever must not be nil")
	}
	data, err := docs.GetDocument(ctx, address)
	if err != nil {
		return nil, err
	}

	cfg, err := ParseMetadata(data)
	if err != nil {
		return nil, identitymodel.RetrievalError(address, err)
	}

	if r.logger != nil {
		r.logger.Info("federation metadata parsed",
			zap.String("address", address),
			zap.String("issuer", cfg.Issuer),
			zap.Int("signing_certificates", len(cfg.SigningCertificates)),
		)
	}
	return cfg, nil
}

// ParseMetadata extracts a Configuration from a metadata document.
// The document must declare an entity ID and at least one signing
// certificate; trust configuration without keys is useless and treated as an
// error rather than an empty success.
func ParseMetadata(data []byte) (*Configuration, error) {
	var ed saml.EntityDescriptor
	if err := xml.Unmarshal(data, &ed); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if ed.EntityID == "" {
		return nil, fmt.Errorf("metadata is missing its entityID attribute")
	}

	cfg := &Configuration{Issuer: ed.EntityID}

	for _, idp := range ed.IDPSSODescriptors {
		for _, kd := range idp.KeyDescriptors {
			if kd.Use != "signing" && kd.Use != "" {
				continue
			}
			for _, raw := range kd.KeyInfo.X509Data.X509Certificates {
				cert, err := parseCertificate(raw.Data)
				if err != nil {
					return nil, fmt.Errorf("parse signing certificate: %w", err)
				}
				cfg.SigningCertificates = append(cfg.SigningCertificates, cert)
			}
		}
		for _, sso := range idp.SingleSignOnServices {
			if sso.Binding == saml.HTTPRedirectBinding && cfg.PassiveTokenEndpoint == "" {
				cfg.PassiveTokenEndpoint = sso.Location
			}
			if sso.Binding == saml.HTTPPostBinding && cfg.PassiveTokenEndpoint == "" {
				cfg.PassiveTokenEndpoint = sso.Location
			}
		}
	}

	// WS-Federation RoleDescriptor metadata carries its keys and endpoints
	// outside the structures crewjam/saml models, so parse those raw.
	var roles rawRoleDescriptors
	if err := xml.Unmarshal(data, &roles); err == nil {
		for _, role := range roles.RoleDescriptors {
			for _, kd := range role.KeyDescriptors {
				if kd.Use != "signing" && kd.Use != "" {
					continue
				}
				for _, raw := range kd.Certificates {
					cert, err := parseCertificate(raw)
					if err != nil {
						return nil, fmt.Errorf("parse signing certificate: %w", err)
					}
					cfg.SigningCertificates = append(cfg.SigningCertificates, cert)
				}
			}
			for _, endpoint := range role.PassiveRequestorEndpoints {
				if cfg.PassiveTokenEndpoint == "" {
					cfg.PassiveTokenEndpoint = strings.TrimSpace(endpoint)
				}
			}
		}
	}

	if len(cfg.SigningCertificates) == 0 {
		return nil, fmt.Errorf("metadata for %q declares no signing certificates", cfg.Issuer)
	}
	return cfg, nil
}

// parseCertificate decodes a base64 DER certificate as embedded in metadata
// X509Certificate elements, tolerating whitespace line wrapping.
func parseCertificate(raw string) (*x509.Certificate, error) {
	compact := strings.Join(strings.Fields(raw), "")
	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return x509.ParseCertificate(der)
}

// Ensure MetadataRetriever implements the retrieval strategy
var _ configuration.Retriever[*Configuration] = (*MetadataRetriever)(nil)
