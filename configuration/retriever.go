// Package configuration maintains a safe, continuously-refreshed cache of
// external trust configuration. Refresh is driven lazily by caller demand
// under a capacity-1 lock; on retrieval failure a previously cached
// configuration is served stale with an accelerated retry schedule, and a
// separately promoted last-known-good configuration is kept as an explicitly
// gated second safety net.
package configuration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rymeskar/identitymodel"
)

// DocumentRetriever fetches the raw bytes of a metadata document from an
// address. The default implementation performs an outbound HTTP request;
// alternates read from a file or a static string.
type DocumentRetriever interface {
	GetDocument(ctx context.Context, address string) ([]byte, error)
}

// Retriever turns a metadata address and a document retriever into a typed
// trust configuration.
type Retriever[T any] interface {
	Retrieve(ctx context.Context, address string, docs DocumentRetriever) (T, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc[T any] func(ctx context.Context, address string, docs DocumentRetriever) (T, error)

// Retrieve calls f.
func (f RetrieverFunc[T]) Retrieve(ctx context.Context, address string, docs DocumentRetriever) (T, error) {
	return f(ctx, address, docs)
}

const defaultHTTPTimeout = 30 * time.Second

// HTTPDocumentRetriever fetches metadata documents over HTTP(S). HTTPS is
// required unless explicitly disabled.
type HTTPDocumentRetriever struct {
	client       *http.Client
	requireHTTPS bool
	logger       *zap.Logger
}

// HTTPOption configures an HTTPDocumentRetriever.
type HTTPOption func(*HTTPDocumentRetriever)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(r *HTTPDocumentRetriever) { r.client = client }
}

// WithRequireHTTPS controls whether non-HTTPS addresses are rejected.
// Disabling this is intended for tests and closed networks only.
func WithRequireHTTPS(require bool) HTTPOption {
	return func(r *HTTPDocumentRetriever) { r.requireHTTPS = require }
}

// WithHTTPLogger sets the logger for fetch events.
func WithHTTPLogger(logger *zap.Logger) HTTPOption {
	return func(r *HTTPDocumentRetriever) { r.logger = logger }
}

// NewHTTPDocumentRetriever creates the default document retriever.
func NewHTTPDocumentRetriever(opts ...HTTPOption) *HTTPDocumentRetriever {
	r := &HTTPDocumentRetriever{
		client:       &http.Client{Timeout: defaultHTTPTimeout},
		requireHTTPS: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetDocument fetches the document at address.
func (r *HTTPDocumentRetriever) GetDocument(ctx context.Context, address string) ([]byte, error) {
	if address == "" {
		return nil, identitymodel.StructuralError("metadata address must not be empty")
	}
	if r.requireHTTPS && !strings.HasPrefix(strings.ToLower(address), "https://") {
		return nil, identitymodel.RetrievalError(address,
			fmt.Errorf("address must use https (set WithRequireHTTPS(false) to override)"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, identitymodel.RetrievalError(address, fmt.Errorf("create request: %w", err))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, identitymodel.RetrievalError(address, fmt.Errorf("fetch document: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, identitymodel.RetrievalError(address, fmt.Errorf("fetch document: HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, identitymodel.RetrievalError(address, fmt.Errorf("read response: %w", err))
	}

	if r.logger != nil {
		r.logger.Debug("metadata document fetched",
			zap.String("address", address),
			zap.Int("bytes", len(data)),
		)
	}
	return data, nil
}

// FileDocumentRetriever reads a metadata document from the local filesystem.
// The address is a plain path, optionally prefixed with "file://".
type FileDocumentRetriever struct{}

// GetDocument reads the file at address.
func (FileDocumentRetriever) GetDocument(_ context.Context, address string) ([]byte, error) {
	path := strings.TrimPrefix(address, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, identitymodel.RetrievalError(address, err)
	}
	return data, nil
}

// StaticDocumentRetriever serves a fixed document regardless of address.
// Useful for tests and embedded configuration.
type StaticDocumentRetriever struct {
	Document []byte
}

// GetDocument returns the fixed document.
func (s StaticDocumentRetriever) GetDocument(context.Context, string) ([]byte, error) {
	if len(s.Document) == 0 {
		return nil, identitymodel.RetrievalError("static", fmt.Errorf("no document configured"))
	}
	return s.Document, nil
}

// Ensure retrievers implement DocumentRetriever
var _ DocumentRetriever = (*HTTPDocumentRetriever)(nil)
var _ DocumentRetriever = FileDocumentRetriever{}
var _ DocumentRetriever = StaticDocumentRetriever{}
