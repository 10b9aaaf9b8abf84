// Package tokens validates security tokens against the currently trusted
// signing keys served by the configuration layer.
package tokens

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/rymeskar/identitymodel"
	"github.com/rymeskar/identitymodel/federation"
	"github.com/rymeskar/identitymodel/metrics"
)

// ConfigurationSource supplies the trust configuration a validator verifies
// against, plus the refresh and last-known-good controls it consults on
// failure. *configuration.LKGManager[*federation.Configuration] satisfies it.
type ConfigurationSource interface {
	GetConfiguration(ctx context.Context) (*federation.Configuration, error)
	RequestRefresh()
	UseCurrentConfig() bool
	UseLKG() bool
	LKGConfiguration() (*federation.Configuration, bool)
}

var defaultValidMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// Validator validates JWT signatures against the signing keys of a cached
// trust configuration.
type Validator struct {
	configs         ConfigurationSource
	logger          *zap.Logger
	metricsRecorder metrics.Recorder
	validMethods    []string
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithLogger sets the logger for validation events.
func WithLogger(logger *zap.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logger }
}

// WithMetricsRecorder sets the metrics recorder for validation outcomes.
func WithMetricsRecorder(recorder metrics.Recorder) ValidatorOption {
	return func(v *Validator) { v.metricsRecorder = recorder }
}

// WithValidMethods restricts the accepted JWT signing algorithm names.
func WithValidMethods(methods []string) ValidatorOption {
	return func(v *Validator) { v.validMethods = methods }
}

// NewValidator creates a validator backed by the given configuration source.
func NewValidator(configs ConfigurationSource, opts ...ValidatorOption) (*Validator, error) {
	if configs == nil {
		return nil, identitymodel.StructuralError("configuration source must not be nil")
	}
	v := &Validator{
		configs:      configs,
		validMethods: defaultValidMethods,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate checks the token's signature and standard claims against the
// current trust configuration.
//
// On failure it requests an early configuration refresh (rate-limited by the
// manager). When the source's UseCurrentConfig flag is set it then retries
// against the refreshed configuration, which covers the issuer-rolled-keys
// case without waiting for the next automatic refresh. When the UseLKG flag
// is set and a valid last-known-good configuration exists, that is tried
// last. It never promotes a configuration itself: proving a configuration
// trustworthy and calling SetLKG is the caller's decision.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*jwt.Token, error) {
	if tokenString == "" {
		return nil, identitymodel.StructuralError("token must not be empty")
	}

	cfg, err := v.configs.GetConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	token, parseErr := v.parse(tokenString, cfg)
	if parseErr == nil {
		v.recordOutcome(true)
		return token, nil
	}

	// A validation failure against fresh keys may mean the issuer has rolled
	// keys since the last fetch; schedule an early refresh.
	v.configs.RequestRefresh()

	if v.configs.UseCurrentConfig() {
		// The requested refresh may already have produced new keys; retry once
		// against them. A rate-limited no-op request hands back the same
		// configuration, which there is no point re-parsing.
		if refreshed, refreshErr := v.configs.GetConfiguration(ctx); refreshErr == nil && refreshed != cfg {
			if token, retryErr := v.parse(tokenString, refreshed); retryErr == nil {
				if v.logger != nil {
					v.logger.Info("token validated against refreshed configuration",
						zap.String("issuer", refreshed.Issuer))
				}
				v.recordOutcome(true)
				return token, nil
			}
		}
	}

	if v.configs.UseLKG() {
		if lkg, ok := v.configs.LKGConfiguration(); ok {
			if token, lkgErr := v.parse(tokenString, lkg); lkgErr == nil {
				if v.logger != nil {
					v.logger.Info("token validated against last-known-good configuration",
						zap.String("issuer", lkg.Issuer))
				}
				v.recordOutcome(true)
				return token, nil
			}
		}
	}

	if v.logger != nil {
		v.logger.Warn("token validation failed",
			zap.String("issuer", cfg.Issuer),
			zap.Error(parseErr),
		)
	}
	v.recordOutcome(false)
	return nil, identitymodel.VerificationError("token signature validation failed", parseErr)
}

// parse runs one JWT parse attempt against the signing keys of cfg.
func (v *Validator) parse(tokenString string, cfg *federation.Configuration) (*jwt.Token, error) {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods(v.validMethods)}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)

	return parser.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		keys := cfg.SigningKeys()
		if len(keys) == 0 {
			return nil, identitymodel.VerificationError("trust configuration has no signing keys", nil)
		}
		set := jwt.VerificationKeySet{Keys: make([]jwt.VerificationKey, 0, len(keys))}
		for _, key := range keys {
			set.Keys = append(set.Keys, key)
		}
		return set, nil
	})
}

func (v *Validator) recordOutcome(success bool) {
	if v.metricsRecorder != nil {
		v.metricsRecorder.RecordSignatureVerification(success)
	}
}
