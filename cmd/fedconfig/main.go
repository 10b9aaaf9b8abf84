// Command fedconfig fetches a federation metadata document, extracts the
// trust configuration, and prints it. Useful as an operational smoke check of
// a metadata endpoint.
// Usage: go run ./cmd/fedconfig -metadata https://login.example.org/federationmetadata.xml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/rymeskar/identitymodel/configuration"
	"github.com/rymeskar/identitymodel/federation"
)

func main() {
	metadataAddress := flag.String("metadata", "", "Federation metadata address (required)")
	insecure := flag.Bool("insecure", false, "Allow non-HTTPS metadata addresses")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall fetch timeout")
	settingsPath := flag.String("settings", "", "Optional YAML refresh settings file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *metadataAddress == "" {
		log.Fatal("missing required -metadata flag")
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var settings *configuration.RefreshSettings
	if *settingsPath != "" {
		settings, err = configuration.LoadRefreshSettings(*settingsPath)
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
	}

	httpOpts := []configuration.HTTPOption{configuration.WithHTTPLogger(logger)}
	if settings != nil {
		httpOpts = append(httpOpts, settings.HTTPOptions()...)
	}
	if *insecure {
		// The flag always wins over the settings file.
		httpOpts = append(httpOpts, configuration.WithRequireHTTPS(false))
	}

	opts := []configuration.Option{
		configuration.WithLogger(logger),
		configuration.WithDocumentRetriever(configuration.NewHTTPDocumentRetriever(httpOpts...)),
	}
	if settings != nil {
		opts = append(opts, settings.Options()...)
	}

	manager, err := configuration.NewManager[*federation.Configuration](
		*metadataAddress,
		federation.NewMetadataRetrieverWithLogger(logger),
		opts...,
	)
	if err != nil {
		log.Fatalf("Failed to create configuration manager: %v", err)
	}
	trust := configuration.NewLKGManager(manager)
	trust.ApplySettings(settings)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg, err := trust.GetConfiguration(ctx)
	if err != nil {
		log.Fatalf("Failed to retrieve configuration: %v", err)
	}

	fmt.Printf("Issuer:                 %s\n", cfg.Issuer)
	if cfg.PassiveTokenEndpoint != "" {
		fmt.Printf("Passive token endpoint: %s\n", cfg.PassiveTokenEndpoint)
	}
	fmt.Printf("Signing certificates:   %d\n", len(cfg.SigningCertificates))
	for i, cert := range cfg.SigningCertificates {
		fmt.Printf("  [%d] subject=%s expires=%s\n",
			i, cert.Subject.String(), cert.NotAfter.Format(time.RFC3339))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
