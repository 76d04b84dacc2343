package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
)

// Environment variables read by ConfigFromEnv.
const (
	EndpointEnvKey   = "APPWRITE_ENDPOINT"
	ProjectEnvKey    = "APPWRITE_PROJECT_ID"
	APIKeyEnvKey     = "APPWRITE_API_KEY"
	JWTEnvKey        = "APPWRITE_JWT"
	LocaleEnvKey     = "APPWRITE_LOCALE"
	SelfSignedEnvKey = "APPWRITE_SELF_SIGNED"
	RetryMaxEnvKey   = "APPWRITE_RETRY_MAX"
)

// Secret is a string that is redacted when printed.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}

// Config ...
type Config struct {
	// Endpoint is the API root, like https://cloud.appwrite.io/v1
	Endpoint string
	Project  string
	Key      Secret
	JWT      Secret
	Locale   string
	// SelfSigned disables TLS certificate verification.
	SelfSigned bool
	// RetryMax is the number of transport level retries of a GetFile like request.
	// 0 keeps the default of the retrying HTTP client, a negative value disables retries.
	// Chunk requests are never retried here.
	RetryMax int
	// Headers are sent with every request.
	Headers map[string]string
}

// ConfigFromEnv reads the client configuration from the environment.
func ConfigFromEnv(envRepo env.Repository) (Config, error) {
	cfg := Config{
		Endpoint: strings.TrimSpace(envRepo.Get(EndpointEnvKey)),
		Project:  strings.TrimSpace(envRepo.Get(ProjectEnvKey)),
		Key:      Secret(envRepo.Get(APIKeyEnvKey)),
		JWT:      Secret(envRepo.Get(JWTEnvKey)),
		Locale:   envRepo.Get(LocaleEnvKey),
	}

	if cfg.Endpoint == "" {
		return Config{}, fmt.Errorf("%s is not set", EndpointEnvKey)
	}
	if cfg.Project == "" {
		return Config{}, fmt.Errorf("%s is not set", ProjectEnvKey)
	}

	if v := envRepo.Get(SelfSignedEnvKey); v != "" {
		selfSigned, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", SelfSignedEnvKey, err)
		}
		cfg.SelfSigned = selfSigned
	}

	if v := envRepo.Get(RetryMaxEnvKey); v != "" {
		retryMax, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", RetryMaxEnvKey, err)
		}
		cfg.RetryMax = retryMax
	}

	return cfg, nil
}
