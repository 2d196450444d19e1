package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/hannes/gridfinity-cutout/identify"
	"github.com/hannes/gridfinity-cutout/providers"
	"github.com/hannes/gridfinity-cutout/storage"
)

var headerNamePattern = regexp.MustCompile("^[!#$%&'*+.^_`|~0-9A-Za-z-]+$")

func validatePort(port, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}
	if !strings.HasPrefix(port, ":") {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	n, err := strconv.Atoi(port[1:])
	if err != nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, n)
	}
	return nil
}

func validateBaseURL(raw, fieldName string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: must be an http or https URL (current value: %s)", fieldName, raw)
	}
	return nil
}

func validateAdditionalHeaders(headers map[string]string, fieldName string) error {
	for name := range headers {
		if name == "" {
			return fmt.Errorf("%s: header name cannot be empty", fieldName)
		}
		if !headerNamePattern.MatchString(name) {
			return fmt.Errorf("%s: header name '%s' contains invalid characters", fieldName, name)
		}
	}
	return nil
}

func validatePositive(n int, fieldName string) error {
	if n <= 0 {
		return fmt.Errorf("%s: must be greater than 0 (current value: %d)", fieldName, n)
	}
	return nil
}

func validateProviderConfig(p ProviderConfig, providerName string) error {
	if err := validateBaseURL(p.BaseURL, providerName+".BaseURL"); err != nil {
		return err
	}
	return validateAdditionalHeaders(p.AdditionalHeaders, providerName+".AdditionalHeaders")
}

// ValidateConfig checks every section and reports all problems at once,
// separated by "; ".
func (c *Config) ValidateConfig() error {
	var errs []string
	check := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	check(validatePort(c.Server.Port, "Server.Port"))
	check(validatePositive(c.Files.TTLSeconds, "Files.TTLSeconds"))
	check(validatePositive(c.Files.CleanupIntervalSeconds, "Files.CleanupIntervalSeconds"))
	check(validatePositive(c.Dimensions.CacheTTLHours, "Dimensions.CacheTTLHours"))
	check(validatePositive(c.Generator.MaxSizeMM, "Generator.MaxSizeMM"))
	check(validatePositive(c.Generator.MaxSlots, "Generator.MaxSlots"))
	check(validatePositive(c.Generator.MaxCompartments, "Generator.MaxCompartments"))

	switch c.Database.Driver {
	case storage.DriverMemory, storage.DriverSQLite, storage.DriverPostgres:
	default:
		check(fmt.Errorf("Database.Driver: must be one of memory, sqlite, postgres (current value: %s)", c.Database.Driver))
	}

	if !slices.Contains(identify.Backends(), c.Identify.Backend) {
		check(fmt.Errorf("Identify.Backend: must be one of %s (current value: %s)",
			strings.Join(identify.Backends(), ", "), c.Identify.Backend))
	}
	if c.Identify.Backend == identify.BackendModel {
		if c.Identify.ModelBaseURL == "" {
			check(errors.New("Identify.ModelBaseURL: required for the model backend"))
		}
		check(validateBaseURL(c.Identify.ModelBaseURL, "Identify.ModelBaseURL"))
	}
	if c.Identify.Backend == identify.BackendLLM && !slices.Contains(providers.Names(), c.Providers.Default) {
		check(fmt.Errorf("Providers.Default: must be one of %s (current value: %s)",
			strings.Join(providers.Names(), ", "), c.Providers.Default))
	}

	check(validateProviderConfig(c.Providers.OpenAI, "OpenAI"))
	check(validateProviderConfig(c.Providers.Anthropic, "Anthropic"))
	check(validateProviderConfig(c.Providers.Gemini, "Gemini"))
	check(validateProviderConfig(c.Providers.Mistral, "Mistral"))

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		check(fmt.Errorf("Logging.Level: %w", err))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		check(fmt.Errorf("RateLimit.RequestsPerMinute: cannot be negative (current value: %d)", c.RateLimit.RequestsPerMinute))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
