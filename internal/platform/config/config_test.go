package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "tc-dev",
		"API_AUTH_JWT_SECRET":      "local-secret",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
	if cfg.Events.ProjectID != "tc-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Orders.Currency != "usd" {
		t.Errorf("expected default currency usd, got %s", cfg.Orders.Currency)
	}
	if cfg.Orders.TaxRate != 0.08 {
		t.Errorf("expected default tax rate 0.08, got %v", cfg.Orders.TaxRate)
	}
	if cfg.Orders.StandardShippingCost != 599 {
		t.Errorf("unexpected standard shipping cost: %d", cfg.Orders.StandardShippingCost)
	}
	if cfg.Orders.DeliveryEstimateDays != 7 {
		t.Errorf("unexpected delivery estimate: %d", cfg.Orders.DeliveryEstimateDays)
	}
	if cfg.Orders.LowStockThreshold != 5 {
		t.Errorf("unexpected low stock threshold: %d", cfg.Orders.LowStockThreshold)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":                   "prod",
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_READ_TIMEOUT":           "20s",
		"API_SERVER_WRITE_TIMEOUT":          "25s",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_FIRESTORE_PROJECT_ID":          "tc-prod",
		"API_AUTH_JWT_SECRET":               "secret://auth/jwt",
		"API_EVENTS_ENABLED":                "true",
		"API_EVENTS_TOPIC":                  "order-events",
		"API_EVENTS_PROJECT_ID":             "tc-events",
		"API_ORDERS_CURRENCY":               "EUR",
		"API_ORDERS_TAX_RATE":               "0.2",
		"API_ORDERS_SHIPPING_STANDARD":      "499",
		"API_ORDERS_FREE_SHIPPING_OVER":     "5000",
		"API_ORDERS_DELIVERY_ESTIMATE_DAYS": "5",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://auth/jwt" {
			t.Fatalf("unexpected secret ref: %s", ref)
		}
		return "resolved-secret", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("unexpected environment: %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Auth.JWTSecret != "resolved-secret" {
		t.Errorf("expected resolved secret, got %q", cfg.Auth.JWTSecret)
	}
	if !cfg.Events.Enabled || cfg.Events.Topic != "order-events" || cfg.Events.ProjectID != "tc-events" {
		t.Errorf("unexpected events config: %+v", cfg.Events)
	}
	if cfg.Orders.Currency != "eur" {
		t.Errorf("expected lowercased currency, got %s", cfg.Orders.Currency)
	}
	if cfg.Orders.TaxRate != 0.2 {
		t.Errorf("unexpected tax rate: %v", cfg.Orders.TaxRate)
	}
	if cfg.Orders.StandardShippingCost != 499 {
		t.Errorf("unexpected shipping cost: %d", cfg.Orders.StandardShippingCost)
	}
	if cfg.Orders.FreeShippingOver != 5000 {
		t.Errorf("unexpected free shipping threshold: %d", cfg.Orders.FreeShippingOver)
	}
	if cfg.Orders.DeliveryEstimateDays != 5 {
		t.Errorf("unexpected delivery estimate: %d", cfg.Orders.DeliveryEstimateDays)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}

	fields := validation.Fields()
	wantMissing := map[string]bool{"Firestore.ProjectID": false, "Auth.JWTSecret": false}
	for _, field := range fields {
		if _, ok := wantMissing[field]; ok {
			wantMissing[field] = true
		}
	}
	for field, seen := range wantMissing {
		if !seen {
			t.Errorf("expected %s in missing fields, got %v", field, fields)
		}
	}
}

func TestLoadRejectsInvalidTaxRate(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "tc-dev",
		"API_AUTH_JWT_SECRET":      "s",
		"API_ORDERS_TAX_RATE":      "1.5",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "tc-dev",
		"API_AUTH_JWT_SECRET":      "sm://auth/jwt",
	}

	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("backend unavailable")
	})

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T: %v", err, err)
	}
	if secretErr.Ref != "secret://auth/jwt" {
		t.Errorf("expected normalised ref, got %s", secretErr.Ref)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "API_FIRESTORE_PROJECT_ID=tc-local\nAPI_AUTH_JWT_SECRET=\"file-secret\"\n# comment\nexport API_SERVER_PORT=7070\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envFile), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "tc-local" {
		t.Errorf("unexpected project id: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("expected quotes stripped, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected export prefix handled, got %s", cfg.Server.Port)
	}
}
