// Package storage is the persistent key-value bridge behind the session stores.
// It replaces browser local storage: every store loads its keys on hydrate and
// saves them synchronously after each mutation.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Well-known keys. Each store owns a disjoint subset.
const (
	KeyCart                 = "cart"
	KeyLangCart             = "langCart"
	KeySelectedCurrency     = "selectedCurrency"
	KeySelectedCountry      = "selectedCountry"
	KeyCurrencyAutoDetected = "currencyAutoDetected"
	KeyCookieConsent        = "cookieConsent"
	KeyCookieConsentDate    = "cookieConsentDate"
	KeyRecentlyViewed       = "recentlyViewedProducts"
	KeyAuthToken            = "authToken"
	KeyAuthUser             = "authUser"
	KeyLocale               = "locale"
)

// CarriedKeys survive a session ID rotation. The auth keys are left behind
// and cleared.
var CarriedKeys = []string{
	KeyCart, KeyLangCart,
	KeySelectedCurrency, KeySelectedCountry, KeyCurrencyAutoDetected,
	KeyCookieConsent, KeyCookieConsentDate, KeyRecentlyViewed, KeyLocale,
}

// Backend is a raw byte key-value store. Get returns an error wrapping
// apperrors.ErrNotFound when the key is absent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Bridge is a JSON codec over a Backend, scoped to a key namespace.
type Bridge struct {
	backend Backend
	prefix  string
	logger  *slog.Logger
}

// NewBridge creates a bridge over backend with no namespace.
func NewBridge(backend Backend, logger *slog.Logger) *Bridge {
	return &Bridge{backend: backend, logger: logger}
}

// Namespace returns a bridge whose keys are prefixed with ns + ":".
func (b *Bridge) Namespace(ns string) *Bridge {
	return &Bridge{
		backend: b.backend,
		prefix:  b.prefix + ns + ":",
		logger:  b.logger,
	}
}

// Key returns the fully qualified key for a bridge-relative key.
func (b *Bridge) Key(key string) string {
	return b.prefix + key
}

// Load decodes the value stored under key into dst. It reports false, without
// an error, when the key is absent or the stored value is not valid JSON for
// dst; only backend failures are returned as errors.
func (b *Bridge) Load(ctx context.Context, key string, dst any) (bool, error) {
	data, err := b.backend.Get(ctx, b.Key(key))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		b.logger.WarnContext(ctx, "discarding malformed stored value",
			slog.String("key", b.Key(key)),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return true, nil
}

// Save encodes v as JSON and stores it under key.
func (b *Bridge) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := b.backend.Set(ctx, b.Key(key), data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (b *Bridge) Remove(ctx context.Context, key string) error {
	if err := b.backend.Delete(ctx, b.Key(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Move copies the raw value of key to dst and then removes it here. An
// absent key is not an error.
func (b *Bridge) Move(ctx context.Context, key string, dst *Bridge) error {
	data, err := b.backend.Get(ctx, b.Key(key))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("move %s: %w", key, err)
	}
	if err := dst.backend.Set(ctx, dst.Key(key), data); err != nil {
		return fmt.Errorf("move %s: %w", key, err)
	}
	return b.Remove(ctx, key)
}

// Ping checks the underlying backend.
func (b *Bridge) Ping(ctx context.Context) error {
	return b.backend.Ping(ctx)
}
