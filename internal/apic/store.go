// Package apic talks to the API-management platform: draft APIs, draft
// products and catalog publication.
package apic

import (
	"context"
	"fmt"
	"time"

	"github.com/plantarium-platform/apisync-go/pkg/models"
	"go.uber.org/zap"
)

// RemoteAPIStore is the remote state the reconciler reads and writes.
type RemoteAPIStore interface {
	Login(ctx context.Context) error
	Exists(ctx context.Context, id string) (bool, error)
	Fetch(ctx context.Context, id string) ([]byte, error)
	Create(ctx context.Context, id string, doc []byte) error
	Update(ctx context.Context, id string, doc []byte) error
	Validate(ctx context.Context, doc []byte) error
	FetchProduct(ctx context.Context, name string) ([]byte, bool, error)
	SaveProduct(ctx context.Context, name string, doc []byte) error
	Publish(ctx context.Context, doc []byte) error
}

// PlatformConfig represents the platform connection settings.
type PlatformConfig struct {
	Server         string
	Org            string
	Catalog        string
	Realm          string
	Username       string
	Password       string
	ClientID       string
	ClientSecret   string
	APIVersion     string
	ProductVersion string
	Timeout        time.Duration
}

// APIStore implements RemoteAPIStore on top of the platform REST API.
type APIStore struct {
	platform PlatformClientInterface
	tokens   *TokenCache
	session  SessionMiddleware
	config   PlatformConfig
	logger   *zap.Logger
}

// NewAPIStore wires the session middleware around platform.
func NewAPIStore(config PlatformConfig, platform PlatformClientInterface, logger *zap.Logger) *APIStore {
	tokens := NewTokenCache(platform)
	return &APIStore{
		platform: platform,
		tokens:   tokens,
		session:  NewSessionMiddleware(tokens, config.Timeout, logger),
		config:   config,
		logger:   logger,
	}
}

// Login opens the session. A failure here aborts the run.
func (s *APIStore) Login(ctx context.Context) error {
	loginCtx, cancel := withDeadline(ctx, s.config.Timeout)
	defer cancel()
	if _, err := s.tokens.Login(loginCtx); err != nil {
		return asTimeout(loginCtx, "login", fmt.Errorf("failed to log in to %s: %w", s.config.Server, err))
	}
	return nil
}

// Exists reports whether a draft API with the canonical id exists.
func (s *APIStore) Exists(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.session("exists "+id, func(ctx context.Context, token string) error {
		_, ok, err := s.platform.GetDraftAPI(ctx, token, id, s.config.APIVersion)
		found = ok
		return err
	})(ctx)
	return found, err
}

// Fetch returns the current remote definition of id.
func (s *APIStore) Fetch(ctx context.Context, id string) ([]byte, error) {
	var doc []byte
	err := s.session("fetch "+id, func(ctx context.Context, token string) error {
		body, ok, err := s.platform.GetDraftAPI(ctx, token, id, s.config.APIVersion)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError(fmt.Sprintf("draft api %s does not exist", id), nil)
		}
		doc = body
		return nil
	})(ctx)
	return doc, err
}

// Create stores a new definition.
func (s *APIStore) Create(ctx context.Context, id string, doc []byte) error {
	return s.session("create "+id, func(ctx context.Context, token string) error {
		return s.platform.CreateDraftAPI(ctx, token, doc)
	})(ctx)
}

// Update replaces the definition of id.
func (s *APIStore) Update(ctx context.Context, id string, doc []byte) error {
	return s.session("update "+id, func(ctx context.Context, token string) error {
		return s.platform.UpdateDraftAPI(ctx, token, id, s.config.APIVersion, doc)
	})(ctx)
}

// Validate checks a definition with the platform.
func (s *APIStore) Validate(ctx context.Context, doc []byte) error {
	return s.session("validate", func(ctx context.Context, token string) error {
		return s.platform.ValidateDraftAPI(ctx, token, doc)
	})(ctx)
}

// FetchProduct returns the remote product document, if any.
func (s *APIStore) FetchProduct(ctx context.Context, name string) ([]byte, bool, error) {
	var (
		doc   []byte
		found bool
	)
	err := s.session("fetch product "+name, func(ctx context.Context, token string) error {
		body, ok, err := s.platform.GetDraftProduct(ctx, token, name, s.config.ProductVersion)
		doc, found = body, ok
		return err
	})(ctx)
	return doc, found, err
}

// SaveProduct creates the product or updates it when it already exists.
func (s *APIStore) SaveProduct(ctx context.Context, name string, doc []byte) error {
	return s.session("save product "+name, func(ctx context.Context, token string) error {
		_, exists, err := s.platform.GetDraftProduct(ctx, token, name, s.config.ProductVersion)
		if err != nil {
			return err
		}
		if exists {
			return s.platform.UpdateDraftProduct(ctx, token, name, s.config.ProductVersion, doc)
		}
		return s.platform.CreateDraftProduct(ctx, token, doc)
	})(ctx)
}

// Publish publishes the product to the configured catalog.
func (s *APIStore) Publish(ctx context.Context, doc []byte) error {
	return s.session("publish", func(ctx context.Context, token string) error {
		return s.platform.PublishProduct(ctx, token, doc)
	})(ctx)
}
