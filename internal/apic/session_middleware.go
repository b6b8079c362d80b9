package apic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plantarium-platform/apisync-go/pkg/models"
	"go.uber.org/zap"
)

// SessionMiddleware runs a platform operation with a bearer token under its
// own deadline.
type SessionMiddleware func(operation string, next func(ctx context.Context, token string) error) func(ctx context.Context) error

// TokenCache holds the bearer token of the current session.
type TokenCache struct {
	mu       sync.Mutex
	platform PlatformClientInterface
	token    string
}

func NewTokenCache(platform PlatformClientInterface) *TokenCache {
	return &TokenCache{platform: platform}
}

// Login always requests a fresh token.
func (t *TokenCache) Login(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token, err := t.platform.Login(ctx)
	if err != nil {
		t.token = ""
		return "", err
	}
	t.token = token
	return token, nil
}

// Get returns the cached token, logging in first when there is none.
func (t *TokenCache) Get(ctx context.Context) (string, error) {
	t.mu.Lock()
	token := t.token
	t.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return t.Login(ctx)
}

// Clear drops the cached token.
func (t *TokenCache) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
}

// withDeadline bounds ctx by timeout; a zero timeout leaves ctx unbounded.
func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// asTimeout converts deadline failures into timeout errors.
func asTimeout(ctx context.Context, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewTimeoutError(fmt.Sprintf("%s exceeded its deadline", operation), err)
	}
	return err
}

// NewSessionMiddleware creates a SessionMiddleware backed by tokens.
func NewSessionMiddleware(tokens *TokenCache, timeout time.Duration, logger *zap.Logger) SessionMiddleware {
	return func(operation string, next func(ctx context.Context, token string) error) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			opCtx, cancel := withDeadline(ctx, timeout)
			defer cancel()

			token, err := tokens.Get(opCtx)
			if err != nil {
				logger.Error("Failed to obtain platform session", zap.String("operation", operation), zap.Error(err))
				return asTimeout(opCtx, operation, fmt.Errorf("failed to obtain session: %w", err))
			}

			logger.Debug("Executing platform operation", zap.String("operation", operation))
			err = next(opCtx, token)
			if err == nil {
				return nil
			}
			if errors.Is(err, ErrUnauthorized) {
				logger.Warn("Platform session rejected, token dropped", zap.String("operation", operation))
				tokens.Clear()
			}
			return asTimeout(opCtx, operation, err)
		}
	}
}
