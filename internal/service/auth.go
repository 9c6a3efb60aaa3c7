package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/customeradmin/client"
)

var tracer = otel.Tracer("auth")

// AccountClient resolves bearer tokens on the host platform.
type AccountClient interface {
	GetAccount(ctx context.Context, token string) (client.Account, error)
}

type AuthService struct {
	mc     *memcache.Client
	client AccountClient
	ttl    time.Duration
}

func NewAuthService(
	mc *memcache.Client,
	client AccountClient,
	ttl time.Duration,
) *AuthService {
	return &AuthService{
		mc:     mc,
		client: client,
		ttl:    ttl,
	}
}

type AuthResult struct {
	AccountID int64
}

// memcache keys are limited to 250 bytes without spaces
func tokenCacheKey(token string) string {
	return fmt.Sprintf("customeradmin:token:%x", xxh3.HashString128(token).Bytes())
}

// Authenticate resolves the account behind a bearer token. Results are shared
// across instances through memcached when configured.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.Authenticate")
	defer span.End()

	if token == "" {
		err := fmt.Errorf("empty token")
		span.RecordError(err)
		return nil, err
	}

	key := tokenCacheKey(token)
	if s.mc != nil {
		item, err := s.mc.Get(key)
		if err == nil {
			id, perr := strconv.ParseInt(string(item.Value), 10, 64)
			if perr == nil && id > 0 {
				span.SetAttributes(attribute.Bool("CacheHit", true))
				return &AuthResult{AccountID: id}, nil
			}
		} else if !errors.Is(err, memcache.ErrCacheMiss) {
			slog.DebugContext(ctx, "memcache get failed", slog.String("error", err.Error()), slog.String("module", "auth"))
		}
	}

	account, err := s.client.GetAccount(ctx, token)
	if err != nil {
		span.RecordError(errors.Wrap(err, "Auth.Service.Authenticate: client.GetAccount failed"))
		return nil, err
	}

	if s.mc != nil {
		err := s.mc.Set(&memcache.Item{
			Key:        key,
			Value:      []byte(strconv.FormatInt(account.ID, 10)),
			Expiration: int32(s.ttl.Seconds()),
		})
		if err != nil {
			slog.DebugContext(ctx, "memcache set failed", slog.String("error", err.Error()), slog.String("module", "auth"))
		}
	}

	span.SetAttributes(attribute.Int64("AccountID", account.ID))
	return &AuthResult{AccountID: account.ID}, nil
}
