package gateway

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/totegamma/customeradmin/internal/domain"
	"github.com/totegamma/customeradmin/internal/usecase"
)

// RoleSetter assigns roles on the host account platform.
type RoleSetter interface {
	SetRole(ctx context.Context, accountID int64, role string) error
}

// AccountGateway adapts the host account platform to usecase.AccountProvider.
type AccountGateway struct {
	roles  RoleSetter
	events usecase.EventPublisher
	marked *cache.Cache
}

func NewAccountGateway(roles RoleSetter, events usecase.EventPublisher) *AccountGateway {
	return &AccountGateway{
		roles:  roles,
		events: events,
		marked: cache.New(10*time.Minute, 15*time.Minute),
	}
}

// CurrentAccountID returns the authenticated caller stored by the auth middleware.
func (g *AccountGateway) CurrentAccountID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(domain.RequesterIdCtxKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// MarkCustomer gives the account the customer role and notifies listeners.
func (g *AccountGateway) MarkCustomer(ctx context.Context, accountID int64) error {
	cacheKey := strconv.FormatInt(accountID, 10)
	if _, found := g.marked.Get(cacheKey); found {
		return nil
	}

	if err := g.roles.SetRole(ctx, accountID, domain.RoleCustomer); err != nil {
		return err
	}
	g.marked.Set(cacheKey, struct{}{}, cache.DefaultExpiration)

	if g.events != nil {
		err := g.events.Publish(ctx, domain.ChannelAccountRole, domain.CustomerEvent{
			Type:   domain.EventRoleChanged,
			UserID: accountID,
			Role:   domain.RoleCustomer,
			At:     time.Now().UTC(),
		})
		if err != nil {
			slog.DebugContext(
				ctx, "failed to publish role change",
				slog.Int64("account", accountID),
				slog.String("error", err.Error()),
				slog.String("module", "gateway"),
			)
		}
	}

	return nil
}
