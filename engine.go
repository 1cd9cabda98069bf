package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/delivery"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

// Engine is the authentication core. It is immutable after Build and safe
// for concurrent use.
type Engine struct {
	config   Config
	users    UserStore
	tokens   TokenStore
	signer   *jwt.Manager
	hasher   PasswordHasher
	random   RandomProvider
	delivery *delivery.Dispatcher
	logger   *slog.Logger
	audit    *internalaudit.Dispatcher
	metrics  *internalmetrics.Metrics
	flows    flows.Deps
	now      func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e == nil || e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.Add(id, uint64(n))
}

func (e *Engine) warn(ctx context.Context, msg string, args ...any) {
	e.logger.WarnContext(ctx, msg, args...)
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.signer == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) issueAccessToken(userID string) (string, error) {
	return e.signer.CreateAccess(userID, e.config.JWT.Scope)
}

func (e *Engine) authUser(user UserRecord, access, refresh string) AuthUser {
	return AuthUser{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(e.config.JWT.AccessTTL / time.Second),
		User:         NewUserView(user),
	}
}

// storeError maps store sentinels onto engine errors and wraps everything
// else as an infrastructure failure.
func storeError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		if notFound != nil {
			return notFound
		}
		return ErrUserNotFound
	case errors.Is(err, store.ErrDuplicate):
		return ErrDuplicateIdentifier
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (e *Engine) findUser(ctx context.Context, userID string) (UserRecord, error) {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return UserRecord{}, storeError(err, ErrUserNotFound)
	}
	return user, nil
}
