package service

import (
	"context"
	"time"

	accountModels "troupon/internal/account/models"
	"troupon/internal/platform/mailer"
	"troupon/internal/recovery/models"
	id "troupon/pkg/domain"
	"troupon/pkg/platform/audit"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks TokenCodec,AccountStore,ElevationStore,Mailer,Auditor

// TokenCodec issues and resolves recovery tokens.
type TokenCodec interface {
	Issue(user *accountModels.User) (string, error)
	Resolve(ctx context.Context, token string) (*accountModels.User, error)
}

// AccountStore is the slice of the account store the recovery flow reads and writes.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*accountModels.User, error)
	FindByID(ctx context.Context, userID id.UserID) (*accountModels.User, error)
	SetPassword(ctx context.Context, userID id.UserID, passwordHash string, changedAt time.Time) error
}

// ElevationStore holds per-session reset grants.
type ElevationStore interface {
	Grant(ctx context.Context, g *models.ElevationGrant) error
	Check(ctx context.Context, sessionID id.SessionID, now time.Time) (*models.ElevationGrant, error)
	Consume(ctx context.Context, sessionID id.SessionID, now time.Time) (*models.ElevationGrant, error)
}

// Mailer sends one message and reports the outcome.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) mailer.DeliveryStatus
}

// Auditor records security events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}
