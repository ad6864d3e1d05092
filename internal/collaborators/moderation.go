package collaborators

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NetworkBan is a network-wide ban record.
type NetworkBan struct {
	PlayerID    uuid.UUID
	Reason      string
	ModeratorID uuid.UUID
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Permanent   bool
}

// Active reports whether the ban is still in effect.
func (b NetworkBan) Active() bool {
	return b.Permanent || (!b.ExpiresAt.IsZero() && time.Now().Before(b.ExpiresAt))
}

// NetworkKick is a network-wide kick record.
type NetworkKick struct {
	PlayerID    uuid.UUID
	Reason      string
	ModeratorID uuid.UUID
	IssuedAt    time.Time
}

// NetworkMute is a network-wide mute record.
type NetworkMute struct {
	PlayerID    uuid.UUID
	Reason      string
	ModeratorID uuid.UUID
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Permanent   bool
}

// Active reports whether the mute is still in effect.
func (m NetworkMute) Active() bool {
	return m.Permanent || (!m.ExpiresAt.IsZero() && time.Now().Before(m.ExpiresAt))
}

// NetworkWarning is a network-wide warning record.
type NetworkWarning struct {
	PlayerID    uuid.UUID
	Reason      string
	ModeratorID uuid.UUID
	IssuedAt    time.Time
}

// ModerationListener observes moderation actions as they're executed
// across the fleet. Every method is optional; embed ModerationListenerBase
// and override only the events of interest.
type ModerationListener interface {
	OnBanExecuted(ban NetworkBan, serverID string)
	OnUnbanExecuted(playerID, moderatorID uuid.UUID, reason, serverID string)
	OnKickExecuted(kick NetworkKick, serverID string)
	OnMuteExecuted(mute NetworkMute, serverID string)
	OnUnmuteExecuted(playerID, moderatorID uuid.UUID, reason, serverID string)
	OnWarningIssued(warning NetworkWarning, serverID string)
}

// ModerationListenerBase provides no-op defaults; embed it to satisfy
// ModerationListener while overriding only the events of interest.
type ModerationListenerBase struct{}

func (ModerationListenerBase) OnBanExecuted(NetworkBan, string)                     {}
func (ModerationListenerBase) OnUnbanExecuted(uuid.UUID, uuid.UUID, string, string)  {}
func (ModerationListenerBase) OnKickExecuted(NetworkKick, string)                   {}
func (ModerationListenerBase) OnMuteExecuted(NetworkMute, string)                   {}
func (ModerationListenerBase) OnUnmuteExecuted(uuid.UUID, uuid.UUID, string, string) {}
func (ModerationListenerBase) OnWarningIssued(NetworkWarning, string)               {}

// ModerationService executes network-wide moderation actions (bans,
// kicks, mutes, warnings) fanned out to every node. The fabric stores an
// attached implementation (eventservice.Service.WithModerationService)
// but never calls it; enforcement policy is the host's responsibility.
type ModerationService interface {
	ExecuteBan(ctx context.Context, ban NetworkBan) error
	ExecuteUnban(ctx context.Context, playerID, moderatorID uuid.UUID, reason string) error
	ExecuteKick(ctx context.Context, kick NetworkKick) error
	ExecuteMute(ctx context.Context, mute NetworkMute) error
	ExecuteUnmute(ctx context.Context, playerID, moderatorID uuid.UUID, reason string) error
	ExecuteWarning(ctx context.Context, warning NetworkWarning) error

	GetActiveBan(ctx context.Context, playerID uuid.UUID) (*NetworkBan, error)
	GetActiveMute(ctx context.Context, playerID uuid.UUID) (*NetworkMute, error)
	GetWarnings(ctx context.Context, playerID uuid.UUID) ([]NetworkWarning, error)

	RegisterModerationListener(listener ModerationListener)
	UnregisterModerationListener(listener ModerationListener)
}
