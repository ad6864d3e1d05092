// Package collaborators declares the external services the fabric
// coordinates with but does not implement: player-data persistence and
// network moderation. Concrete implementations are host-supplied.
package collaborators

import (
	"context"

	"github.com/google/uuid"
)

// PlayerData is any value a PlayerDataService can store and retrieve,
// keyed by the concrete type's own dataType tag.
type PlayerData interface {
	DataType() string
}

// PlayerDataChangeEvent notifies listeners that a player's data of a
// given type changed.
type PlayerDataChangeEvent struct {
	PlayerID uuid.UUID
	DataType string
	OldValue PlayerData
	NewValue PlayerData
}

// DataModifier mutates a PlayerData value in place and returns the
// updated value, used by PlayerDataService.UpdatePlayerData for
// atomic read-modify-write cycles.
type DataModifier func(current PlayerData) (PlayerData, error)

// PlayerDataChangeListener observes PlayerDataChangeEvent notifications
// for a single registered data type.
type PlayerDataChangeListener func(ctx context.Context, event PlayerDataChangeEvent)

// PlayerDataService synchronizes player data across the fleet: storage
// policy, TTL, caching, and conflict resolution are the host's
// responsibility. The fabric stores an attached implementation
// (eventservice.Service.WithPlayerDataService) but never calls it.
type PlayerDataService interface {
	GetPlayerData(ctx context.Context, playerID uuid.UUID, dataType string) (PlayerData, error)
	SetPlayerData(ctx context.Context, playerID uuid.UUID, data PlayerData) error
	UpdatePlayerData(ctx context.Context, playerID uuid.UUID, dataType string, modifier DataModifier) (PlayerData, error)
	DeletePlayerData(ctx context.Context, playerID uuid.UUID, dataType string) error
	HasPlayerData(ctx context.Context, playerID uuid.UUID, dataType string) (bool, error)

	AddDataChangeListener(dataType string, listener PlayerDataChangeListener)
	RemoveDataChangeListener(dataType string, listener PlayerDataChangeListener)

	SyncPlayerData(ctx context.Context, playerID uuid.UUID) error
	ClearPlayerCache(ctx context.Context, playerID uuid.UUID) error
}
