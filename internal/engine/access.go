package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"talentlink/internal/domain"
	"talentlink/internal/repo"
)

const apiKeyPrefix = "tlk_"

func (e Engine) ListNotifications(ctx context.Context, actorID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if actorID == "" {
		return nil, invalid("actor_id", "is required")
	}
	return e.Repo.ListNotifications(ctx, actorID, unreadOnly, limit)
}

func (e Engine) MarkNotificationRead(ctx context.Context, actorID, notificationID string) error {
	if err := e.Repo.MarkNotificationRead(ctx, actorID, notificationID); err != nil {
		return notFound(err, "notification", notificationID)
	}
	return nil
}

// CreateAPIKey mints a key for actorID. The raw key is returned once and
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.APIKey{}, "", invalid("actor_id", "is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}

// DeleteAPIKey revokes one of actorID's keys. Keys owned by someone else
// report not found.
func (e Engine) DeleteAPIKey(ctx context.Context, actorID, id string) error {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return err
	}
	owned := false
	for _, k := range keys {
		if k.ID == id {
			owned = true
			break
		}
	}
	if actorID == "" || !owned {
		return notFound(repo.ErrNotFound, "api key", id)
	}
	if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
		return notFound(err, "api key", id)
	}
	return nil
}

// ResolveAPIKey returns the actor that owns raw.
func (e Engine) ResolveAPIKey(ctx context.Context, raw string) (string, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if err != nil {
		return "", err
	}
	return key.ActorID, nil
}
