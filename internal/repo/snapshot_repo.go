// Package repo – snapshot repository
//
// Write-through persistence for the in-memory store. All functions are
// context-aware and accept a *gorm.DB handle, following the "thin
// repository" approach: no business logic, only upserts and the one bulk
// read that restores the snapshot at startup.
//
// Error semantics: raw gorm errors are propagated. The store treats a failed
// write-through as a logged divergence, not a request failure, so callers
// here never wrap or translate.
package repo

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/store"
)

// SaveCacheEntry upserts one memoized provider result.
func SaveCacheEntry(ctx context.Context, db *gorm.DB, kind store.CacheKind, key string, e store.CacheEntry) error {
	row := domain.CacheRow{Kind: string(kind), Key: key, Value: e.Value, Found: e.Found}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "found", "updated_at"}),
		}).
		Create(&row).Error
}

// DeleteCacheEntry removes one memoized result (only used when a cache bound
// is configured and evicts).
func DeleteCacheEntry(ctx context.Context, db *gorm.DB, kind store.CacheKind, key string) error {
	return db.WithContext(ctx).
		Where("kind = ? AND key = ?", string(kind), key).
		Delete(&domain.CacheRow{}).Error
}

// SaveQuota upserts one user's rolling-window state.
func SaveQuota(ctx context.Context, db *gorm.DB, userID string, q domain.QuotaState) error {
	row := domain.QuotaRow{UserID: userID, WindowStart: q.WindowStart, Used: q.Used}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"window_start", "used", "updated_at"}),
		}).
		Create(&row).Error
}

// SaveAuth upserts one user's auth gate state.
func SaveAuth(ctx context.Context, db *gorm.DB, userID string, a domain.AuthState) error {
	row := domain.AuthRow{
		UserID:     userID,
		Status:     int(a.Status),
		DeviceCode: a.DeviceCode,
		ExpiresAt:  a.ExpiresAt,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "device_code", "expires_at", "updated_at"}),
		}).
		Create(&row).Error
}

// SaveObject inserts one parked callback payload. Tokens are unique by
// construction; conflicts are ignored rather than updated.
func SaveObject(ctx context.Context, db *gorm.DB, token string, value json.RawMessage) error {
	row := domain.ObjectRow{Token: token, Value: value}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// LoadSnapshot reads the whole persisted state back into the in-memory
// shape. An empty database yields an empty snapshot (cold start).
func LoadSnapshot(ctx context.Context, db *gorm.DB) (store.Snapshot, error) {
	snap := store.Snapshot{
		Cache:   map[store.CacheKind]map[string]store.CacheEntry{},
		Quotas:  map[string]domain.QuotaState{},
		Auth:    map[string]domain.AuthState{},
		Objects: map[string]json.RawMessage{},
	}

	var cacheRows []domain.CacheRow
	if err := db.WithContext(ctx).Find(&cacheRows).Error; err != nil {
		return snap, err
	}
	for _, r := range cacheRows {
		kind := store.CacheKind(r.Kind)
		if snap.Cache[kind] == nil {
			snap.Cache[kind] = map[string]store.CacheEntry{}
		}
		snap.Cache[kind][r.Key] = store.CacheEntry{Value: r.Value, Found: r.Found}
	}

	var quotaRows []domain.QuotaRow
	if err := db.WithContext(ctx).Find(&quotaRows).Error; err != nil {
		return snap, err
	}
	for _, r := range quotaRows {
		snap.Quotas[r.UserID] = domain.QuotaState{WindowStart: r.WindowStart, Used: r.Used}
	}

	var authRows []domain.AuthRow
	if err := db.WithContext(ctx).Find(&authRows).Error; err != nil {
		return snap, err
	}
	for _, r := range authRows {
		snap.Auth[r.UserID] = domain.AuthState{
			Status:     domain.AuthStatus(r.Status),
			DeviceCode: r.DeviceCode,
			ExpiresAt:  r.ExpiresAt,
		}
	}

	var objectRows []domain.ObjectRow
	if err := db.WithContext(ctx).Find(&objectRows).Error; err != nil {
		return snap, err
	}
	for _, r := range objectRows {
		snap.Objects[r.Token] = r.Value
	}

	return snap, nil
}
