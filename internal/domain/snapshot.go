// Package domain – snapshot row models
//
// These types are the persisted shape of the store: four small tables that
// together form one restorable snapshot. They are mapped with GORM onto the
// SQLite snapshot file. Values are stored as their JSON encoding so the rows
// survive schema drift in the cached payloads.
package domain

import "time"

// CacheRow is one memoized provider result, keyed by (kind, cache key).
// Found=false rows are cached negative lookups and carry no value.
type CacheRow struct {
	Kind      string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Key       string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Value     []byte    `gorm:"type:BLOB"`
	Found     bool      `gorm:"type:INTEGER NOT NULL"`
	UpdatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (CacheRow) TableName() string { return "cache_entries" }

// QuotaRow is one user's rolling-window usage counter.
type QuotaRow struct {
	UserID      string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	WindowStart time.Time `gorm:"type:DATETIME NOT NULL"`
	Used        int       `gorm:"type:INTEGER NOT NULL"`
	UpdatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (QuotaRow) TableName() string { return "quota_states" }

// AuthRow is one user's auth gate state. DeviceCode and ExpiresAt are only
// set while Status is pending.
type AuthRow struct {
	UserID     string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	DeviceCode string    `gorm:"type:TEXT"`
	ExpiresAt  time.Time `gorm:"type:DATETIME"`
	UpdatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (AuthRow) TableName() string { return "auth_states" }

// ObjectRow is one parked callback payload, keyed by its "oc:" token.
// Rows are never deleted; the object cache grows with the snapshot.
type ObjectRow struct {
	Token     string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Value     []byte    `gorm:"type:BLOB NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (ObjectRow) TableName() string { return "oc_entries" }
