package models

import "time"

// SyncStrategy controls how a sync run reconciles with existing records
type SyncStrategy string

const (
	// SyncAppend creates a new record for every normalized entry, duplicates included
	SyncAppend SyncStrategy = "append"
	// SyncUpsert reconciles entries by natural key
	SyncUpsert SyncStrategy = "upsert"
)

// SkippedEntry describes an upstream entry the normalizer rejected
type SkippedEntry struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// SyncReport summarizes a single FetchAndSyncIPOs run
type SyncReport struct {
	RunID      string         `json:"runId"`
	Strategy   SyncStrategy   `json:"strategy"`
	Fetched    int            `json:"fetched"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Skipped    []SkippedEntry `json:"skipped"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Duration   string         `json:"duration"`
}
