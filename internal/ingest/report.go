package ingest

import "time"

// Report summarizes one ingestion run.
type Report struct {
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	// Rejected is set when another run held the lock; nothing else is filled.
	Rejected bool `json:"rejected"`
	Canceled bool `json:"canceled"`

	Pages      int `json:"pages"`
	EmptyPages int `json:"empty_pages"`
	// Stored counts records inserted by this run.
	Stored int `json:"stored"`
	// Replaced counts previously stored records removed by replacement.
	Replaced int64 `json:"replaced"`

	FetchFailures    int `json:"fetch_failures"`
	StorageFailures  int `json:"storage_failures"`
	ItemFailures     int `json:"item_failures"`
	SnapshotFailures int `json:"snapshot_failures"`
}

// Duration returns the run's wall time.
func (r Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Report) outcome() string {
	switch {
	case r.Rejected:
		return "rejected"
	case r.Canceled:
		return "canceled"
	default:
		return "completed"
	}
}
