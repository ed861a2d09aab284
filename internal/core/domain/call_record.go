package domain

import "time"

// CallRecord is the persisted trace of one logical operation.
type CallRecord struct {
	ID          string        `json:"id"           db:"id"`
	Kind        OperationKind `json:"kind"         db:"kind"`
	Success     bool          `json:"success"      db:"success"`
	FailureKind FailureKind   `json:"failure_kind" db:"failure_kind"`
	StatusCode  int           `json:"status_code"  db:"status_code"`
	Attempts    int           `json:"attempts"     db:"attempts"`
	Volume      int64         `json:"volume"       db:"volume"`
	ElapsedMs   int64         `json:"elapsed_ms"   db:"elapsed_ms"`
	Cost        float64       `json:"cost"         db:"cost"`
	Error       string        `json:"error"        db:"error"`
	CreatedAt   time.Time     `json:"created_at"   db:"created_at"`
}

// KindSummary aggregates call records of one kind over a window.
type KindSummary struct {
	Kind          OperationKind `json:"kind"           db:"kind"`
	TotalRequests int64         `json:"total_requests" db:"total_requests"`
	SuccessCount  int64         `json:"success_count"  db:"success_count"`
	FailureCount  int64         `json:"failure_count"  db:"failure_count"`
	TotalVolume   int64         `json:"total_volume"   db:"total_volume"`
	TotalCost     float64       `json:"total_cost"     db:"total_cost"`
	AvgElapsedMs  float64       `json:"avg_elapsed_ms" db:"avg_elapsed_ms"`
}
