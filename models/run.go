package models

import "time"

// Run status values.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// StageRun records one execution of a pipeline stage.
type StageRun struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	RowsIn     int       `json:"rows_in"`
	RowsOut    int       `json:"rows_out"`
	RowsSkip   int       `json:"rows_skipped"`
	Error      string    `json:"error"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (StageRun) TableName() string { return RunsTable }
