package database

import (
	"fmt"
	"strings"
	"time"
)

type PLLSampleInput struct {
	PipelineID  int
	ElementID   int
	Src         int
	Dst         int
	State       string
	PPB         int32
	ErrMean     float64
	ErrVariance float64
	PPBMin      int64
	PPBMax      int64
	HasWindow   bool // false until the first statistics window completes
}

type FaultInput struct {
	PipelineID  int
	ElementID   int
	ElementType string
	Message     string
	OccurredAt  time.Time
}

type FaultRecord struct {
	ID          int64
	PipelineID  int
	ElementID   int
	ElementType string
	Message     string
	OccurredAt  time.Time
}

type SnapshotInput struct {
	PipelineID int
	Bucket     string
	ObjectKey  string
	ETag       string
	Size       int64
}

func InsertPLLSample(input PLLSampleInput) error {
	if strings.TrimSpace(input.State) == "" {
		return fmt.Errorf("pll state is required")
	}
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var errMean, errVar, ppbMin, ppbMax interface{}
	if input.HasWindow {
		errMean, errVar = input.ErrMean, input.ErrVariance
		ppbMin, ppbMax = input.PPBMin, input.PPBMax
	}

	query := `
		INSERT INTO pll_samples (
			pipeline_id, element_id, src_domain, dst_domain, state, ppb,
			err_mean, err_variance, ppb_min, ppb_max
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := DB.Exec(query,
		input.PipelineID,
		input.ElementID,
		input.Src,
		input.Dst,
		input.State,
		input.PPB,
		errMean,
		errVar,
		ppbMin,
		ppbMax,
	)
	if err != nil {
		return fmt.Errorf("insert pll sample: %w", err)
	}
	return nil
}

func InsertFault(input FaultInput) (int64, error) {
	if strings.TrimSpace(input.ElementType) == "" || strings.TrimSpace(input.Message) == "" {
		return 0, fmt.Errorf("element type and message are required")
	}
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = time.Now()
	}

	query := `
		INSERT INTO element_faults (pipeline_id, element_id, element_type, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := DB.QueryRow(query,
		input.PipelineID,
		input.ElementID,
		input.ElementType,
		input.Message,
		input.OccurredAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert fault: %w", err)
	}
	return id, nil
}

// RecentFaults returns the newest faults of a pipeline, newest first.
func RecentFaults(pipelineID, limit int) ([]FaultRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, pipeline_id, element_id, element_type, message, occurred_at
		FROM element_faults
		WHERE pipeline_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`
	rows, err := DB.Query(query, pipelineID, limit)
	if err != nil {
		return nil, fmt.Errorf("query faults: %w", err)
	}
	defer rows.Close()

	var out []FaultRecord
	for rows.Next() {
		var r FaultRecord
		if err := rows.Scan(&r.ID, &r.PipelineID, &r.ElementID, &r.ElementType, &r.Message, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func InsertSnapshot(input SnapshotInput) error {
	if strings.TrimSpace(input.Bucket) == "" || strings.TrimSpace(input.ObjectKey) == "" {
		return fmt.Errorf("bucket and object key are required")
	}
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO snapshot_archive (pipeline_id, bucket, object_key, etag, size_bytes)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`
	if _, err := DB.Exec(query, input.PipelineID, input.Bucket, input.ObjectKey, input.ETag, input.Size); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
