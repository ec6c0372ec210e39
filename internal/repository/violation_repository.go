package repository

import (
	"context"
	"time"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationIncrement adds Count occurrences of Type to one submission.
type ViolationIncrement struct {
	SubmissionID uuid.UUID
	Type         model.ViolationType
	Count        int
	SeenAt       time.Time
}

// ViolationRepository maintains the aggregated proctoring counters.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// IncrementBatch upserts every increment in a single statement. The batch
// must not repeat a (submission, type) pair.
func (r *ViolationRepository) IncrementBatch(ctx context.Context, incs []ViolationIncrement) error {
	if len(incs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(incs))
	types := make([]string, len(incs))
	counts := make([]int32, len(incs))
	seen := make([]time.Time, len(incs))
	for i, inc := range incs {
		ids[i] = inc.SubmissionID
		types[i] = string(inc.Type)
		counts[i] = int32(inc.Count)
		seen[i] = inc.SeenAt
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO submission_violations (submission_id, type, count, last_seen_at)
		 SELECT * FROM UNNEST($1::uuid[], $2::text[], $3::int[], $4::timestamptz[])
		 ON CONFLICT (submission_id, type)
		 DO UPDATE SET count = submission_violations.count + EXCLUDED.count,
		               last_seen_at = GREATEST(submission_violations.last_seen_at, EXCLUDED.last_seen_at)`,
		ids, types, counts, seen)
	return err
}

// Increment upserts a single counter.
func (r *ViolationRepository) Increment(ctx context.Context, inc ViolationIncrement) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO submission_violations (submission_id, type, count, last_seen_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (submission_id, type)
		 DO UPDATE SET count = submission_violations.count + EXCLUDED.count,
		               last_seen_at = GREATEST(submission_violations.last_seen_at, EXCLUDED.last_seen_at)`,
		inc.SubmissionID, inc.Type, inc.Count, inc.SeenAt)
	return translate(err)
}
