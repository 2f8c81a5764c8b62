package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/crossflow/internal/models"
)

type PostStatusRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ps *models.PostStatus) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.PostStatus, error)
	ExistsForPost(ctx context.Context, postID int64, platform string) (bool, error)
	// ClaimPending atomically transitions pending -> processing and reports
	// whether this caller won the claim. A false return means the job was
	// missing or already past pending, and the caller must no-op.
	ClaimPending(ctx context.Context, id int64) (bool, error)
	MarkSuccess(ctx context.Context, id int64, externalPostID string) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	ResetForRetry(ctx context.Context, id int64) error
	IncrementRetry(ctx context.Context, id int64) error
	ReapStale(ctx context.Context, olderThan time.Time, errorMessage string) (int64, error)
	ReapStaleForUser(ctx context.Context, userID int64, olderThan time.Time, errorMessage string) (int64, error)
	ListRetryable(ctx context.Context, updatedSince time.Time, maxRetries, limit int) ([]*models.PostStatus, error)
	ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*models.PostStatusDetail, error)
	GetDetail(ctx context.Context, id int64) (*models.PostStatusDetail, error)
}

type postStatusRepository struct {
	db *sql.DB
}

func NewPostStatusRepository(db *sql.DB) PostStatusRepository {
	return &postStatusRepository{db: db}
}

const postStatusColumns = `id, post_id, platform, status, external_post_id, error_message, retry_count, created_at, updated_at`

func scanPostStatus(row interface {
	Scan(dest ...interface{}) error
}) (*models.PostStatus, error) {
	var ps models.PostStatus
	err := row.Scan(&ps.ID, &ps.PostID, &ps.Platform, &ps.Status, &ps.ExternalPostID,
		&ps.ErrorMessage, &ps.RetryCount, &ps.CreatedAt, &ps.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

func (r *postStatusRepository) Create(ctx context.Context, tx *sql.Tx, ps *models.PostStatus) (int64, error) {
	query := `
		INSERT INTO post_statuses (post_id, platform, status, error_message, retry_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, ps.PostID, ps.Platform, ps.Status, ps.ErrorMessage, ps.RetryCount).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, ps.PostID, ps.Platform, ps.Status, ps.ErrorMessage, ps.RetryCount).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postStatusRepository) GetByID(ctx context.Context, id int64) (*models.PostStatus, error) {
	query := `SELECT ` + postStatusColumns + ` FROM post_statuses WHERE id = $1`
	ps, err := scanPostStatus(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return ps, nil
}

func (r *postStatusRepository) ExistsForPost(ctx context.Context, postID int64, platform string) (bool, error) {
	query := "SELECT 1 FROM post_statuses WHERE post_id = $1 AND platform = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, platform).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postStatusRepository) ClaimPending(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE post_statuses
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $3
	`
	result, err := r.db.ExecContext(ctx, query, id, models.StatusProcessing, models.StatusPending)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postStatusRepository) MarkSuccess(ctx context.Context, id int64, externalPostID string) error {
	query := `
		UPDATE post_statuses
		SET status = $2, external_post_id = $3, error_message = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.StatusSuccess, externalPostID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postStatusRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE post_statuses
		SET status = $2, error_message = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.StatusFailed, errorMessage)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postStatusRepository) ResetForRetry(ctx context.Context, id int64) error {
	query := `
		UPDATE post_statuses
		SET status = $2, error_message = '', retry_count = retry_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.StatusPending)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postStatusRepository) IncrementRetry(ctx context.Context, id int64) error {
	query := `UPDATE post_statuses SET retry_count = retry_count + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postStatusRepository) ReapStale(ctx context.Context, olderThan time.Time, errorMessage string) (int64, error) {
	query := `
		UPDATE post_statuses
		SET status = $1, error_message = $2, updated_at = CURRENT_TIMESTAMP
		WHERE status = $3 AND updated_at < $4
	`
	result, err := r.db.ExecContext(ctx, query, models.StatusFailed, errorMessage, models.StatusProcessing, olderThan)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postStatusRepository) ReapStaleForUser(ctx context.Context, userID int64, olderThan time.Time, errorMessage string) (int64, error) {
	query := `
		UPDATE post_statuses ps
		SET status = $1, error_message = $2, updated_at = CURRENT_TIMESTAMP
		FROM posts p
		WHERE ps.post_id = p.id AND p.user_id = $3 AND ps.status = $4 AND ps.updated_at < $5
	`
	result, err := r.db.ExecContext(ctx, query, models.StatusFailed, errorMessage, userID, models.StatusProcessing, olderThan)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postStatusRepository) ListRetryable(ctx context.Context, updatedSince time.Time, maxRetries, limit int) ([]*models.PostStatus, error) {
	query := `
		SELECT ` + postStatusColumns + `
		FROM post_statuses
		WHERE status IN ($1, $2)
		AND updated_at > $3
		AND retry_count < $4
		ORDER BY updated_at ASC
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query, models.StatusPending, models.StatusFailed, updatedSince, maxRetries, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var statuses []*models.PostStatus
	for rows.Next() {
		ps, err := scanPostStatus(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		statuses = append(statuses, ps)
	}
	return statuses, rows.Err()
}

func (r *postStatusRepository) ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*models.PostStatusDetail, error) {
	query := `
		SELECT ps.id, ps.post_id, ps.platform, ps.status, ps.external_post_id, ps.error_message,
			ps.retry_count, ps.created_at, ps.updated_at, p.source_post_id, p.user_id
		FROM post_statuses ps
		JOIN posts p ON ps.post_id = p.id
		WHERE p.user_id = $1
		ORDER BY ps.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var details []*models.PostStatusDetail
	for rows.Next() {
		var d models.PostStatusDetail
		err := rows.Scan(&d.ID, &d.PostID, &d.Platform, &d.Status, &d.ExternalPostID,
			&d.ErrorMessage, &d.RetryCount, &d.CreatedAt, &d.UpdatedAt, &d.SourcePostID, &d.UserID)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		details = append(details, &d)
	}
	return details, rows.Err()
}

func (r *postStatusRepository) GetDetail(ctx context.Context, id int64) (*models.PostStatusDetail, error) {
	query := `
		SELECT ps.id, ps.post_id, ps.platform, ps.status, ps.external_post_id, ps.error_message,
			ps.retry_count, ps.created_at, ps.updated_at, p.source_post_id, p.user_id
		FROM post_statuses ps
		JOIN posts p ON ps.post_id = p.id
		WHERE ps.id = $1
	`
	var d models.PostStatusDetail
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.PostID, &d.Platform, &d.Status,
		&d.ExternalPostID, &d.ErrorMessage, &d.RetryCount, &d.CreatedAt, &d.UpdatedAt, &d.SourcePostID, &d.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &d, nil
}
