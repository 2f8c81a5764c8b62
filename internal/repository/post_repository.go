package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/crossflow/internal/models"
)

type PostRepository interface {
	// Create inserts a post. The (source_platform, source_post_id) pair is a
	// real uniqueness constraint; on conflict the insert is a no-op and
	// Create returns (0, nil) so callers re-read the existing row.
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetBySourcePostID(ctx context.Context, sourcePlatform, sourcePostID string) (*models.Post, error)
	ExistsBySourcePostID(ctx context.Context, sourcePlatform, sourcePostID string) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, source_platform, source_post_id, media_url, caption, media_type, media_product_type, timestamp, created_at`

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, source_platform, source_post_id, media_url, caption, media_type, media_product_type, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_platform, source_post_id) DO NOTHING
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.SourcePlatform, post.SourcePostID,
			post.MediaURL, post.Caption, post.MediaType, post.MediaProductType, post.Timestamp).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.SourcePlatform, post.SourcePostID,
			post.MediaURL, post.Caption, post.MediaType, post.MediaProductType, post.Timestamp).Scan(&id)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			// conflict: a post for this source media already exists
			return 0, nil
		}
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var post models.Post
	err := row.Scan(&post.ID, &post.UserID, &post.SourcePlatform, &post.SourcePostID, &post.MediaURL,
		&post.Caption, &post.MediaType, &post.MediaProductType, &post.Timestamp, &post.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &post, nil
}

func (r *postRepository) GetBySourcePostID(ctx context.Context, sourcePlatform, sourcePostID string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE source_platform = $1 AND source_post_id = $2`
	row := r.db.QueryRowContext(ctx, query, sourcePlatform, sourcePostID)

	var post models.Post
	err := row.Scan(&post.ID, &post.UserID, &post.SourcePlatform, &post.SourcePostID, &post.MediaURL,
		&post.Caption, &post.MediaType, &post.MediaProductType, &post.Timestamp, &post.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &post, nil
}

func (r *postRepository) ExistsBySourcePostID(ctx context.Context, sourcePlatform, sourcePostID string) (bool, error) {
	query := "SELECT 1 FROM posts WHERE source_platform = $1 AND source_post_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, sourcePlatform, sourcePostID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}
