package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/crossflow/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, a *models.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetActive(ctx context.Context, userID int64, platform string) (*models.Account, error)
	GetByPlatformUserID(ctx context.Context, platformUserID, platform string) (*models.Account, error)
	ListActiveByPlatform(ctx context.Context, platform string) ([]*models.Account, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Account, error)
	ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.Account, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	SetToken(ctx context.Context, id int64, a *models.Account) error
	Deactivate(ctx context.Context, id int64) error
	DeactivateByUserPlatform(ctx context.Context, userID int64, platform string) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, user_id, platform, platform_user_id, account_name, access_token, refresh_token, token_expires_at, is_active, created_at, updated_at`

func scanAccount(row interface {
	Scan(dest ...interface{}) error
}) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Platform, &a.PlatformUserID, &a.AccountName,
		&a.AccessToken, &a.RefreshToken, &a.TokenExpiresAt, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) Create(ctx context.Context, tx *sql.Tx, a *models.Account) (int64, error) {
	var err error
	var id int64

	insertQuery := `
		INSERT INTO accounts(
			user_id,
			platform,
			platform_user_id,
			account_name,
			access_token,
			refresh_token,
			token_expires_at,
			is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id
	`

	if tx != nil {
		err = tx.QueryRowContext(ctx, insertQuery,
			a.UserID, a.Platform, a.PlatformUserID, a.AccountName,
			a.AccessToken, a.RefreshToken, a.TokenExpiresAt,
		).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, insertQuery,
			a.UserID, a.Platform, a.PlatformUserID, a.AccountName,
			a.AccessToken, a.RefreshToken, a.TokenExpiresAt,
		).Scan(&id)
	}

	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) GetActive(ctx context.Context, userID int64, platform string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 AND platform = $2 AND is_active = TRUE`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, userID, platform))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) GetByPlatformUserID(ctx context.Context, platformUserID, platform string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE platform_user_id = $1 AND platform = $2 AND is_active = TRUE`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, platformUserID, platform))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) ListActiveByPlatform(ctx context.Context, platform string) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE platform = $1 AND is_active = TRUE`
	rows, err := r.db.QueryContext(ctx, query, platform)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Account, error) {
	query := `SELECT id, user_id, platform, platform_user_id, account_name, is_active, created_at FROM accounts WHERE user_id = $1 AND is_active = TRUE`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		err := rows.Scan(&a.ID, &a.UserID, &a.Platform, &a.PlatformUserID, &a.AccountName, &a.IsActive, &a.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE is_active = TRUE
		AND ((token_expires_at BETWEEN $1 AND $2) OR (token_expires_at < $1))`
	rows, err := r.db.QueryContext(ctx, query, initialTime, finalTime)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return accounts, nil
}

func (r *accountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := "SELECT 1 FROM accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *accountRepository) SetToken(ctx context.Context, id int64, a *models.Account) error {
	query := `
		UPDATE accounts
		SET
			access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = COALESCE($4, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, a.AccessToken, a.RefreshToken, a.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE accounts SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) DeactivateByUserPlatform(ctx context.Context, userID int64, platform string) error {
	query := `UPDATE accounts SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE user_id = $1 AND platform = $2 AND is_active = TRUE`
	_, err := r.db.ExecContext(ctx, query, userID, platform)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
