package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/avitonotify/notify-server-go/internal/model"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Account, error)
	FindByAvitoUserID(ctx context.Context, avitoUserID int64) (*model.Account, error)
	Upsert(ctx context.Context, params model.UpsertAccountParams) (*model.Account, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AccountRepository
}

type accountRepo struct {
	db sqlxDB
}

// sqlxDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sqlxDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) WithTx(tx *sqlx.Tx) AccountRepository {
	return &accountRepo{db: tx}
}

func (r *accountRepo) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM notify.accounts WHERE id = $1
	`, id)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindByAvitoUserID(ctx context.Context, avitoUserID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM notify.accounts WHERE avito_user_id = $1
	`, avitoUserID)
	return HandleNotFound(&account, err)
}

// Upsert creates the account on first contact and refreshes display
// fields on later ones. avito_user_id itself never changes.
func (r *accountRepo) Upsert(ctx context.Context, params model.UpsertAccountParams) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO notify.accounts (avito_user_id, alias, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (avito_user_id) DO UPDATE SET
			alias = COALESCE(EXCLUDED.alias, notify.accounts.alias),
			name = COALESCE(EXCLUDED.name, notify.accounts.name)
		RETURNING *
	`, params.AvitoUserID, params.Alias, params.Name)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notify.accounts WHERE id = $1`, id)
	return err
}

func (r *accountRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notify.accounts`)
	return count, err
}
