package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	apperrors "github.com/target/mmk-gatekeeper/internal/errors"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

const credentialColumns = `username, password_hash, email, first_name, last_name, groups, created_at, disabled_at`

type credentialRow struct {
	Username     string     `db:"username"`
	PasswordHash string     `db:"password_hash"`
	Email        string     `db:"email"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	Groups       []string   `db:"groups"`
	CreatedAt    time.Time  `db:"created_at"`
	DisabledAt   *time.Time `db:"disabled_at"`
}

func (r credentialRow) toDomain() domainauth.Credential {
	return domainauth.Credential{
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Groups:       r.Groups,
		CreatedAt:    r.CreatedAt,
		DisabledAt:   r.DisabledAt,
	}
}

// CredentialRepo stores username/password credentials for the password strategy.
type CredentialRepo struct {
	DB *sql.DB
}

var _ ports.CredentialStore = (*CredentialRepo)(nil)

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{DB: db}
}

// Lookup returns domainauth.ErrCredentialNotFound when no row matches.
func (r *CredentialRepo) Lookup(ctx context.Context, username string) (domainauth.Credential, error) {
	var row credentialRow
	err := withPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE username = $1`, username)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[credentialRow])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return domainauth.Credential{}, domainauth.ErrCredentialNotFound
	}
	if err != nil {
		return domainauth.Credential{}, fmt.Errorf("lookup credential: %w", apperrors.MapDBError(err))
	}
	return row.toDomain(), nil
}

// Create inserts cred. A duplicate username yields a Conflict AppError.
func (r *CredentialRepo) Create(ctx context.Context, cred domainauth.Credential) error {
	if strings.TrimSpace(cred.Username) == "" {
		return apperrors.ValidationField("username", "username is required")
	}
	if cred.PasswordHash == "" {
		return apperrors.ValidationField("password_hash", "password hash is required")
	}
	groups := cred.Groups
	if groups == nil {
		groups = []string{}
	}

	err := withPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO credentials (username, password_hash, email, first_name, last_name, groups)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			cred.Username, cred.PasswordHash, cred.Email, cred.FirstName, cred.LastName, groups,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("create credential: %w", apperrors.MapDBError(err))
	}
	return nil
}

// SetPassword replaces the hash and re-enables a disabled credential.
func (r *CredentialRepo) SetPassword(ctx context.Context, username, passwordHash string) error {
	if passwordHash == "" {
		return apperrors.ValidationField("password_hash", "password hash is required")
	}
	return r.update(ctx, username,
		`UPDATE credentials SET password_hash = $2, disabled_at = NULL WHERE username = $1`, passwordHash)
}

// Disable revokes a credential without deleting it.
func (r *CredentialRepo) Disable(ctx context.Context, username string) error {
	return r.update(ctx, username,
		`UPDATE credentials SET disabled_at = now() WHERE username = $1 AND disabled_at IS NULL`)
}

// List returns all credentials ordered by username.
func (r *CredentialRepo) List(ctx context.Context) ([]domainauth.Credential, error) {
	var rows []credentialRow
	err := withPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY username`)
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(res, pgx.RowToStructByName[credentialRow])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", apperrors.MapDBError(err))
	}
	out := make([]domainauth.Credential, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// update runs stmt in a transaction after locking the row, so a missing username is
// reported as not found rather than as a silent no-op.
func (r *CredentialRepo) update(ctx context.Context, username, stmt string, args ...any) error {
	err := withPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		var exists string
		if err := tx.QueryRow(ctx,
			`SELECT username FROM credentials WHERE username = $1 FOR UPDATE`, username,
		).Scan(&exists); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, stmt, append([]any{username}, args...)...)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return domainauth.ErrCredentialNotFound
	}
	if err != nil {
		return fmt.Errorf("update credential: %w", apperrors.MapDBError(err))
	}
	return nil
}
