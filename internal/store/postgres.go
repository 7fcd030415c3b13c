package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/neftie/neftie/backend/internal/models"
)

// pgxPool is the subset of *pgxpool.Pool the store needs.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

// PostgresUserStore is the credential store on PostgreSQL. Post refs are
// kept in a text[] column holding Mongo post ids.
type PostgresUserStore struct {
	pool pgxPool
}

func NewPostgresUserStore(pool pgxPool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

// Migrate creates the users table if it doesn't exist.
func (s *PostgresUserStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username   VARCHAR(50)  UNIQUE NOT NULL,
			email      VARCHAR(255) UNIQUE NOT NULL,
			first_name VARCHAR(50)  NOT NULL DEFAULT '',
			last_name  VARCHAR(50)  NOT NULL DEFAULT '',
			password   VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			posts      TEXT[]       NOT NULL DEFAULT '{}'
		)
	`)
	if err != nil {
		return oops.In("postgres").Wrapf(err, "migrate users")
	}
	return nil
}

const userColumns = `id::text, username, email, first_name, last_name, password, created_at, posts`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Password, &u.CreatedAt, &u.Posts)
	if err != nil {
		return nil, err
	}
	if u.Posts == nil {
		u.Posts = []string{}
	}
	return &u, nil
}

func (s *PostgresUserStore) CreateUser(ctx context.Context, u *models.User) error {
	email := strings.ToLower(u.Email)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, first_name, last_name, password)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id::text, created_at`,
		u.Username, email, u.FirstName, u.LastName, u.Password,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return oops.In("postgres").Wrapf(err, "create user")
	}
	u.Email = email
	u.Posts = []string{}
	return nil
}

func (s *PostgresUserStore) UpdateUser(ctx context.Context, u *models.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, password = $4 WHERE id::text = $1`,
		u.ID, u.FirstName, u.LastName, u.Password,
	)
	if err != nil {
		return oops.In("postgres").With("user_id", u.ID).Wrapf(err, "update user")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresUserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = $1`, id)
}

func (s *PostgresUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

func (s *PostgresUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *PostgresUserStore) getOne(ctx context.Context, sql string, arg string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("postgres").Wrapf(err, "get user")
	}
	return u, nil
}

func (s *PostgresUserStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, oops.In("postgres").Wrapf(err, "list users")
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.In("postgres").Wrapf(err, "scan user")
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("postgres").Wrapf(err, "list users")
	}
	return users, nil
}

func (s *PostgresUserStore) AddPostRef(ctx context.Context, userID, postID string) error {
	return s.execRefs(ctx,
		`UPDATE users SET posts = array_append(posts, $2)
		 WHERE id::text = $1 AND NOT ($2 = ANY(posts))`,
		userID, postID)
}

func (s *PostgresUserStore) RemovePostRefs(ctx context.Context, userID string, postIDs ...string) error {
	return s.execRefs(ctx,
		`UPDATE users SET posts = ARRAY(SELECT p FROM unnest(posts) AS p WHERE NOT (p = ANY($2)))
		 WHERE id::text = $1`,
		userID, postIDs)
}

// execRefs treats zero affected rows as success when the user exists, so
// adding an already-present ref stays idempotent.
func (s *PostgresUserStore) execRefs(ctx context.Context, sql, userID string, arg any) error {
	tag, err := s.pool.Exec(ctx, sql, userID, arg)
	if err != nil {
		return oops.In("postgres").With("user_id", userID).Wrapf(err, "update post refs")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id::text = $1)`, userID).Scan(&exists); err != nil {
		return oops.In("postgres").With("user_id", userID).Wrapf(err, "check user")
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
