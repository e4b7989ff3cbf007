package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cookie-auth/internal/domain"
	"cookie-auth/internal/observability"

	"github.com/google/uuid"
)

const usersEmailConstraint = "users_email_key"

// UserRepository implements domain.UserRepository for PostgreSQL
type UserRepository struct {
	db             *sql.DB
	createStmt     *sql.Stmt
	getByIDStmt    *sql.Stmt
	getByEmailStmt *sql.Stmt
}

// NewUserRepository creates a new UserRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewUserRepository(db *sql.DB) (*UserRepository, error) {
	repo := &UserRepository{db: db}

	var err error
	repo.createStmt, err = db.Prepare(`
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	repo.getByIDStmt, err = db.Prepare(`
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByID statement: %w", err)
	}

	repo.getByEmailStmt, err = db.Prepare(`
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByEmail statement: %w", err)
	}

	return repo, nil
}

// Create inserts a new user. The unique index on email is the only guard
// against concurrent signups, so a violation maps to ErrEmailInUse.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	defer observeQuery("create", time.Now())

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	err := r.createStmt.QueryRowContext(ctx,
		user.ID,
		user.Email,
		user.PasswordHash,
	).Scan(&user.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err, usersEmailConstraint) {
			return domain.ErrEmailInUse
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	defer observeQuery("get_by_id", time.Now())

	// Tokens carry arbitrary strings; a non-UUID can never match.
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}
	return scanUser(r.getByIDStmt.QueryRowContext(ctx, id))
}

// GetByEmail retrieves a user by email. Matching is case-sensitive.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer observeQuery("get_by_email", time.Now())

	return scanUser(r.getByEmailStmt.QueryRowContext(ctx, email))
}

// Close releases the prepared statements.
func (r *UserRepository) Close() error {
	return errors.Join(
		r.createStmt.Close(),
		r.getByIDStmt.Close(),
		r.getByEmailStmt.Close(),
	)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func observeQuery(operation string, start time.Time) {
	observability.DBQueryDuration.WithLabelValues(operation, "users").Observe(time.Since(start).Seconds())
}
