package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/repository"
)

const (
	usersTable         = "users"
	uniqueViolationSQL = "23505"
)

var userColumns = []string{
	"id",
	"email",
	"first_name",
	"middle_name",
	"last_name",
	"phone",
	"photo_url",
	"password_hash",
	"google_id",
	"facebook_id",
	"is_verified",
	"failed_attempts",
	"lock_until",
	"last_login_method",
	"login_otp",
	"login_otp_expiry",
	"pending_token",
	"pending_token_expiry",
	"sessions",
	"version",
	"created_at",
	"updated_at",
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sessionRecord is the JSONB shape of an embedded session.
type sessionRecord struct {
	Token        string    `json:"token"`
	UserAgent    string    `json:"userAgent"`
	IP           string    `json:"ip"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserRepository implements port.UserStore using PostgreSQL. Sessions live in
// a JSONB column on the user row so every mutation is a single-row write.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row with version 1.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	sessions, err := marshalSessions(user.Sessions)
	if err != nil {
		return err
	}
	if user.Version <= 0 {
		user.Version = 1
	}

	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			user.FirstName,
			user.MiddleName,
			user.LastName,
			user.Phone,
			user.PhotoURL,
			user.PasswordHash,
			user.GoogleID,
			user.FacebookID,
			user.IsVerified,
			user.FailedAttempts,
			user.LockUntil,
			string(user.LastLoginMethod),
			user.LoginOTP,
			user.LoginOTPExpiry,
			user.PendingToken,
			user.PendingTokenExpiry,
			sessions,
			user.Version,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by normalised email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": domain.NormalizeEmail(email)})
}

// Save writes the whole user row if the stored version still matches user.Version.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	sessions, err := marshalSessions(user.Sessions)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(usersTable).
		Set("email", user.Email).
		Set("first_name", user.FirstName).
		Set("middle_name", user.MiddleName).
		Set("last_name", user.LastName).
		Set("phone", user.Phone).
		Set("photo_url", user.PhotoURL).
		Set("password_hash", user.PasswordHash).
		Set("google_id", user.GoogleID).
		Set("facebook_id", user.FacebookID).
		Set("is_verified", user.IsVerified).
		Set("failed_attempts", user.FailedAttempts).
		Set("lock_until", user.LockUntil).
		Set("last_login_method", string(user.LastLoginMethod)).
		Set("login_otp", user.LoginOTP).
		Set("login_otp_expiry", user.LoginOTPExpiry).
		Set("pending_token", user.PendingToken).
		Set("pending_token_expiry", user.PendingTokenExpiry).
		Set("sessions", sessions).
		Set("updated_at", user.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": user.ID, "version": user.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}

	user.Version++
	return nil
}

// ListIDsWithSessions returns ids of users holding at least one session.
func (r *UserRepository) ListIDsWithSessions(ctx context.Context) ([]string, error) {
	stmt, args, err := r.builder.Select("id").
		From(usersTable).
		Where("jsonb_array_length(sessions) > 0").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list users with sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return ids, nil
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user        domain.User
		loginMethod string
		loginOTP    *int32
		sessions    []byte
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.MiddleName,
		&user.LastName,
		&user.Phone,
		&user.PhotoURL,
		&user.PasswordHash,
		&user.GoogleID,
		&user.FacebookID,
		&user.IsVerified,
		&user.FailedAttempts,
		&user.LockUntil,
		&loginMethod,
		&loginOTP,
		&user.LoginOTPExpiry,
		&user.PendingToken,
		&user.PendingTokenExpiry,
		&sessions,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.LastLoginMethod = domain.LoginMethod(loginMethod)
	if loginOTP != nil {
		code := int(*loginOTP)
		user.LoginOTP = &code
	}

	decoded, err := unmarshalSessions(sessions)
	if err != nil {
		return nil, err
	}
	user.Sessions = decoded

	return &user, nil
}

func marshalSessions(sessions []domain.Session) ([]byte, error) {
	records := make([]sessionRecord, 0, len(sessions))
	for _, s := range sessions {
		records = append(records, sessionRecord(s))
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal sessions: %w", err)
	}
	return payload, nil
}

func unmarshalSessions(payload []byte) ([]domain.Session, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var records []sessionRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("unmarshal sessions: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	sessions := make([]domain.Session, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, domain.Session(rec))
	}
	return sessions, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationSQL
}
