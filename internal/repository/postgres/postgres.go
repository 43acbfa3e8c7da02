package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/scribe/internal/domain"
	"github.com/splax/scribe/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository          = (*Repository)(nil)
	_ repository.TranscriptionRepository = (*Repository)(nil)
)

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`
	row := r.pool.QueryRow(ctx, query, email)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateTranscription inserts a transcription record. Audio bytes are stored
// inline unless the record carries an object storage key.
func (r *Repository) CreateTranscription(ctx context.Context, t *domain.Transcription) error {
	const query = `INSERT INTO transcriptions (id, user_id, audio_data, audio_content_type, audio_key, transcription_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	var (
		data []byte
		key  *string
	)
	if t.Audio.StorageKey != "" {
		key = &t.Audio.StorageKey
	} else {
		data = t.Audio.Data
	}
	_, err := r.pool.Exec(ctx, query, t.ID, t.UserID, data, t.Audio.ContentType, key, t.Text, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

// ListTranscriptionsByUser returns every transcription owned by the user, newest first.
func (r *Repository) ListTranscriptionsByUser(ctx context.Context, userID string) ([]domain.Transcription, error) {
	const query = `SELECT id, user_id, audio_data, audio_content_type, COALESCE(audio_key, ''), transcription_text, created_at
		FROM transcriptions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Transcription, 0)
	for rows.Next() {
		var t domain.Transcription
		if err := rows.Scan(&t.ID, &t.UserID, &t.Audio.Data, &t.Audio.ContentType, &t.Audio.StorageKey, &t.Text, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
