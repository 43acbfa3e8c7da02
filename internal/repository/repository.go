package repository

import (
	"context"

	"github.com/splax/scribe/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// TranscriptionRepository persists transcription records.
type TranscriptionRepository interface {
	CreateTranscription(ctx context.Context, t *domain.Transcription) error
	// ListTranscriptionsByUser returns the user's records newest first.
	ListTranscriptionsByUser(ctx context.Context, userID string) ([]domain.Transcription, error)
}
