package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/scribe/internal/domain"
	"github.com/splax/scribe/internal/repository"
)

var (
	// ErrMissingFile is returned when the request carries no audio upload.
	ErrMissingFile = errors.New("no file uploaded")
	// ErrInvalidFileData is returned when the upload lacks bytes or a MIME type.
	ErrInvalidFileData = errors.New("invalid file data")
	// ErrTranscriptionFailed wraps any provider failure. Nothing is persisted.
	ErrTranscriptionFailed = errors.New("transcription failed")
	errMissingUserID       = errors.New("user id required")
)

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// AudioStore keeps audio payloads outside the database.
type AudioStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Upload is a single audio file buffered in memory.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service runs the upload-and-transcribe pipeline and history listing.
type Service struct {
	records  repository.TranscriptionRepository
	provider Transcriber
	blobs    AudioStore
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Service. blobs may be nil, in which case audio is stored inline.
func New(records repository.TranscriptionRepository, provider Transcriber, blobs AudioStore, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{
		records:  records,
		provider: provider,
		blobs:    blobs,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Upload transcribes the audio and stores it with its transcript for userID.
// Steps run strictly in order and the provider is called exactly once.
func (s Service) Upload(ctx context.Context, userID string, upload *Upload) (*domain.Transcription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errMissingUserID
	}
	if upload == nil {
		return nil, ErrMissingFile
	}
	if len(upload.Data) == 0 || strings.TrimSpace(upload.ContentType) == "" {
		return nil, ErrInvalidFileData
	}

	started := time.Now()
	text, err := s.provider.Transcribe(ctx, upload.Data, upload.ContentType)
	if err != nil {
		s.logger.Error("transcription provider failed", "user_id", userID, "error", err, "duration_ms", time.Since(started).Milliseconds())
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if text == "" {
		s.logger.Warn("empty transcript", "user_id", userID, "bytes", len(upload.Data))
	}

	record := &domain.Transcription{
		ID:        uuid.NewString(),
		UserID:    userID,
		Audio:     domain.AudioFile{Data: upload.Data, ContentType: upload.ContentType},
		Text:      text,
		CreatedAt: s.now(),
	}
	if s.blobs != nil {
		key := storageKey(userID, record.ID)
		if err := s.blobs.Put(ctx, key, upload.Data, upload.ContentType); err != nil {
			return nil, fmt.Errorf("store audio: %w", err)
		}
		record.Audio.StorageKey = key
	}
	if err := s.records.CreateTranscription(ctx, record); err != nil {
		if record.Audio.StorageKey != "" {
			if delErr := s.blobs.Delete(context.WithoutCancel(ctx), record.Audio.StorageKey); delErr != nil {
				s.logger.Warn("orphaned audio object", "key", record.Audio.StorageKey, "error", delErr)
			}
		}
		return nil, fmt.Errorf("save transcription: %w", err)
	}
	s.logger.Info("transcription stored", "user_id", userID, "transcription_id", record.ID, "bytes", len(upload.Data), "duration_ms", time.Since(started).Milliseconds())
	return record, nil
}

// List returns every transcription owned by userID, newest first, with audio loaded.
func (s Service) List(ctx context.Context, userID string) ([]domain.Transcription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errMissingUserID
	}
	items, err := s.records.ListTranscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions: %w", err)
	}
	for i := range items {
		key := items[i].Audio.StorageKey
		if key == "" {
			continue
		}
		if s.blobs == nil {
			return nil, fmt.Errorf("transcription %s references object storage but none is configured", items[i].ID)
		}
		data, err := s.blobs.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load audio for %s: %w", items[i].ID, err)
		}
		items[i].Audio.Data = data
	}
	return items, nil
}

func storageKey(userID, recordID string) string {
	return "audio/" + userID + "/" + recordID
}
