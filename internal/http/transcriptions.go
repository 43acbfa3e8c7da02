package httpx

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/splax/scribe/internal/domain"
	"github.com/splax/scribe/internal/service/transcription"
)

const (
	audioField = "audio"

	outcomeStored          = "stored"
	outcomeRejected        = "rejected"
	outcomeProviderFailure = "provider_error"
	outcomeStoreFailure    = "store_error"
)

var (
	errUploadTooLarge     = errors.New("upload too large")
	errMultipleAudio      = errors.New("multiple audio files")
	errMalformedMultipart = errors.New("malformed multipart body")
)

type transcriptionView struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Audio     string    `json:"audio"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Router) handleUploadAudio(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for upload", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}

	upload, err := readAudioUpload(w, req, r.maxUpload)
	if err != nil {
		r.recordTranscription(outcomeRejected, 0)
		switch {
		case errors.Is(err, errUploadTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		case errors.Is(err, errMultipleAudio):
			writeError(w, http.StatusBadRequest, "Only one audio file is allowed")
		case errors.Is(err, errMalformedMultipart):
			writeError(w, http.StatusBadRequest, "Invalid multipart body")
		default:
			writeError(w, http.StatusBadRequest, "No file uploaded")
		}
		return
	}

	record, err := r.transcriptions.Upload(req.Context(), info.UserID, upload)
	if err != nil {
		switch {
		case errors.Is(err, transcription.ErrMissingFile):
			r.recordTranscription(outcomeRejected, 0)
			writeError(w, http.StatusBadRequest, "No file uploaded")
		case errors.Is(err, transcription.ErrInvalidFileData):
			r.recordTranscription(outcomeRejected, 0)
			writeError(w, http.StatusBadRequest, "Invalid file data")
		case errors.Is(err, transcription.ErrTranscriptionFailed):
			r.recordTranscription(outcomeProviderFailure, 0)
			r.logger.Error("upload failed", "user_id", info.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to process audio")
		default:
			r.recordTranscription(outcomeStoreFailure, 0)
			r.logger.Error("upload failed", "user_id", info.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to process audio")
		}
		return
	}
	r.recordTranscription(outcomeStored, len(upload.Data))
	writeJSON(w, http.StatusOK, map[string]string{
		"message":           "Audio and transcription stored successfully",
		"transcriptionText": record.Text,
	})
}

func (r *Router) handleTranscriptions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for history", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	items, err := r.transcriptions.List(req.Context(), info.UserID)
	if err != nil {
		r.logger.Error("error fetching transcriptions", "user_id", info.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load transcriptions")
		return
	}
	writeJSON(w, http.StatusOK, marshalTranscriptions(items))
}

func marshalTranscriptions(items []domain.Transcription) []transcriptionView {
	views := make([]transcriptionView, 0, len(items))
	for _, item := range items {
		views = append(views, transcriptionView{
			ID:        item.ID,
			Text:      item.Text,
			Audio:     item.Audio.DataURI(),
			CreatedAt: item.CreatedAt.UTC(),
		})
	}
	return views
}

// readAudioUpload streams the multipart body and buffers the single audio
// file part in memory. Nothing is spooled to disk.
func readAudioUpload(w http.ResponseWriter, req *http.Request, limit int64) (*transcription.Upload, error) {
	req.Body = http.MaxBytesReader(w, req.Body, limit)
	reader, err := req.MultipartReader()
	if err != nil {
		return nil, transcription.ErrMissingFile
	}

	var upload *transcription.Upload
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classifyBodyError(err)
		}
		if part.FormName() != audioField || part.FileName() == "" {
			if _, err := io.Copy(io.Discard, part); err != nil {
				return nil, classifyBodyError(err)
			}
			part.Close()
			continue
		}
		if upload != nil {
			part.Close()
			return nil, errMultipleAudio
		}
		upload, err = readPart(part)
		part.Close()
		if err != nil {
			return nil, classifyBodyError(err)
		}
	}
	if upload == nil {
		return nil, transcription.ErrMissingFile
	}
	return upload, nil
}

func readPart(part *multipart.Part) (*transcription.Upload, error) {
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}
	return &transcription.Upload{
		Filename:    part.FileName(),
		ContentType: strings.TrimSpace(part.Header.Get("Content-Type")),
		Data:        data,
	}, nil
}

func classifyBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errUploadTooLarge
	}
	return errMalformedMultipart
}
