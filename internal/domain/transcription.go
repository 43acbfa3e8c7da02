package domain

import (
	"encoding/base64"
	"time"
)

// AudioFile is the uploaded payload kept next to its transcript. When the
// bytes live in object storage Data is empty until loaded and StorageKey
// points at the object.
type AudioFile struct {
	Data        []byte
	ContentType string
	StorageKey  string
}

// DataURI renders the audio as a data URI suitable for direct playback.
func (a AudioFile) DataURI() string {
	return "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Transcription is a stored speech-to-text result owned by a user.
type Transcription struct {
	ID        string
	UserID    string
	Audio     AudioFile
	Text      string
	CreatedAt time.Time
}
