// Package store holds the message samples the emitter sends and records the
// messages containers send back.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"time"
)

var ErrEmptyCatalog = errors.New("store: catalog has no entries")

type Source interface {
	NextSamplePayload(ctx context.Context) ([]byte, error)
}

type Recorder interface {
	RecordReceived(ctx context.Context, m Received) error
}

// Store is a Source and Recorder pair that owns external resources.
type Store interface {
	Source
	Recorder
	Close() error
}

// Received is one inbound message as persisted.
type Received struct {
	ID        string
	Timestamp int64
	Payload   []byte
}

type receivedRecord struct {
	ID        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Time      time.Time `json:"time"`
	Payload   string    `json:"payload"`
}

func (m Received) record() receivedRecord {
	return receivedRecord{
		ID:        m.ID,
		Timestamp: m.Timestamp,
		Time:      time.UnixMilli(m.Timestamp).UTC(),
		Payload:   base64.StdEncoding.EncodeToString(m.Payload),
	}
}
