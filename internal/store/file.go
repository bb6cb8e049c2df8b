package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/matst80/fogsock/internal/obs"
)

// FileStore serves samples from an in-memory catalog and appends received
// messages to a JSON lines file.
type FileStore struct {
	samples [][]byte

	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads the catalog once. Either path may be empty: without a
// catalog there are no samples, without a received log received messages
// are only logged.
func NewFileStore(catalogPath, receivedPath string) (*FileStore, error) {
	s := &FileStore{}
	if catalogPath != "" {
		samples, err := LoadCatalog(catalogPath)
		if err != nil {
			return nil, err
		}
		s.samples = samples
	}
	if receivedPath != "" {
		f, err := os.OpenFile(receivedPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open received log: %w", err)
		}
		s.f = f
		s.buf = bufio.NewWriter(f)
	}
	obs.Info("store.file.ready", obs.Fields{"catalog": catalogPath, "samples": len(s.samples), "received": receivedPath})
	return s, nil
}

func (s *FileStore) NextSamplePayload(ctx context.Context) ([]byte, error) {
	if len(s.samples) == 0 {
		return nil, ErrEmptyCatalog
	}
	return s.samples[rand.Intn(len(s.samples))], nil
}

func (s *FileStore) RecordReceived(ctx context.Context, m Received) error {
	if s.f == nil {
		obs.Info("store.received", obs.Fields{"id": m.ID, "bytes": len(m.Payload)})
		return nil
	}
	line, err := json.Marshal(m.record())
	if err != nil {
		return fmt.Errorf("marshal received: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.buf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append received: %w", err)
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush received: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	if s.f == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.buf.Flush()
	return s.f.Close()
}
