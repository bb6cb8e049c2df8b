package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadCatalogJSON(t *testing.T) {
	p := writeFile(t, "messages.json", `{"messages":[{"data":"hello"},{"data":"AQID","encoding":"base64"}]}`)
	got, err := LoadCatalog(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || string(got[0]) != "hello" || string(got[1]) != "\x01\x02\x03" {
		t.Errorf("Expected decoded entries, got %q", got)
	}
}

func TestLoadCatalogYAML(t *testing.T) {
	p := writeFile(t, "messages.yaml", "messages:\n  - data: one\n  - data: dHdv\n    encoding: base64\n")
	got, err := LoadCatalog(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || string(got[0]) != "one" || string(got[1]) != "two" {
		t.Errorf("Expected [one two], got %q", got)
	}
}

func TestParseCatalogErrors(t *testing.T) {
	if _, err := ParseCatalog([]byte(`{"messages":[]}`), "json"); !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("Expected ErrEmptyCatalog, got %v", err)
	}
	if _, err := ParseCatalog([]byte(`{"messages":[{"data":"x","encoding":"rot13"}]}`), "json"); err == nil {
		t.Errorf("Expected unknown encoding error")
	}
	if _, err := ParseCatalog([]byte(`{"messages":[{"data":"!!","encoding":"base64"}]}`), "json"); err == nil {
		t.Errorf("Expected base64 error")
	}
	if _, err := ParseCatalog([]byte(`{`), "json"); err == nil {
		t.Errorf("Expected parse error")
	}
}

func TestFileStoreSamplesFromCatalog(t *testing.T) {
	p := writeFile(t, "messages.json", `{"messages":[{"data":"a"},{"data":"b"}]}`)
	s, err := NewFileStore(p, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		b, err := s.NextSamplePayload(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		seen[string(b)] = true
	}
	if !seen["a"] || !seen["b"] || len(seen) != 2 {
		t.Errorf("Expected both samples picked, got %v", seen)
	}
}

func TestFileStoreWithoutFiles(t *testing.T) {
	s, err := NewFileStore("", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.NextSamplePayload(context.Background()); !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("Expected ErrEmptyCatalog, got %v", err)
	}
	if err := s.RecordReceived(context.Background(), Received{ID: "x"}); err != nil {
		t.Errorf("Expected log-only record to succeed, got %v", err)
	}
}

func TestFileStoreAppendsReceived(t *testing.T) {
	cat := writeFile(t, "messages.json", `{"messages":[{"data":"a"}]}`)
	logPath := filepath.Join(t.TempDir(), "received.jsonl")
	s, err := NewFileStore(cat, logPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = s.RecordReceived(ctx, Received{ID: "m1", Timestamp: 1700000000000, Payload: []byte{1, 2}})
	_ = s.RecordReceived(ctx, Received{ID: "m2", Timestamp: 1700000000001, Payload: []byte("hi")})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var recs []receivedRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r receivedRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		recs = append(recs, r)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "m1" || recs[0].Payload != "AQI=" || recs[0].Timestamp != 1700000000000 {
		t.Errorf("Unexpected first record %+v", recs[0])
	}
	if recs[1].ID != "m2" {
		t.Errorf("Expected append order, got %s", recs[1].ID)
	}
}

func TestLoadContainerConfig(t *testing.T) {
	p := writeFile(t, "containerconfig.json", "{\n  \"interval\": 5,\n  \"name\": \"tmg\"\n}\n")
	got, err := LoadContainerConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"interval":5,"name":"tmg"}` {
		t.Errorf("Expected compact JSON, got %s", got)
	}
	bad := writeFile(t, "bad.json", "{nope")
	if _, err := LoadContainerConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}
