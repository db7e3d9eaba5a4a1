package archive

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeRotator struct {
	age      time.Duration
	rotateTo string
}

func (f *fakeRotator) Age() time.Duration { return f.age }

func (f *fakeRotator) RotateTo(archivedPath string) error {
	f.rotateTo = archivedPath
	return os.WriteFile(archivedPath, []byte("line one\nline two\n"), 0o644)
}

func TestCycleSkipsWhenSegmentTooYoung(t *testing.T) {
	dir := t.TempDir()
	rot := &fakeRotator{age: time.Second}
	a, err := New(context.Background(), rot, dir, 10, 1, 24, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	a.cycle(context.Background())
	if rot.rotateTo != "" {
		t.Fatal("expected no rotation for a fresh segment")
	}
}

func TestCycleRotatesAndGzips(t *testing.T) {
	dir := t.TempDir()
	rot := &fakeRotator{age: 48 * time.Hour}
	a, err := New(context.Background(), rot, dir, 10, 1, 24, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	a.cycle(context.Background())

	if rot.rotateTo == "" {
		t.Fatal("expected RotateTo to be called")
	}
	if _, err := os.Stat(rot.rotateTo); err == nil {
		t.Fatal("raw segment should have been removed after gzip")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var gzFiles int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".gz" {
			gzFiles++
			verifyGzipContents(t, filepath.Join(dir, e.Name()))
		}
	}
	if gzFiles != 1 {
		t.Fatalf("expected 1 gzip archive, found %d", gzFiles)
	}
}

func verifyGzipContents(t *testing.T, path string) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "line one\nline two\n" {
		t.Fatalf("unexpected archived content: %q", string(data))
	}
}

func TestRotateBySizeRemovesOldest(t *testing.T) {
	dir := t.TempDir()
	a := &Archiver{dir: dir, maxBytes: 30}

	os.WriteFile(filepath.Join(dir, "segment-20200101T000000.jsonl.gz"), make([]byte, 20), 0o644)
	os.WriteFile(filepath.Join(dir, "segment-20250101T000000.jsonl.gz"), make([]byte, 20), 0o644)

	a.rotateBySize()

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 file remaining after size rotation, got %d", len(entries))
	}
	if entries[0].Name() != "segment-20250101T000000.jsonl.gz" {
		t.Fatalf("expected newest file to survive, got %s", entries[0].Name())
	}
}
