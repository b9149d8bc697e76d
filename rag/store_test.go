package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

func newTestStore(t *testing.T) (*IndexStore, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewIndexStore(dir,
		NewChunker(ChunkingConfig{ChunkSize: 50, ChunkOverlap: 10, Separators: []string{"\n\n", "\n", " ", ""}}, nil),
		&mapEmbedder{},
		DefaultLexicalConfig(),
		zap.NewNop())
	return store, dir
}

func TestIndexStore_LoadMissingFilesFailsFast(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	_, _, err := store.Load()
	if err == nil {
		t.Fatal("expected error loading from empty directory")
	}
	var le *llm.Error
	if !errors.As(err, &le) || le.Code != llm.ErrRetrievalUnavailable {
		t.Fatalf("expected RETRIEVAL_UNAVAILABLE, got %v", err)
	}
}

func TestIndexStore_LoadCorruptChunksFailsFast(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t)
	if err := os.WriteFile(filepath.Join(dir, "chunks.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vectors.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := store.Load()
	var le *llm.Error
	if !errors.As(err, &le) || le.Code != llm.ErrRetrievalUnavailable {
		t.Fatalf("expected RETRIEVAL_UNAVAILABLE for corrupt store, got %v", err)
	}
}

func TestIndexStore_RebuildThenLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	dataDir := t.TempDir()
	docs := map[string]string{
		"quyche.txt":    "Điều 1. Phạm vi áp dụng.\n\nĐiều 2. Học phí và miễn giảm.",
		"tuyensinh.txt": "Thông tin tuyển sinh năm học mới.",
	}
	for name, body := range docs {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	lexical, vector, err := store.Rebuild(context.Background(), dataDir)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if lexical.Size() == 0 || vector.Size() == 0 {
		t.Fatal("rebuild produced empty indexes")
	}
	if lexical.Size() != vector.Size() {
		t.Fatalf("index sizes diverge: lexical=%d vector=%d", lexical.Size(), vector.Size())
	}

	loadedLexical, loadedVector, err := store.Load()
	if err != nil {
		t.Fatalf("Load after Rebuild: %v", err)
	}
	if loadedLexical.Size() != lexical.Size() || loadedVector.Size() != vector.Size() {
		t.Fatal("loaded indexes differ from rebuilt ones")
	}

	results := loadedLexical.Search("học phí", 5)
	if len(results) == 0 {
		t.Fatal("loaded lexical index does not answer queries")
	}
}

func TestIndexStore_RebuildIgnoresNonTextFiles(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "quyche.txt"), []byte("nội dung quy chế"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "notes.md"), []byte("bỏ qua"), 0o644); err != nil {
		t.Fatal(err)
	}

	lexical, _, err := store.Rebuild(context.Background(), dataDir)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	for _, sc := range lexical.Search("nội", 10) {
		if sc.Chunk.SourceID == "notes" || sc.Chunk.SourceID == "notes.md" {
			t.Fatal("non-.txt file was indexed")
		}
	}
}
