package rag

import (
	"testing"

	"go.uber.org/zap"
)

func TestLexicalIndex_RanksByTermRelevance(t *testing.T) {
	t.Parallel()

	chunks := []Chunk{
		{ID: "a", Text: "học phí học kỳ một của sinh viên", SourceID: "s"},
		{ID: "b", Text: "quy chế thi và kiểm tra", SourceID: "s"},
		{ID: "c", Text: "học phí và miễn giảm học phí", SourceID: "s"},
	}
	idx := BuildLexicalIndex(DefaultLexicalConfig(), chunks, zap.NewNop())

	results := idx.Search("học phí", 3)
	if len(results) == 0 {
		t.Fatal("expected matches for query terms")
	}
	if results[0].Chunk.ID != "c" {
		t.Fatalf("expected chunk with highest term frequency first, got %s", results[0].Chunk.ID)
	}
	for _, r := range results {
		if r.Chunk.ID == "b" {
			t.Fatal("chunk without any query term must not match")
		}
	}
}

func TestLexicalIndex_NoMatchReturnsEmpty(t *testing.T) {
	t.Parallel()

	idx := BuildLexicalIndex(DefaultLexicalConfig(), []Chunk{{ID: "a", Text: "nội dung bất kỳ"}}, zap.NewNop())

	if got := idx.Search("zzz-không-tồn-tại", 5); len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
	if got := idx.Search("", 5); len(got) != 0 {
		t.Fatalf("expected no results for empty query, got %d", len(got))
	}
}

func TestLexicalIndex_RespectsK(t *testing.T) {
	t.Parallel()

	chunks := make([]Chunk, 0, 10)
	for i := 0; i < 10; i++ {
		chunks = append(chunks, Chunk{ID: string(rune('a' + i)), Text: "điểm thi"})
	}
	idx := BuildLexicalIndex(DefaultLexicalConfig(), chunks, zap.NewNop())

	if got := idx.Search("điểm", 3); len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
}
