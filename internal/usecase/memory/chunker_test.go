package memory

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
)

func utter(meetingID uuid.UUID, speaker entities.Speaker, text string, ts int64) entities.Utterance {
	return *entities.NewUtterance(meetingID, speaker, text, ts)
}

func TestChunkerFinalizesOnTokenCeiling(t *testing.T) {
	meetingID := uuid.New()
	chunker := NewChunker(meetingID, 0, testRAGConfig(), nil)

	// Each utterance is ~11 tokens (ten words plus the label); the 50-token
	// ceiling closes the buffer before the fifth one joins it.
	text := strings.Repeat("word ", 9) + "word"
	var finalized []*entities.Chunk
	for i := 0; i < 5; i++ {
		finalized = append(finalized, chunker.Append(utter(meetingID, entities.SpeakerSelf, text, int64(i*1000)))...)
	}

	if len(finalized) != 1 {
		t.Fatalf("expected 1 finalized chunk, got %d", len(finalized))
	}
	if finalized[0].TokenCount > testRAGConfig().ChunkTokenCeiling {
		t.Errorf("chunk token count %d exceeds ceiling", finalized[0].TokenCount)
	}
	if finalized[0].ChunkIndex != 0 {
		t.Errorf("expected chunk index 0, got %d", finalized[0].ChunkIndex)
	}
	if !chunker.Buffered() {
		t.Error("expected the overflowing utterance to remain buffered")
	}
}

func TestChunkerOversizedUtteranceBecomesOneChunk(t *testing.T) {
	meetingID := uuid.New()
	chunker := NewChunker(meetingID, 0, testRAGConfig(), nil)

	// Well past the 50-token ceiling in a single utterance.
	text := strings.TrimSpace(strings.Repeat("word ", 120))
	finalized := chunker.Append(utter(meetingID, entities.SpeakerOther, text, 0))

	if len(finalized) != 1 {
		t.Fatalf("expected exactly 1 chunk for an oversized utterance, got %d", len(finalized))
	}
	if chunker.Buffered() {
		t.Error("buffer should be empty after the oversized utterance finalized")
	}
	if finalized[0].TokenCount <= testRAGConfig().ChunkTokenCeiling {
		t.Errorf("expected the oversized chunk to carry its real token count, got %d", finalized[0].TokenCount)
	}
}

func TestChunkerSpeakerChangeBreak(t *testing.T) {
	meetingID := uuid.New()
	chunker := NewChunker(meetingID, 0, testRAGConfig(), nil)

	// 15 tokens buffered, past the 10-token minimum.
	chunker.Append(utter(meetingID, entities.SpeakerSelf, strings.TrimSpace(strings.Repeat("alpha ", 14)), 0))

	finalized := chunker.Append(utter(meetingID, entities.SpeakerOther, "short reply", 2000))
	if len(finalized) != 1 {
		t.Fatalf("expected speaker change to finalize the buffer, got %d chunks", len(finalized))
	}
	if finalized[0].Speaker == nil || *finalized[0].Speaker != entities.SpeakerSelf {
		t.Error("expected the finalized chunk to carry the uniform speaker")
	}
}

func TestChunkerSpeakerChangeBelowMinimumKeepsBuffering(t *testing.T) {
	meetingID := uuid.New()
	chunker := NewChunker(meetingID, 0, testRAGConfig(), nil)

	chunker.Append(utter(meetingID, entities.SpeakerSelf, "hi", 0))
	finalized := chunker.Append(utter(meetingID, entities.SpeakerOther, "hello", 500))
	if len(finalized) != 0 {
		t.Fatalf("expected no chunk below the minimum size, got %d", len(finalized))
	}

	final := chunker.Flush()
	if final == nil {
		t.Fatal("expected flush to materialize the mixed buffer")
	}
	if final.Speaker != nil {
		t.Error("expected nil speaker for a mixed-speaker chunk")
	}
	if !strings.Contains(final.CleanedText, "Me: hi") || !strings.Contains(final.CleanedText, "Them: hello") {
		t.Errorf("unexpected cleaned text: %q", final.CleanedText)
	}
}

func TestChunkerMaxSpanBreak(t *testing.T) {
	meetingID := uuid.New()
	chunker := NewChunker(meetingID, 0, testRAGConfig(), nil)

	chunker.Append(utter(meetingID, entities.SpeakerSelf, "kick off", 0))
	// Three minutes later, past the 2-minute span limit.
	finalized := chunker.Append(utter(meetingID, entities.SpeakerSelf, "still here", 3*60*1000))
	if len(finalized) != 1 {
		t.Fatalf("expected span break to finalize, got %d chunks", len(finalized))
	}
	if finalized[0].StartTS != 0 || finalized[0].EndTS != 0 {
		t.Errorf("expected the finalized chunk to span only the first utterance, got [%d,%d]", finalized[0].StartTS, finalized[0].EndTS)
	}
}

func TestChunkerDenseIndicesAndResume(t *testing.T) {
	meetingID := uuid.New()
	chunker := NewChunker(meetingID, 3, testRAGConfig(), nil)

	text := strings.TrimSpace(strings.Repeat("word ", 120))
	var all []*entities.Chunk
	for i := 0; i < 3; i++ {
		all = append(all, chunker.Append(utter(meetingID, entities.SpeakerSelf, text, int64(i*1000)))...)
	}

	for i, chunk := range all {
		if chunk.ChunkIndex != 3+i {
			t.Errorf("chunk %d: expected index %d, got %d", i, 3+i, chunk.ChunkIndex)
		}
	}
	if chunker.NextIndex() != 6 {
		t.Errorf("expected next index 6, got %d", chunker.NextIndex())
	}
}

func TestChunkerFlushEmptyReturnsNil(t *testing.T) {
	chunker := NewChunker(uuid.New(), 0, testRAGConfig(), nil)
	if chunker.Flush() != nil {
		t.Error("expected nil flush on an empty buffer")
	}
}
