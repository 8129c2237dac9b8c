package memory

import (
	"strings"

	"github.com/google/uuid"

	"github.com/johnquangdev/meeting-memory/internal/domain/entities"
	"github.com/johnquangdev/meeting-memory/pkg/config"
	"github.com/johnquangdev/meeting-memory/pkg/tokenizer"
)

// Chunker accumulates a meeting's utterances and finalizes them into
// bounded, speaker-coherent chunks. A chunk is finalized when the buffered
// token estimate reaches the configured ceiling, when the buffered span
// exceeds the configured maximum, or when the speaker changes after the
// buffer has reached a minimum size.
//
// A Chunker is per-meeting state and is not safe for concurrent use; the
// service serializes Append/Flush per meeting.
type Chunker struct {
	meetingID uuid.UUID
	cfg       config.RAGConfig
	estimator *tokenizer.Estimator

	nextIndex    int
	buffer       []entities.Utterance
	bufferTokens int
}

// NewChunker creates a chunker for one meeting. startIndex is the next
// dense chunk index, so a restarted process resumes numbering where the
// stored chunks left off.
func NewChunker(meetingID uuid.UUID, startIndex int, cfg config.RAGConfig, estimator *tokenizer.Estimator) *Chunker {
	if estimator == nil {
		estimator = tokenizer.New()
	}
	return &Chunker{
		meetingID: meetingID,
		cfg:       cfg,
		estimator: estimator,
		nextIndex: startIndex,
	}
}

// utteranceTokens counts an utterance's contribution to a chunk: its text
// plus the one-token speaker label.
func (c *Chunker) utteranceTokens(u entities.Utterance) int {
	return 1 + c.estimator.Estimate(u.Text)
}

// Append adds one utterance to the buffer and returns zero or more newly
// finalized chunks. An utterance is never dropped: a single utterance
// larger than the token ceiling still becomes exactly one chunk.
func (c *Chunker) Append(u entities.Utterance) []*entities.Chunk {
	var finalized []*entities.Chunk

	uTokens := c.utteranceTokens(u)

	if len(c.buffer) > 0 {
		last := c.buffer[len(c.buffer)-1]

		// Speaker change after the buffer reached its minimum size keeps
		// chunks speaker-coherent.
		speakerBreak := u.Speaker != last.Speaker && c.bufferTokens >= c.cfg.ChunkMinTokens

		// Adding this utterance would overflow the ceiling; close the
		// buffer first so multi-utterance chunks never exceed it.
		overflow := c.bufferTokens+uTokens > c.cfg.ChunkTokenCeiling

		// Wall-clock span since the buffer's first utterance.
		span := u.TimestampMS - c.buffer[0].TimestampMS
		spanBreak := span > c.cfg.ChunkMaxSpan.Milliseconds()

		if speakerBreak || overflow || spanBreak {
			finalized = append(finalized, c.finalize())
		}
	}

	c.buffer = append(c.buffer, u)
	c.bufferTokens += uTokens

	// An oversized single utterance becomes its own chunk immediately.
	if c.bufferTokens >= c.cfg.ChunkTokenCeiling {
		finalized = append(finalized, c.finalize())
	}

	return finalized
}

// Flush forces materialization of any buffered remainder, used at meeting
// end. Returns nil when the buffer is empty.
func (c *Chunker) Flush() *entities.Chunk {
	if len(c.buffer) == 0 {
		return nil
	}
	return c.finalize()
}

// finalize turns the current buffer into a chunk and resets the buffer
func (c *Chunker) finalize() *entities.Chunk {
	var sb strings.Builder
	speaker := c.buffer[0].Speaker
	uniformSpeaker := true

	for i, u := range c.buffer {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(u.Speaker.Label())
		sb.WriteByte(' ')
		sb.WriteString(u.Text)
		if u.Speaker != speaker {
			uniformSpeaker = false
		}
	}

	var chunkSpeaker *entities.Speaker
	if uniformSpeaker {
		s := speaker
		chunkSpeaker = &s
	}

	chunk := entities.NewChunk(
		c.meetingID,
		c.nextIndex,
		chunkSpeaker,
		c.buffer[0].TimestampMS,
		c.buffer[len(c.buffer)-1].TimestampMS,
		sb.String(),
		c.bufferTokens,
	)

	c.nextIndex++
	c.buffer = c.buffer[:0]
	c.bufferTokens = 0
	return chunk
}

// NextIndex returns the index the next finalized chunk will receive
func (c *Chunker) NextIndex() int {
	return c.nextIndex
}

// Buffered reports whether any utterances are waiting in the buffer
func (c *Chunker) Buffered() bool {
	return len(c.buffer) > 0
}
