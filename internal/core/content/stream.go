// Package content bounds the cost of processing arbitrarily large pages:
// a pull-based chunk stream for raw bytes and a goquery-backed processor
// for HTML, both capped so a single document never buffers more than the
// configured ceiling.
package content

// Chunk is one bounded slice of a streamed document. Chunks are transient:
// produced only while the parent stream is active, never persisted.
type Chunk struct {
	ID    int
	Data  []byte
	Final bool
}

// ChunkStream yields a document in chunks of at most chunkSize bytes,
// stopping once maxSize total bytes have been emitted. Single-pass and not
// restartable: once Next returns ok=false the stream is exhausted.
type ChunkStream struct {
	src       []byte
	chunkSize int
	maxSize   int
	offset    int
	nextID    int
	done      bool
}

// NewChunkStream builds a stream over content. chunkSize and maxSize must be
// positive; non-positive values fall back to sane defaults.
func NewChunkStream(content []byte, chunkSize, maxSize int) *ChunkStream {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	if maxSize <= 0 {
		maxSize = len(content)
	}
	return &ChunkStream{src: content, chunkSize: chunkSize, maxSize: maxSize}
}

// Next returns the next chunk. The final emitted chunk has Final set; after
// that, ok is false. Emitted bytes across all chunks never exceed maxSize.
func (s *ChunkStream) Next() (Chunk, bool) {
	if s.done {
		return Chunk{}, false
	}

	remaining := s.maxSize - s.offset
	if remaining > len(s.src)-s.offset {
		remaining = len(s.src) - s.offset
	}
	if remaining <= 0 {
		// Empty input still yields one final empty chunk so consumers
		// always observe exactly one Final.
		s.done = true
		return Chunk{ID: s.nextID, Final: true}, true
	}

	n := s.chunkSize
	if n > remaining {
		n = remaining
	}
	chunk := Chunk{ID: s.nextID, Data: s.src[s.offset : s.offset+n]}
	s.offset += n
	s.nextID++

	if s.offset >= s.maxSize || s.offset >= len(s.src) {
		chunk.Final = true
		s.done = true
	}
	return chunk, true
}

// Emitted reports the total bytes handed out so far.
func (s *ChunkStream) Emitted() int { return s.offset }

// Truncated reports whether the source was longer than the emission cap.
func (s *ChunkStream) Truncated() bool { return s.done && s.offset < len(s.src) }
