package audio

// Chunker regroups arbitrary-length microphone frames into fixed-size
// sample blocks. Browsers deliver whatever frame size their audio stack
// uses; the live session wants uniform chunks.
//
// Not safe for concurrent use: one chunker belongs to one capture pipeline.
type Chunker struct {
	chunkSamples int
	sampleRate   int
	buf          []float32
}

// NewChunker creates a chunker emitting blocks of chunkSamples samples.
func NewChunker(chunkSamples, sampleRate int) *Chunker {
	return &Chunker{
		chunkSamples: chunkSamples,
		sampleRate:   sampleRate,
		buf:          make([]float32, 0, chunkSamples*2),
	}
}

// Push appends a frame and returns every complete chunk now available,
// converted to the wire format. The returned chunks own their memory and
// never alias the input frame.
func (c *Chunker) Push(frame []float32) []Chunk {
	c.buf = append(c.buf, frame...)

	var chunks []Chunk
	for len(c.buf) >= c.chunkSamples {
		block := c.buf[:c.chunkSamples]
		chunks = append(chunks, Chunk{
			PCM:        PCM16FromFloat32(block),
			SampleRate: c.sampleRate,
		})
		c.buf = c.buf[c.chunkSamples:]
	}

	// Reclaim the consumed prefix so the buffer does not grow unbounded.
	if len(chunks) > 0 {
		remainder := make([]float32, len(c.buf), c.chunkSamples*2)
		copy(remainder, c.buf)
		c.buf = remainder
	}

	return chunks
}

// Flush returns any buffered partial chunk, or a zero Chunk and false if
// the buffer is empty. Called when capture stops.
func (c *Chunker) Flush() (Chunk, bool) {
	if len(c.buf) == 0 {
		return Chunk{}, false
	}
	chunk := Chunk{
		PCM:        PCM16FromFloat32(c.buf),
		SampleRate: c.sampleRate,
	}
	c.buf = c.buf[:0]
	return chunk, true
}

// Reset discards any buffered samples.
func (c *Chunker) Reset() {
	c.buf = c.buf[:0]
}
