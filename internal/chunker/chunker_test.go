package chunker

import "testing"

func TestStrongDelimiterFlushesFinal(t *testing.T) {
	c := New(10, 50)
	var chunks []Chunk
	chunks = append(chunks, c.Add("你好吗？")...)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %+v", len(chunks), chunks)
	}
	if !chunks[0].Final {
		t.Fatal("expected strong delimiter to produce a final chunk")
	}
	if chunks[0].Text != "你好吗？" {
		t.Fatalf("unexpected text %q", chunks[0].Text)
	}
}

func TestWeakDelimiterOnlyFlushesAboveMinSize(t *testing.T) {
	c := New(5, 50)

	// Short buffer: weak delimiter should not flush yet.
	chunks := c.Add("ab,")
	if len(chunks) != 0 {
		t.Fatalf("expected no flush below min size, got %+v", chunks)
	}

	// Grow past min size, then hit a weak delimiter.
	chunks = c.Add("cdefgh,")
	if len(chunks) != 1 {
		t.Fatalf("expected one weak flush, got %+v", chunks)
	}
	if chunks[0].Final {
		t.Fatal("expected weak-delimiter flush to be non-final")
	}
}

func TestMaxChunkSizeForcesFlush(t *testing.T) {
	c := New(2, 5)
	chunks := c.Add("abcdef")
	if len(chunks) != 1 {
		t.Fatalf("expected forced flush at max size, got %+v", chunks)
	}
	if chunks[0].Final {
		t.Fatal("expected max-size flush to be non-final")
	}
}

func TestFlushEmitsResidualAsFinal(t *testing.T) {
	c := New(10, 50)
	c.Add("residual text")
	chunk, ok := c.Flush()
	if !ok {
		t.Fatal("expected flush to emit residual buffer")
	}
	if !chunk.Final {
		t.Fatal("expected flush chunk to be final")
	}
	if chunk.Text != "residual text" {
		t.Fatalf("unexpected residual text %q", chunk.Text)
	}

	if _, ok := c.Flush(); ok {
		t.Fatal("expected no chunk from flushing an empty buffer")
	}
}

func TestSeqIDMonotonic(t *testing.T) {
	c := New(1, 3)
	var seqs []int
	for _, chunk := range c.Add("a,b,c,") {
		seqs = append(seqs, chunk.Seq)
	}
	if len(seqs) < 2 {
		t.Fatalf("expected multiple chunks to compare seq ids, got %+v", seqs)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("expected strictly increasing seq ids, got %v", seqs)
		}
	}
}
