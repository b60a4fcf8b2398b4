package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_Empty(t *testing.T) {
	s := New(100, 20)
	if got := s.Split(""); got != nil {
		t.Errorf("empty input should yield nil, got %v", got)
	}
	if got := s.Split("   \n\t  "); got != nil {
		t.Errorf("whitespace input should yield nil, got %v", got)
	}
}

func TestSplit_ShortText(t *testing.T) {
	s := New(100, 20)
	got := s.Split("hello world")
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("short text should be a single chunk, got %v", got)
	}
}

func TestSplit_HardCutChunkCount(t *testing.T) {
	// No separators present, so the splitter falls back to fixed windows.
	// For L characters, size C and overlap O the window count is
	// ceil((L-O)/(C-O)).
	tests := []struct {
		length, size, overlap int
	}{
		{10, 5, 2},
		{100, 30, 10},
		{1000, 200, 50},
		{30, 30, 10},
		{31, 30, 10},
	}
	for _, tt := range tests {
		text := strings.Repeat("x", tt.length)
		s := New(tt.size, tt.overlap)
		got := len(s.Split(text))

		stride := tt.size - tt.overlap
		want := (tt.length - tt.overlap + stride - 1) / stride
		if want < 1 {
			want = 1
		}
		if got != want {
			t.Errorf("L=%d C=%d O=%d: got %d chunks, want %d",
				tt.length, tt.size, tt.overlap, got, want)
		}
	}
}

func TestSplit_NoChunkFarOverSize(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	s := New(120, 30)
	for i, c := range s.Split(text) {
		// Overlap seeding can push a chunk past size by one piece.
		if n := utf8.RuneCountInString(c); n > 2*s.Size() {
			t.Errorf("chunk %d has %d chars, far over size %d", i, n, s.Size())
		}
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	text := "First paragraph of the document.\n\nSecond paragraph follows here.\n\nThird one closes it."
	s := New(40, 0)
	chunks := s.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d: %v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0], "First paragraph") {
		t.Errorf("first chunk should hold first paragraph, got %q", chunks[0])
	}
	if !strings.Contains(chunks[1], "Second paragraph") {
		t.Errorf("second chunk should hold second paragraph, got %q", chunks[1])
	}
}

func TestSplit_SentenceBoundaries(t *testing.T) {
	text := "Alpha is first. Beta comes second. Gamma is third. Delta ends it."
	s := New(35, 0)
	chunks := s.Split(text)
	for i, c := range chunks {
		if strings.HasPrefix(c, " ") {
			t.Errorf("chunk %d starts with whitespace: %q", i, c)
		}
	}
	joined := strings.Join(chunks, " ")
	for _, word := range []string{"Alpha", "Beta", "Gamma", "Delta"} {
		if !strings.Contains(joined, word) {
			t.Errorf("word %q lost during splitting", word)
		}
	}
}

func TestSplit_OverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30) // no separators
	s := New(100, 20)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-20:]
		if !strings.HasPrefix(chunks[i], prevTail) {
			t.Errorf("chunk %d does not start with previous chunk's tail", i)
		}
	}
}

func TestSplit_AllContentPreserved(t *testing.T) {
	text := "One two three four five six seven eight nine ten eleven twelve."
	s := New(20, 5)
	joined := strings.Join(s.Split(text), " ")
	for _, word := range strings.Fields(strings.ReplaceAll(text, ".", "")) {
		if !strings.Contains(joined, word) {
			t.Errorf("word %q missing from chunks", word)
		}
	}
}

func TestNew_ClampsBadConfig(t *testing.T) {
	s := New(0, -5)
	if s.Size() <= 0 {
		t.Error("size should fall back to a positive default")
	}
	if s.Overlap() < 0 {
		t.Error("negative overlap should be clamped to zero")
	}

	s = New(100, 100)
	if s.Overlap() >= s.Size() {
		t.Errorf("overlap %d should be clamped below size %d", s.Overlap(), s.Size())
	}
}
