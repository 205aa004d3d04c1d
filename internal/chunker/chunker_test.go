package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New(Config{}, nil)
	require.NotNil(t, c)
	assert.Equal(t, DefaultConfig(), c.Config())

	c = New(Config{TargetSize: 500, MinChunkSize: -1, MaxChunks: 5}, nil)
	assert.Equal(t, Config{TargetSize: 500, MinChunkSize: 0, MaxChunks: 5}, c.Config())
}

func TestChunk_SingleParagraph(t *testing.T) {
	text := Clean(strings.Repeat("word ", 500))
	require.Equal(t, 2499, len(text))

	chunks := New(DefaultConfig(), nil).ChunkWithTarget(text, 1000)

	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 1100)
		assert.Equal(t, strings.TrimSpace(chunk), chunk)
	}
	assert.Equal(t, text, strings.Join(chunks, " "))
}

func TestChunk_ShortText(t *testing.T) {
	c := New(DefaultConfig(), nil)

	assert.Equal(t, []string{"hello"}, c.Chunk("hello"))
	assert.Equal(t, []string{"hello"}, c.Chunk("  hello \n"))
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t"))
}

func TestChunk_Reconstruction(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about item %d. ", i, i*7)
		if i%9 == 0 {
			b.WriteString("Really? Yes! ")
		}
	}
	text := Clean(b.String())

	c := New(Config{MinChunkSize: -1}, nil)
	for _, target := range []int{150, 300, 777, 1000, 2048} {
		t.Run(fmt.Sprintf("target_%d", target), func(t *testing.T) {
			chunks := c.ChunkWithTarget(text, target)
			require.NotEmpty(t, chunks)
			for _, chunk := range chunks[:len(chunks)-1] {
				assert.LessOrEqual(t, utf8.RuneCountInString(chunk), target+100)
			}
			assert.Equal(t, text, strings.Join(chunks, " "))
		})
	}
}

func TestChunk_BoundaryPriority(t *testing.T) {
	c := New(DefaultConfig(), nil)

	t.Run("paragraph", func(t *testing.T) {
		para1 := strings.Repeat("alpha beta. ", 75)
		para2 := strings.Repeat("gamma delta ", 50)
		chunks := c.ChunkWithTarget(para1+"\n\n"+para2, 1000)

		require.Len(t, chunks, 2)
		assert.Equal(t, strings.TrimSpace(para1), chunks[0])
		assert.Equal(t, strings.TrimSpace(para2), chunks[1])
	})

	t.Run("sentence and newline", func(t *testing.T) {
		head := strings.Repeat("x ", 430) + "Done.\n" + strings.Repeat("y ", 40) + "More. "
		text := head + strings.Repeat("z ", 500)
		chunks := c.ChunkWithTarget(text, 1000)

		require.NotEmpty(t, chunks)
		assert.True(t, strings.HasSuffix(chunks[0], "Done."), chunks[0][len(chunks[0])-10:])
	})

	t.Run("sentence", func(t *testing.T) {
		text := strings.Repeat("x ", 450) + "End. " + strings.Repeat("y ", 400)
		chunks := c.ChunkWithTarget(text, 1000)

		require.Len(t, chunks, 2)
		assert.True(t, strings.HasSuffix(chunks[0], "End."))
		assert.True(t, strings.HasPrefix(chunks[1], "y"))
	})

	t.Run("word", func(t *testing.T) {
		text := strings.Repeat("abcd ", 300)
		chunks := c.ChunkWithTarget(text, 1000)

		require.Len(t, chunks, 2)
		for _, chunk := range chunks {
			for _, w := range strings.Fields(chunk) {
				assert.Equal(t, "abcd", w)
			}
		}
	})

	t.Run("hard cut", func(t *testing.T) {
		chunks := c.ChunkWithTarget(strings.Repeat("x", 2500), 1000)

		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0], 1000)
		assert.Len(t, chunks[1], 1000)
		assert.Len(t, chunks[2], 500)
	})
}

func TestChunk_Cap(t *testing.T) {
	c := New(Config{MaxChunks: 3}, nil)
	chunks := c.ChunkWithTarget(strings.Repeat("x", 10000), 1000)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 8000)
}

func TestChunk_MinimumSize(t *testing.T) {
	c := New(DefaultConfig(), nil)

	chunks := c.ChunkWithTarget(strings.Repeat("x", 1050), 1000)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 1000)

	// a lone short chunk survives
	assert.Equal(t, []string{"tiny"}, c.ChunkWithTarget("tiny", 1000))
}

func TestChunk_CountsRunes(t *testing.T) {
	c := New(DefaultConfig(), nil)
	chunks := c.ChunkWithTarget(strings.Repeat("é", 1500), 1000)

	require.Len(t, chunks, 2)
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[1]))
}

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  a\t\tb\n\nc\x00d  ", "a b cd"},
		{"", ""},
		{"\n\n", ""},
		{"one\r\ntwo", "one two"},
		{"bell\x07 ring\x7f", "bell ring"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.in), "%q", tt.in)
	}
}

func TestStripControl(t *testing.T) {
	assert.Equal(t, "ab\n\tc", StripControl("a\x00b\n\tc\r\n"))
	assert.Equal(t, "para one\n\npara two", StripControl("  para one\n\npara two\n"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
}
