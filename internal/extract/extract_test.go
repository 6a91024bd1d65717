package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestExtractPlainText(t *testing.T) {
	e := New()
	tests := []struct {
		name string
		data []byte
		kind string
		want string
	}{
		{"utf8", []byte("Hello,   world.\n"), ".txt", "Hello, world."},
		{"bom", []byte("\xef\xbb\xbfTitle"), ".md", "Title"},
		{"latin1", []byte{'c', 'a', 'f', 0xe9}, "notes.TXT", "café"},
		{"filename", []byte("# Heading"), "README.md", "# Heading"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Extract(tt.data, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractErrors(t *testing.T) {
	e := New()
	_, err := e.Extract([]byte("x"), ".exe")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	_, err = e.Extract([]byte("x"), "pdf")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = e.Extract([]byte("definitely not a zip archive"), ".docx")
	assert.ErrorIs(t, err, domain.ErrUnreadableFile)
}

func TestSupports(t *testing.T) {
	e := New()
	for _, k := range []string{".txt", ".md", ".pdf", ".docx", ".odt", "a.PDF"} {
		assert.True(t, e.Supports(k), k)
	}
	for _, k := range []string{".exe", "", "txt", ".doc"} {
		assert.False(t, e.Supports(k), k)
	}
}

func TestClean(t *testing.T) {
	in := "Intro  text\r\n\r\n\r\nPage 3\r\nBody\tline\n12\nEnd"
	assert.Equal(t, "Intro text\n\nBody line\nEnd", Clean(in))
	assert.Equal(t, "Keep 12 apples.", Clean("  Keep 12 apples.  "))
}
