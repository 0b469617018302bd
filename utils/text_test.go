package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImageCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"画像 12点", 12, false},
		{"全 ３４ 枚", 34, false},
		{"(7)", 7, false},
		{"3 / 15", 3, false},
		{"画像なし", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseImageCount(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadKeyword(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	t.Run("last non-empty line wins", func(t *testing.T) {
		p := write("multi.txt", "渋谷区\n  港区 マンション  \n\n\n")
		kw, err := ReadKeyword(p)
		require.NoError(t, err)
		assert.Equal(t, "港区 マンション", kw)
	})

	t.Run("utf-8 bom is dropped", func(t *testing.T) {
		p := write("bom.txt", "\ufeff新宿")
		kw, err := ReadKeyword(p)
		require.NoError(t, err)
		assert.Equal(t, "新宿", kw)
	})

	t.Run("crlf", func(t *testing.T) {
		p := write("crlf.txt", "a\r\nb\r\n")
		kw, err := ReadKeyword(p)
		require.NoError(t, err)
		assert.Equal(t, "b", kw)
	})

	t.Run("blank file", func(t *testing.T) {
		p := write("blank.txt", "\n  \n")
		_, err := ReadKeyword(p)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadKeyword(filepath.Join(dir, "nope.txt"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
