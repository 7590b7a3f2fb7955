package objectstore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	pattern := regexp.MustCompile(`^([0-9a-f-]+|uploads)/[0-9a-f]{8}_`)

	tests := map[string]string{
		"b7e1c2/statement.pdf":   "b7e1c2/",
		"statement.pdf":          "uploads/",
		"../../etc/passwd":       "etc/",
		`user\win\statement.pdf`: "user/win/",
	}
	for hint, prefix := range tests {
		key := NewKey(hint)
		assert.True(t, strings.HasPrefix(key, prefix), "%s -> %s", hint, key)
	}

	assert.Regexp(t, pattern, NewKey("b7e1c2/statement.pdf"))
	assert.NotEqual(t, NewKey("a/b.pdf"), NewKey("a/b.pdf"))
}

func TestKeyPrefix(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p := keyPrefix()
		assert.Regexp(t, `^[0-9a-f]{8}$`, p)
		seen[p] = true
	}
	assert.Greater(t, len(seen), 1)
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	key, err := s.Put(ctx, []byte("content"), "user-1/statement.pdf")
	require.NoError(t, err)
	assert.Contains(t, key, "user-1/")
	assert.Contains(t, key, "_statement.pdf")

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	ok, err := s.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, key)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestDir(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	testStore(t, d)
}
