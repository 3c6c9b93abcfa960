package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSource_ReadAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.csv"), []byte("action,email\n"), 0o600))

	src := NewLocalSource(dir, 64)
	raw, err := src.ReadAll(context.Background(), "users.csv")
	require.NoError(t, err)
	assert.Equal(t, "action,email\n", string(raw))

	raw, err = src.ReadAll(context.Background(), filepath.Join(dir, "users.csv"))
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	_, err = src.ReadAll(context.Background(), "missing.csv")
	assert.Error(t, err)
}

func TestReadLimited(t *testing.T) {
	raw, err := ReadLimited(strings.NewReader("12345"), 5, "x")
	require.NoError(t, err)
	assert.Equal(t, "12345", string(raw))

	_, err = ReadLimited(strings.NewReader("123456"), 5, "x")
	assert.ErrorIs(t, err, ErrTooLarge)

	raw, err = ReadLimited(strings.NewReader("123456"), 0, "x")
	require.NoError(t, err)
	assert.Len(t, raw, 6)
}

func TestLocalSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalSource("", 0).ReadAll(ctx, "whatever.csv")
	assert.ErrorIs(t, err, context.Canceled)
}
