package localstore

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestUploadWritesFile(t *testing.T) {
	store, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "../../etc/page.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "file://"))
	require.True(t, strings.HasSuffix(url, "-page.png"))

	data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
}

func TestUploadHonoursCancellation(t *testing.T) {
	store, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Upload(ctx, "page.png", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)
}
