package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-fleet/pkg/apperr"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir(), "/media/blobs/")

	url, err := s.Put(ctx, "videos/a.mp4", strings.NewReader("frames"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "/media/blobs/videos/a.mp4", url)

	rc, err := s.Get(ctx, "videos/a.mp4")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))

	require.NoError(t, s.Delete(ctx, "videos/a.mp4"))
	_, err = s.Get(ctx, "videos/a.mp4")
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.NoError(t, s.Delete(ctx, "videos/a.mp4"))
}

func TestLocalStoreKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(filepath.Join(root, "blobs"), "/media/blobs")

	_, err := s.Put(context.Background(), "../../escape.txt", strings.NewReader("x"), "text/plain")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "blobs", "escape.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = s.Put(context.Background(), "", strings.NewReader("x"), "")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestPutFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photos.zip")
	require.NoError(t, os.WriteFile(src, []byte("PK"), 0644))
	s := NewLocalStore(filepath.Join(dir, "blobs"), "/media/blobs")

	url, err := PutFile(context.Background(), s, "photos/photos.zip", src)
	require.NoError(t, err)
	assert.Equal(t, "/media/blobs/photos/photos.zip", url)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentType("a/b.MP4"))
	assert.Equal(t, "application/zip", ContentType("x.zip"))
	assert.Equal(t, "application/octet-stream", ContentType("noext"))
}

func TestS3StoreURL(t *testing.T) {
	s, err := NewS3Store(S3Config{Bucket: "fleet", Endpoint: "https://s3.example.com", BaseURL: "https://media.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/videos/a.mp4", s.URL("videos/a.mp4"))

	s, err = NewS3Store(S3Config{Bucket: "fleet", Endpoint: "https://s3.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/fleet/videos/a.mp4", s.URL("videos/a.mp4"))
}
