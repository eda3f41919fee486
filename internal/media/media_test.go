package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rentonmap/internal/models"
	"rentonmap/internal/testutil"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURI(t *testing.T) {
	png := testutil.TinyPNG(t, 2, 2)

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "valid png", in: testutil.PNGDataURI(t, 2, 2)},
		{name: "plain url", in: "https://cdn.example.com/a.jpg", wantErr: true},
		{name: "no comma", in: "data:image/png;base64", wantErr: true},
		{name: "not base64", in: "data:image/png,abc", wantErr: true},
		{name: "garbage payload", in: "data:image/png;base64,!!!", wantErr: true},
		{name: "empty payload", in: "data:image/png;base64,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, data, err := DecodeDataURI(tt.in)
			if tt.wantErr {
				var appErr *models.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, models.CodeValidation, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "image/png", mediaType)
			assert.Equal(t, png, data)
		})
	}
}

func TestNormalizer(t *testing.T) {
	t.Run("fits large images", func(t *testing.T) {
		out, err := Normalizer{MaxDimension: 100}.Normalize(testutil.TinyPNG(t, 400, 50))
		require.NoError(t, err)
		assert.Equal(t, 100, out.Width)
		assert.Equal(t, "image/jpeg", out.ContentType)
		assert.Equal(t, ".jpg", out.Ext)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 100, cfg.Width)
	})

	t.Run("keeps small images", func(t *testing.T) {
		out, err := Normalizer{}.Normalize(testutil.TinyPNG(t, 40, 30))
		require.NoError(t, err)
		assert.Equal(t, 40, out.Width)
		assert.Equal(t, 30, out.Height)
	})

	t.Run("webp output", func(t *testing.T) {
		out, err := Normalizer{WebP: true}.Normalize(testutil.TinyPNG(t, 16, 16))
		require.NoError(t, err)
		assert.Equal(t, "image/webp", out.ContentType)
		_, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
		require.NoError(t, err)
		assert.Equal(t, "webp", format)
	})

	t.Run("rejects non images", func(t *testing.T) {
		_, err := Normalizer{}.Normalize([]byte("definitely not an image"))
		assert.Equal(t, 400, models.StatusFor(err))
	})
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "http://localhost:8375/media/")
	ctx := context.Background()

	url, err := store.Put(ctx, "rental_properties_pictures/a.jpg", "image/jpeg", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8375/media/rental_properties_pictures/a.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "rental_properties_pictures", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	key, ok := store.KeyFromURL(url)
	require.True(t, ok)
	assert.Equal(t, "rental_properties_pictures/a.jpg", key)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key), "deleting twice is fine")

	for _, foreign := range []string{
		"https://elsewhere.example.com/a.jpg",
		"http://localhost:8375/media/../secret",
		"http://localhost:8375/media/",
	} {
		_, ok := store.KeyFromURL(foreign)
		assert.False(t, ok, foreign)
	}
	_, err = store.Put(ctx, "../escape.jpg", "image/jpeg", []byte("x"))
	assert.Error(t, err)
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []string
	failPut bool
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.failPut {
		return nil, errors.New("s3 unavailable")
	}
	f.puts = append(f.puts, in)
	return &manager.UploadOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{}
	store := newS3Store(fake, fake, "rentonmap-media", "ap-south-1", "")
	ctx := context.Background()

	url, err := store.Put(ctx, "rental_properties_pictures/a b.webp", "image/webp", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "https://rentonmap-media.s3.ap-south-1.amazonaws.com/rental_properties_pictures/a%20b.webp", url)
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "rentonmap-media", aws.ToString(fake.puts[0].Bucket))
	assert.Equal(t, "image/webp", aws.ToString(fake.puts[0].ContentType))

	key, ok := store.KeyFromURL(url)
	require.True(t, ok)
	assert.Equal(t, "rental_properties_pictures/a b.webp", key)

	require.NoError(t, store.Delete(ctx, key))
	assert.Equal(t, []string{key}, fake.deletes)

	cdn := newS3Store(fake, fake, "rentonmap-media", "ap-south-1", "https://cdn.example.com/")
	_, ok = cdn.KeyFromURL("https://cdn.example.com/rental_properties_pictures/x.jpg")
	assert.True(t, ok)
}

type memoryStore struct {
	objects map[string][]byte
	failOn  int
	puts    int
}

func newMemoryStore() *memoryStore { return &memoryStore{objects: map[string][]byte{}} }

func (m *memoryStore) Driver() string { return "memory" }

func (m *memoryStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	m.puts++
	if m.failOn > 0 && m.puts == m.failOn {
		return "", errors.New("host down")
	}
	m.objects[key] = data
	return "mem://" + key, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return errors.New("missing")
	}
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) KeyFromURL(url string) (string, bool) {
	return strings.CutPrefix(url, "mem://")
}

func TestUploader_ResolveImages(t *testing.T) {
	store := newMemoryStore()
	up := NewUploader(store, Options{})
	ctx := context.Background()

	got, err := up.ResolveImages(ctx, []string{
		"https://cdn.example.com/existing.jpg",
		testutil.PNGDataURI(t, 4, 4),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://cdn.example.com/existing.jpg", got[0])
	assert.True(t, strings.HasPrefix(got[1], "mem://"+DefaultFolder+"/"))
	assert.True(t, strings.HasSuffix(got[1], ".jpg"))
	assert.Len(t, store.objects, 1)

	assert.Zero(t, up.DeleteImages(ctx, got), "foreign URLs are skipped")
	assert.Empty(t, store.objects)
	assert.Equal(t, 1, up.DeleteImages(ctx, []string{"mem://gone.jpg"}))
}

func TestUploader_CleansUpOnFailure(t *testing.T) {
	store := newMemoryStore()
	store.failOn = 2
	up := NewUploader(store, Options{})

	_, err := up.ResolveImages(context.Background(), []string{
		testutil.PNGDataURI(t, 4, 4),
		testutil.PNGDataURI(t, 4, 4),
	})
	assert.Equal(t, 500, models.StatusFor(err))
	assert.Empty(t, store.objects)
}

func TestUploader_RejectsOversize(t *testing.T) {
	up := NewUploader(newMemoryStore(), Options{MaxUploadMB: 1})
	big := "data:image/png;base64," + strings.Repeat("A", 2*1024*1024)

	_, err := up.ResolveImages(context.Background(), []string{big})
	assert.Equal(t, 400, models.StatusFor(err))
}
