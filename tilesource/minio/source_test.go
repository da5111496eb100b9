package minio

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/pcedit/tile"
	"github.com/hupe1980/pcedit/tilesource"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(minio.ErrorResponse{Code: "NoSuchKey"}), tilesource.ErrNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, classify(other))
}

func TestSource_Key(t *testing.T) {
	s := NewSource(nil, "datasets", "pc")
	assert.Equal(t, "pc/ds/tiles/0_2_1.bin", s.key("ds", tile.Tile{X: 2, Y: 1}))
}

// TestSource_Integration requires a running MinIO instance.
func TestSource_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	const bucket = "test-pcedit"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	payload := tile.Encode([]tile.Point{{X: 1, Intensity: 9}})
	_, err = client.PutObject(ctx, bucket, "it/ds/tiles/0_0_0.bin", bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.RemoveObject(ctx, bucket, "it/ds/tiles/0_0_0.bin", minio.RemoveObjectOptions{})
	})

	src := NewSource(client, bucket, "it")
	data, err := src.Fetch(ctx, "ds", tile.Tile{ID: "t"})
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	keys, err := src.Keys(ctx, "ds")
	require.NoError(t, err)
	assert.Equal(t, []string{"ds/tiles/0_0_0.bin"}, keys)

	_, err = src.Fetch(ctx, "ds", tile.Tile{ID: "missing", X: 5})
	assert.ErrorIs(t, err, tilesource.ErrNotFound)
}
