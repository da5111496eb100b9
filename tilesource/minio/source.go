package minio

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/pcedit/tile"
	"github.com/hupe1980/pcedit/tilesource"
	"github.com/minio/minio-go/v7"
)

// Source implements tilesource.Source for MinIO.
type Source struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewSource creates a source reading from bucket below rootPrefix.
func NewSource(client *minio.Client, bucket, rootPrefix string) *Source {
	return &Source{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Source) key(datasetID string, t tile.Tile) string {
	return path.Join(s.prefix, tilesource.ObjectKey(datasetID, t))
}

// Fetch implements tilesource.Source.
func (s *Source) Fetch(ctx context.Context, datasetID string, t tile.Tile) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(datasetID, t), minio.GetObjectOptions{})
	if err != nil {
		return nil, &tilesource.FetchError{TileID: t.ID, Err: classify(err)}
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, &tilesource.FetchError{TileID: t.ID, Err: classify(err)}
	}
	return data, nil
}

// Keys lists the tile object names of a dataset relative to the root prefix.
func (s *Source) Keys(ctx context.Context, datasetID string) ([]string, error) {
	fullPrefix := path.Join(s.prefix, datasetID, "tiles") + "/"

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, s.prefix), "/")
		if name != "" {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func classify(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return tilesource.ErrNotFound
	default:
		return err
	}
}
