package s3

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/pcedit/tile"
	"github.com/hupe1980/pcedit/tilesource"
)

// Client is the subset of the S3 API used by Source.
type Client interface {
	manager.DownloadAPIClient
	s3.ListObjectsV2APIClient
}

// Source implements tilesource.Source for S3.
type Source struct {
	client     Client
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

// NewSource creates a source reading from bucket below rootPrefix.
func NewSource(client Client, bucket, rootPrefix string, optFns ...func(*manager.Downloader)) *Source {
	return &Source{
		client:     client,
		downloader: manager.NewDownloader(client, optFns...),
		bucket:     bucket,
		prefix:     rootPrefix,
	}
}

// New loads the default AWS configuration and creates a Source.
func New(ctx context.Context, bucket, rootPrefix string, cfgFns ...func(*config.LoadOptions) error) (*Source, error) {
	cfg, err := config.LoadDefaultConfig(ctx, cfgFns...)
	if err != nil {
		return nil, err
	}
	return NewSource(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

func (s *Source) key(datasetID string, t tile.Tile) string {
	return path.Join(s.prefix, tilesource.ObjectKey(datasetID, t))
}

// Fetch implements tilesource.Source.
func (s *Source) Fetch(ctx context.Context, datasetID string, t tile.Tile) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(datasetID, t)),
	})
	if err != nil {
		if isNotFound(err) {
			err = tilesource.ErrNotFound
		}
		return nil, &tilesource.FetchError{TileID: t.ID, Err: err}
	}
	return buf.Bytes(), nil
}

// Keys lists the tile object names of a dataset relative to the root prefix.
func (s *Source) Keys(ctx context.Context, datasetID string) ([]string, error) {
	fullPrefix := path.Join(s.prefix, datasetID, "tiles") + "/"

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			keys = append(keys, strings.TrimPrefix(rel, "/"))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "NoSuchKey"
}
