package main

import (
	"context"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/hupe1980/pcedit"
	"github.com/hupe1980/pcedit/config"
	"github.com/hupe1980/pcedit/tilesource"
	miniosource "github.com/hupe1980/pcedit/tilesource/minio"
	s3source "github.com/hupe1980/pcedit/tilesource/s3"
)

type sourceFlags struct {
	kind          string
	root          string
	bucket        string
	prefix        string
	minioEndpoint string
	minioSecure   bool
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "source", "http", "tile source: local, http, s3 or minio")
	cmd.Flags().StringVar(&f.root, "root", "", "dataset root directory for --source local")
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "bucket for --source s3 or minio")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "key prefix inside the bucket")
	cmd.Flags().StringVar(&f.minioEndpoint, "minio-endpoint", "localhost:9000", "MinIO endpoint")
	cmd.Flags().BoolVar(&f.minioSecure, "minio-secure", false, "use TLS for MinIO")
}

// open returns the tile source and the editor options needed to list tiles.
// Object stores cannot list point counts, so their tile list comes from the
// dataset API.
func (f *sourceFlags) open(ctx context.Context, cfg config.Config) (tilesource.Source, []pcedit.Option, error) {
	switch f.kind {
	case "local":
		if f.root == "" {
			return nil, nil, fmt.Errorf("--root is required for --source local")
		}
		return tilesource.NewLocalSource(f.root), nil, nil
	case "http":
		if err := requireAPI(cfg); err != nil {
			return nil, nil, err
		}
		return tilesource.NewHTTPSource(cfg.API.BaseURL, tilesource.WithHTTPClient(httpClient(cfg))), nil, nil
	case "s3", "minio":
	default:
		return nil, nil, fmt.Errorf("unknown source %q", f.kind)
	}

	if err := requireAPI(cfg); err != nil {
		return nil, nil, err
	}
	if f.bucket == "" {
		return nil, nil, fmt.Errorf("--bucket is required for --source %s", f.kind)
	}
	catalog := pcedit.WithCatalog(tilesource.NewHTTPSource(cfg.API.BaseURL, tilesource.WithHTTPClient(httpClient(cfg))))

	if f.kind == "s3" {
		src, err := s3source.New(ctx, f.bucket, f.prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		return src, []pcedit.Option{catalog}, nil
	}

	client, err := minio.New(f.minioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: f.minioSecure,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create MinIO client: %w", err)
	}
	return miniosource.NewSource(client, f.bucket, f.prefix), []pcedit.Option{catalog}, nil
}
