// Package minio provides a tilesource.Source for MinIO and other
// S3-compatible object stores.
//
// The original tiling backend writes tiles to the "datasets" bucket under
// {dataset}/tiles/{z}_{x}_{y}.bin, which is the layout Source reads.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	src := miniotile.NewSource(client, "datasets", "")
package minio
