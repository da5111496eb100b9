// Package s3 provides a tilesource.Source backed by Amazon S3.
//
// Tiles are read from {prefix}/{dataset}/tiles/{z}_{x}_{y}.bin with the
// transfer manager's Downloader, which splits large payloads into parallel
// ranged GETs.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx, config.WithRegion("eu-central-1"))
//	src := s3.NewSource(s3sdk.NewFromConfig(cfg), "datasets", "")
//	data, err := src.Fetch(ctx, datasetID, t)
package s3
