// Package config holds the runtime parameters of the editor.
//
// Configuration is read from YAML and validated with struct tags. Unset
// fields keep their defaults:
//
//	brushRadius: 0.5
//	pointSize: 0.05
//	pixelStep: 1
//	cameraFarMultiplier: 1
//	stream:
//	  workers: 8
//	  maxAttempts: 3
//	commit:
//	  chunkSize: 20000
package config
