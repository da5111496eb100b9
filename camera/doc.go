// Package camera computes an initial camera pose from a loaded point cloud.
//
// Estimate treats the cloud as a road-like corridor: the dominant XY axis is
// the travel direction, a plane fitted to the ground band gives the up
// vector, and the camera looks at the densest stretch of ground from behind.
// FitBounds is the fallback for clouds too small to analyse.
package camera
