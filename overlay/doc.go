// Package overlay highlights points proposed for removal by the ML
// segmentation service and turns accepted proposals into delete operations.
//
// A preview groups dataset indices into labelled clusters. Aggregate unions
// the clusters of the chosen classes; Paint tints those points in a store;
// Apply submits them through an oplog.Log like any brushed deletion.
package overlay
