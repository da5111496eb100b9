// Package oplog submits pending edits to a versioned session operation log.
//
// A session has a version that the backend advances by one per accepted
// operation. Log.Commit turns the pending delete and restore sets into
// operations of bounded size and submits them one at a time, each against
// the version produced by the previous one. The first rejected operation
// stops the commit; operations accepted before it stay accepted and their
// local effect is applied immediately through the caller's callback.
//
// After a version conflict the log refuses further commits until Refresh
// re-reads the session version from the backend.
//
// Three backends are provided: HTTPBackend for the dataset API,
// DynamoBackend for a DynamoDB table with conditional writes, and
// MemoryBackend for tests and offline use.
package oplog
