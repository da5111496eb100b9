// Package event provides typed publish/subscribe topics.
//
// Components receive the topics they publish to or consume at construction
// instead of reaching for shared globals. Delivery is synchronous and in
// subscription order; handlers must not block.
package event
