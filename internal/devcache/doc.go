// Package devcache maintains an in-memory mirror of the devices collection.
//
// The cache subscribes to the realtime store and replaces its snapshot
// wholesale on every delivery. Consumers read the snapshot synchronously;
// they never observe a partially applied update. Subscription errors retain
// the previous snapshot, and unsubscribing freezes it.
package devcache
