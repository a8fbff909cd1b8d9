// Package store implements the realtime document store the dashboard core is
// built against.
//
// Documents live in a flat keyspace of "collection/id" paths: admins/{id},
// users/{id}, devices/{id}. Reads and writes may address a whole document or
// a leaf inside its JSON body (devices/ESP32_A/data/relays/0/state); every
// user-initiated mutation targets a single leaf to keep the blast radius of
// concurrent writers small. There are no transactions across documents and
// no ordering between writers: concurrent writes to the same leaf race and
// the last write wins.
//
// Watch provides change notification at collection granularity. Each
// delivery carries the full collection snapshot (map of id to document);
// partial updates are never exposed. Delivery is latest-wins: a slow
// consumer may miss intermediate snapshots but always converges on the most
// recent one. Subscriptions must be released with Close or they leak.
//
// Store is the contract; SQLiteStore is the production implementation,
// persisting documents in the shared SQLite database and fanning out watch
// notifications in-process.
package store
