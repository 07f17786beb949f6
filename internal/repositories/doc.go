// Package repositories persists small string values such as credentials and the selected device.
//
// Backends:
//   - [SQLiteStore] : the default, a single kv_entries table created by the embedded migrations
//   - [MemoryStore] : process-local, used for one-off runs and tests
//   - [RedisStore] : shared storage through rueidis, every key under [RedisKeyPrefix]
//
// [NewStore] selects a backend from [shared.StoreConfig].
package repositories
