// Package persist implements the durable job runner and the checkpoint
// machinery for crash-persistent requests.
//
// A single goroutine executes submitted jobs strictly one at a time and
// owns every write to the record store. That single-writer discipline
// is what makes checksummed serialization crash-consistent without a
// write-ahead log: no checkpoint, restart job, or record deletion can
// interleave with another durable write.
//
// Checkpoints run periodically and on demand via RequestCheckpointSoon,
// which bounds worst-case durability latency without blocking mutating
// callers on a synchronous flush.
package persist
