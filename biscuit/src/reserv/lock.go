package reserv

// lock.go implements the shard lock pool (C3): a fixed L=256 mutexes
// hashed by reservation index, so concurrent operations on unrelated
// reservations don't serialize on a single global lock. Lock order
// across the module is object write-lock (held by the caller, outside
// this package) -> shard -> free-queue; TryLockShard plus the
// drop-free-queue-and-retry dance in break.go honours that order when a
// try-lock fails while the free-queue lock is held.

func shard(rv int32) int {
	return int(rv) % L
}

/// LockShard blocks until the shard lock for rv is held.
func (t *Table_t) LockShard(rv int32) {
	t.locks[shard(rv)].Lock()
}

/// UnlockShard releases the shard lock for rv.
func (t *Table_t) UnlockShard(rv int32) {
	t.locks[shard(rv)].Unlock()
}

/// TryLockShard attempts to take the shard lock for rv without blocking.
func (t *Table_t) TryLockShard(rv int32) bool {
	return t.locks[shard(rv)].TryLock()
}

/// LockFreeq blocks until the global free-queue lock is held.
func (t *Table_t) LockFreeq() {
	t.freeq.Lock()
}

/// UnlockFreeq releases the global free-queue lock.
func (t *Table_t) UnlockFreeq() {
	t.freeq.Unlock()
}
