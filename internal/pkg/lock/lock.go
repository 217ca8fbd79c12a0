// Package lock provides per-user in-process locking. The ledger's
// transactions are the cross-process authority; this lock only serializes
// multi-transaction sequences within one process, like the withdrawal
// debit / rail call / reversal chain.
package lock

import "sync"

// UserLock provides a mutex per user id.
type UserLock struct {
	locks sync.Map // map[int64]*sync.Mutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{}
}

// getLock retrieves or creates the mutex for the given user id.
func (ul *UserLock) getLock(userID int64) *sync.Mutex {
	if v, ok := ul.locks.Load(userID); ok {
		return v.(*sync.Mutex)
	}
	v, _ := ul.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Lock acquires the lock for a user.
func (ul *UserLock) Lock(userID int64) {
	ul.getLock(userID).Lock()
}

// Unlock releases the lock for a user.
func (ul *UserLock) Unlock(userID int64) {
	if v, ok := ul.locks.Load(userID); ok {
		v.(*sync.Mutex).Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (ul *UserLock) TryLock(userID int64) bool {
	return ul.getLock(userID).TryLock()
}

// WithLock executes fn while holding the user's lock.
func (ul *UserLock) WithLock(userID int64, fn func() error) error {
	ul.Lock(userID)
	defer ul.Unlock(userID)
	return fn()
}
