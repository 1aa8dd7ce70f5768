/*
 * Copyright 2026 The CodeSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * This file was written with reference to moby/locker.
 *   https://github.com/moby/locker
 */

/*
Package locker provides per-name locks. CodeSync uses it to give every room
its own critical section: a commit for one room never waits for a commit of
another room.

A lock for a name is created on first use and removed on Unlock once nobody
is waiting for it, so the number of live locks follows the number of rooms
with in-flight work rather than the number of rooms ever seen.
*/
package locker

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSuchLock is returned when the requested lock does not exist.
var ErrNoSuchLock = errors.New("no such lock")

// Locker provides a locking mechanism based on the passed in name.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockCtr
}

// lockCtr is a lock that can be acquired with a deadline. The lock is held
// while its channel holds a token.
type lockCtr struct {
	ch chan struct{}

	// waiters is the number of callers holding or waiting for the lock. It is
	// guarded by Locker.mu.
	waiters int
}

func newLockCtr() *lockCtr {
	return &lockCtr{ch: make(chan struct{}, 1)}
}

// New creates a new Locker.
func New() *Locker {
	return &Locker{
		locks: make(map[string]*lockCtr),
	}
}

// acquire returns the lock of the given name, registering the caller as a
// waiter so that the lock is not removed under it.
func (l *Locker) acquire(name string) *lockCtr {
	l.mu.Lock()
	defer l.mu.Unlock()

	nameLock, exists := l.locks[name]
	if !exists {
		nameLock = newLockCtr()
		l.locks[name] = nameLock
	}
	nameLock.waiters++
	return nameLock
}

// release unregisters a caller that gave up waiting or unlocked.
func (l *Locker) release(name string, nameLock *lockCtr) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nameLock.waiters--
	if nameLock.waiters == 0 && l.locks[name] == nameLock {
		delete(l.locks, name)
	}
}

// Lock locks the lock with the given name. If it doesn't exist, one is
// created.
func (l *Locker) Lock(name string) {
	nameLock := l.acquire(name)
	nameLock.ch <- struct{}{}
}

// LockContext is like Lock but gives up when ctx is done.
func (l *Locker) LockContext(ctx context.Context, name string) error {
	nameLock := l.acquire(name)

	select {
	case nameLock.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(name, nameLock)
		return ctx.Err()
	}
}

// TryLock locks the lock with the given name only if it is free.
func (l *Locker) TryLock(name string) bool {
	nameLock := l.acquire(name)

	select {
	case nameLock.ch <- struct{}{}:
		return true
	default:
		l.release(name, nameLock)
		return false
	}
}

// Unlock unlocks the lock with the given name. If nobody is waiting for the
// lock, it is deleted.
func (l *Locker) Unlock(name string) error {
	l.mu.Lock()
	nameLock, exists := l.locks[name]
	l.mu.Unlock()
	if !exists {
		return ErrNoSuchLock
	}

	select {
	case <-nameLock.ch:
	default:
		return ErrNoSuchLock
	}

	l.release(name, nameLock)
	return nil
}

// Len returns the number of live locks.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
