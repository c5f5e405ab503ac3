// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package testing

import (
	"sync"
)

// Leadership is a settable leadership checker.
type Leadership struct {
	mu     sync.Mutex
	leader bool
	err    error
}

// NewLeadership returns a checker reporting the given leadership.
func NewLeadership(leader bool) *Leadership {
	return &Leadership{leader: leader}
}

// IsLeader implements exchange.LeadershipChecker.
func (l *Leadership) IsLeader() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leader, l.err
}

// SetLeader changes the reported leadership.
func (l *Leadership) SetLeader(leader bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leader = leader
}

// SetError makes IsLeader fail until cleared.
func (l *Leadership) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}
