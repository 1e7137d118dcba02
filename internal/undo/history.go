/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps a bounded history of engine snapshots per session so a
// player can step back to an earlier page.
package undo

import (
	"sync"
	"time"
)

// NoInput marks a snapshot whose step was taken without a choice.
const NoInput = -1

// Snapshot is an encoded engine state captured before a step.
// Blob content is opaque to the manager; size is estimated as len(Blob).
// Input is the choice index the caller applied from this state, or NoInput.
type Snapshot struct {
	Session string
	Seq     int
	Blob    []byte
	Input   int
	TS      time.Time
}

// Config controls memory and depth caps.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries across sessions are pruned when exceeded.
	MaxBytes int
	// MaxDepth limits the snapshots kept per session (0 means unlimited).
	MaxDepth int
}

// Manager stores a stack of snapshots per session.
// It is safe for concurrent use.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	stacks  map[string][]Snapshot
	seq     map[string]int
	bytes   int
	dropped int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	return &Manager{cfg: cfg, stacks: make(map[string][]Snapshot), seq: make(map[string]int)}
}

// Push records a snapshot for its session and assigns its sequence number.
func (m *Manager) Push(s Snapshot) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.TS.IsZero() {
		s.TS = time.Now()
	}
	m.seq[s.Session]++
	s.Seq = m.seq[s.Session]
	m.stacks[s.Session] = append(m.stacks[s.Session], s)
	m.bytes += len(s.Blob)
	m.enforceCapsLocked(s.Session)
	return s
}

// Pop removes and returns the newest snapshot of the session.
func (m *Manager) Pop(session string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.stacks[session]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.stacks[session] = stack[:len(stack)-1]
	m.bytes -= len(s.Blob)
	return s, true
}

// Back discards the newest snapshot and pops the one before it, which is
// the state the previous page was produced from. Nothing changes when the
// session has fewer than two snapshots.
func (m *Manager) Back(session string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.stacks[session]
	if len(stack) < 2 {
		return Snapshot{}, false
	}
	cur, prev := stack[len(stack)-1], stack[len(stack)-2]
	m.stacks[session] = stack[:len(stack)-2]
	m.bytes -= len(cur.Blob) + len(prev.Blob)
	return prev, true
}

// Len returns the number of snapshots held for the session.
func (m *Manager) Len(session string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stacks[session])
}

// Clear drops the session history to free memory.
func (m *Manager) Clear(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stacks[session] {
		m.bytes -= len(s.Blob)
	}
	delete(m.stacks, session)
	delete(m.seq, session)
	if m.bytes < 0 {
		m.bytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, sessions int, totalSnapshots int, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.stacks {
		if len(v) > 0 {
			sessions++
		}
		totalSnapshots += len(v)
	}
	return m.bytes, sessions, totalSnapshots, m.dropped
}

func (m *Manager) enforceCapsLocked(session string) {
	if m.cfg.MaxDepth > 0 {
		stack := m.stacks[session]
		if len(stack) > m.cfg.MaxDepth {
			toDrop := len(stack) - m.cfg.MaxDepth
			for i := 0; i < toDrop; i++ {
				m.bytes -= len(stack[i].Blob)
			}
			m.dropped += toDrop
			m.stacks[session] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// global memory cap: prune the oldest entry across sessions, never the newest overall
	for m.cfg.MaxBytes > 0 && m.bytes > m.cfg.MaxBytes {
		oldest := ""
		found := false
		var oldestTS time.Time
		for name, stack := range m.stacks {
			if len(stack) == 0 || (name == session && len(stack) == 1) {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = name, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.stacks[oldest]
		m.bytes -= len(stack[0].Blob)
		m.dropped++
		m.stacks[oldest] = stack[1:]
		if len(m.stacks[oldest]) == 0 {
			delete(m.stacks, oldest)
		}
	}
}
