package server

import "sync"

// Stats aggregates traffic over every session of a server.
type Stats struct {
	mu sync.Mutex
	s  Snapshot
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Accepted    uint64
	Rejected    uint64
	Active      int
	MessagesIn  uint64
	MessagesOut uint64
	BytesIn     uint64
	BytesOut    uint64
}

func (st *Stats) Snapshot() Snapshot {
	if st == nil {
		return Snapshot{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

func (st *Stats) open() {
	if st == nil {
		return
	}
	st.mu.Lock()
	st.s.Accepted++
	st.s.Active++
	st.mu.Unlock()
}

func (st *Stats) close() {
	if st == nil {
		return
	}
	st.mu.Lock()
	st.s.Active--
	st.mu.Unlock()
}

func (st *Stats) reject() {
	if st == nil {
		return
	}
	st.mu.Lock()
	st.s.Rejected++
	st.mu.Unlock()
}

func (st *Stats) addIn(n int) {
	if st == nil {
		return
	}
	st.mu.Lock()
	st.s.MessagesIn++
	st.s.BytesIn += uint64(n)
	st.mu.Unlock()
}

func (st *Stats) addOut(n int) {
	if st == nil {
		return
	}
	st.mu.Lock()
	st.s.MessagesOut++
	st.s.BytesOut += uint64(n)
	st.mu.Unlock()
}
