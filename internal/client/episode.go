package client

import "sync/atomic"

// EpisodeHandle is a shared reference to one live episode. It holds no
// episode state itself, only identity and a validity flag. Every facade
// operation funnels through Lock, which is the single place the "no stale
// session" invariant is enforced: once the session ends, Lock fails with
// ErrInvalidEpisode and never hands out the dead session.
//
// A handle is created at connect time, invalidated at disconnect or episode
// change, and never reused across episodes.
type EpisodeHandle struct {
	st *episodeState
}

type episodeState struct {
	id    string
	sess  Session
	valid atomic.Bool
}

func newEpisodeHandle(id string, sess Session) *EpisodeHandle {
	st := &episodeState{id: id, sess: sess}
	st.valid.Store(true)
	return &EpisodeHandle{st: st}
}

// ID returns the episode identity. Stays readable after invalidation.
func (h *EpisodeHandle) ID() string { return h.st.id }

// Lock resolves the handle to the live session, or fails with
// ErrInvalidEpisode once the session has ended. Safe for concurrent use.
func (h *EpisodeHandle) Lock() (Session, error) {
	if !h.st.valid.Load() {
		return nil, ErrInvalidEpisode
	}
	return h.st.sess, nil
}

// Invalidate marks the episode ended. Idempotent.
func (h *EpisodeHandle) Invalidate() {
	h.st.valid.Store(false)
}

// Valid reports whether Lock would currently succeed.
func (h *EpisodeHandle) Valid() bool { return h.st.valid.Load() }
