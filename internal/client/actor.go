package client

import (
	"path"

	"roadsim.ai/internal/geom"
	"roadsim.ai/internal/protocol"
)

// Actor is a shared reference to a live actor in the episode it was obtained
// from. The carried state (transform, velocity) is the state at retrieval
// time; the simulation is live, so it may be stale the instant it returns.
// An Actor must not be used once its episode has been invalidated.
type Actor struct {
	episode *EpisodeHandle
	rec     protocol.ActorRecord
}

func (a *Actor) ID() ActorID       { return ActorID(a.rec.ID) }
func (a *Actor) TypeID() string    { return a.rec.TypeID }
func (a *Actor) SignID() string    { return a.rec.SignID }
func (a *Actor) ParentID() ActorID { return ActorID(a.rec.ParentID) }

func (a *Actor) Transform() geom.Transform { return a.rec.Transform }
func (a *Actor) Location() geom.Location   { return a.rec.Transform.Location }
func (a *Actor) Velocity() geom.Vector3D   { return a.rec.Velocity }

// Destroy removes the actor from the simulation.
func (a *Actor) Destroy() error {
	sess, err := a.episode.Lock()
	if err != nil {
		return err
	}
	return sess.DestroyActor(a.ID())
}

// ActorList is a resolved set of actors.
type ActorList []*Actor

// Find returns the actor with the given id, or nil.
func (l ActorList) Find(id ActorID) *Actor {
	for _, a := range l {
		if a.ID() == id {
			return a
		}
	}
	return nil
}

// Filter returns the actors whose type id matches the wildcard pattern,
// e.g. "vehicle.*".
func (l ActorList) Filter(pattern string) ActorList {
	var out ActorList
	for _, a := range l {
		if ok, _ := path.Match(pattern, a.TypeID()); ok {
			out = append(out, a)
		}
	}
	return out
}
