// Package client exposes a live remote simulation episode as a single World
// value a caller can query and mutate without touching the connection or the
// synchronization protocol directly.
package client

import (
	"errors"
	"time"

	"roadsim.ai/internal/geom"
	"roadsim.ai/internal/protocol"
)

// World is the entry point to the current episode. It owns no mutable state
// beyond the episode handle and the tick-callback registry; every operation
// resolves the handle first and fails with ErrInvalidEpisode once the
// session has ended.
type World struct {
	episode *EpisodeHandle
	ticks   *tickSync
}

// NewWorld wraps a session in a facade. The session's snapshot stream feeds
// the tick-callback registry; session teardown invalidates the episode
// handle.
func NewWorld(episodeID string, sess Session) *World {
	w := &World{
		episode: newEpisodeHandle(episodeID, sess),
		ticks:   newTickSync(),
	}
	sess.Bind(w.ticks.dispatch, w.episode.Invalidate)
	return w
}

// Episode returns the handle identifying the episode this World is bound to.
func (w *World) Episode() *EpisodeHandle { return w.episode }

func (w *World) newActor(rec protocol.ActorRecord) *Actor {
	return &Actor{episode: w.episode, rec: rec}
}

// GetSnapshot returns the most recent snapshot the session has seen.
func (w *World) GetSnapshot() (WorldSnapshot, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return WorldSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// GetActor looks up one actor by id. An absent id yields (nil, nil), not an
// error.
func (w *World) GetActor(id ActorID) (*Actor, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, err
	}
	rec, ok := sess.ActorByID(id)
	if !ok {
		return nil, nil
	}
	return w.newActor(rec), nil
}

// GetActors returns every actor in the episode, in session-reported order.
func (w *World) GetActors() (ActorList, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, err
	}
	recs := sess.AllActors()
	out := make(ActorList, 0, len(recs))
	for _, rec := range recs {
		out = append(out, w.newActor(rec))
	}
	return out, nil
}

// GetActorsByID resolves the given ids, preserving caller order. Unresolved
// ids are silently omitted.
func (w *World) GetActorsByID(ids []ActorID) (ActorList, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, err
	}
	out := make(ActorList, 0, len(ids))
	for _, id := range ids {
		if rec, ok := sess.ActorByID(id); ok {
			out = append(out, w.newActor(rec))
		}
	}
	return out, nil
}

// SpawnActor spawns a new actor from a blueprint at a world-space transform.
// If parent is non-nil, attachment decides whether the new actor's transform
// is rigidly locked to the parent or merely initialized relative to it.
// Every failure of the spawn path (collision at the spawn pose, invalid
// blueprint, episode invalidated) surfaces as a *SpawnError.
func (w *World) SpawnActor(blueprint string, tf geom.Transform, parent *Actor, attachment AttachmentKind) (*Actor, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, &SpawnError{Message: "episode invalid", Err: err}
	}
	var parentID ActorID
	if parent != nil {
		parentID = parent.ID()
	}
	rec, err := sess.SpawnActor(blueprint, tf, parentID, attachment.wire())
	if err != nil {
		var se *SpawnError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &SpawnError{Err: err}
	}
	return w.newActor(rec), nil
}

// TrySpawnActor is SpawnActor with the failure swallowed: any input that
// would make SpawnActor fail returns nil instead.
func (w *World) TrySpawnActor(blueprint string, tf geom.Transform, parent *Actor, attachment AttachmentKind) *Actor {
	a, err := w.SpawnActor(blueprint, tf, parent, attachment)
	if err != nil {
		return nil
	}
	return a
}

// Tick requests the session to advance exactly one simulation step and
// blocks until that step is acknowledged, returning the new frame number.
// Fails with ErrTimeout if no step completes in time; never blocks
// indefinitely. Only meaningful when the session runs in synchronous mode;
// serializing concurrent Tick calls is the caller's responsibility.
func (w *World) Tick(timeout time.Duration) (uint64, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return 0, err
	}
	return sess.Tick(timeout)
}

// WaitForTick blocks until the session publishes its next snapshot or the
// timeout elapses. It does not advance simulation time; used when the
// simulation is free-running.
func (w *World) WaitForTick(timeout time.Duration) (WorldSnapshot, error) {
	if _, err := w.episode.Lock(); err != nil {
		return WorldSnapshot{}, err
	}
	return w.ticks.wait(timeout)
}

// OnTick registers a callback invoked with every completed snapshot, in
// frame order. Returns the registration id.
func (w *World) OnTick(fn func(WorldSnapshot)) (uint64, error) {
	if _, err := w.episode.Lock(); err != nil {
		return 0, err
	}
	return w.ticks.add(fn), nil
}

// RemoveOnTick unregisters a callback. It blocks until any in-flight
// delivery to that callback has returned, so after RemoveOnTick completes
// the callback will never run again. Must not be called from inside the
// callback being removed.
func (w *World) RemoveOnTick(id uint64) {
	w.ticks.remove(id)
}

// Settings returns the current episode settings.
func (w *World) Settings() (protocol.EpisodeSettings, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return protocol.EpisodeSettings{}, err
	}
	return sess.Settings()
}

// ApplySettings changes the episode settings, returning the frame at which
// they take effect.
func (w *World) ApplySettings(s protocol.EpisodeSettings) (uint64, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return 0, err
	}
	return sess.ApplySettings(s)
}

func (w *World) Weather() (protocol.WeatherParameters, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return protocol.WeatherParameters{}, err
	}
	return sess.Weather()
}

func (w *World) SetWeather(p protocol.WeatherParameters) error {
	sess, err := w.episode.Lock()
	if err != nil {
		return err
	}
	return sess.SetWeather(p)
}

// Spectator returns the episode's spectator actor.
func (w *World) Spectator() (*Actor, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, err
	}
	rec, err := sess.Spectator()
	if err != nil {
		return nil, err
	}
	return w.newActor(rec), nil
}

// RandomLocationFromNavigation returns a random navigable location, or nil
// when the map carries no navigation mesh.
func (w *World) RandomLocationFromNavigation() (*geom.Location, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, err
	}
	return sess.RandomLocationFromNavigation()
}

func (w *World) FreezeAllTrafficLights(frozen bool) error {
	sess, err := w.episode.Lock()
	if err != nil {
		return err
	}
	return sess.FreezeAllTrafficLights(frozen)
}

func (w *World) ResetAllTrafficLights() error {
	sess, err := w.episode.Lock()
	if err != nil {
		return err
	}
	return sess.ResetAllTrafficLights()
}

func (w *World) EnvironmentObjects() ([]protocol.EnvironmentObject, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, err
	}
	return sess.EnvironmentObjects()
}

func (w *World) EnableEnvironmentObjects(ids []uint64, enable bool) error {
	sess, err := w.episode.Lock()
	if err != nil {
		return err
	}
	return sess.EnableEnvironmentObjects(ids, enable)
}

// ProjectPoint casts one ray from loc along dir and returns the first hit
// within maxDistance, or nil if nothing is hit.
func (w *World) ProjectPoint(loc geom.Location, dir geom.Vector3D, maxDistance float64) (*protocol.LabelledPoint, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, err
	}
	return sess.ProjectPoint(loc, dir, maxDistance)
}

// GroundProjection is ProjectPoint with the direction fixed straight down.
func (w *World) GroundProjection(loc geom.Location, maxDistance float64) (*protocol.LabelledPoint, error) {
	return w.ProjectPoint(loc, geom.Down, maxDistance)
}

// CastRay returns every intersection along the segment, in the order the
// underlying geometry query reports them.
func (w *World) CastRay(start, end geom.Location) ([]protocol.LabelledPoint, error) {
	sess, err := w.episode.Lock()
	if err != nil {
		return nil, err
	}
	return sess.CastRay(start, end)
}
