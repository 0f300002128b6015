package client

import (
	"time"

	"roadsim.ai/internal/geom"
	"roadsim.ai/internal/protocol"
)

// ActorID is unique within one episode only. Ids are not stable across
// episodes.
type ActorID uint64

// AttachmentKind describes how a spawned actor's transform relates to its
// parent actor.
type AttachmentKind int

const (
	// AttachmentRigid locks the child transform to the parent.
	AttachmentRigid AttachmentKind = iota
	// AttachmentSpringArm initializes the child relative to the parent
	// without locking it.
	AttachmentSpringArm
)

func (k AttachmentKind) wire() string {
	if k == AttachmentSpringArm {
		return protocol.AttachSpringArm
	}
	return protocol.AttachRigid
}

// WorldSnapshot is an immutable capture of all actor state at one simulation
// frame. Frame numbers increase monotonically within an episode.
type WorldSnapshot struct {
	EpisodeID      string
	Frame          uint64
	ElapsedSeconds float64
	DeltaSeconds   float64
	Actors         []protocol.ActorRecord
}

// Find returns the record for id, if the snapshot contains it.
func (s WorldSnapshot) Find(id ActorID) (protocol.ActorRecord, bool) {
	for _, a := range s.Actors {
		if ActorID(a.ID) == id {
			return a, true
		}
	}
	return protocol.ActorRecord{}, false
}

func (s WorldSnapshot) Contains(id ActorID) bool {
	_, ok := s.Find(id)
	return ok
}

// Session is the capability surface of the remote simulation session this
// core calls into. The default implementation lives in internal/remote; tests
// use an in-memory fake.
type Session interface {
	// Bind attaches the facade's observers. onSnapshot is called for every
	// completed simulation step, in frame order, one snapshot at a time,
	// from a single goroutine. onClose is called exactly once when the
	// session ends for any reason.
	Bind(onSnapshot func(WorldSnapshot), onClose func())

	// Snapshot returns the most recent snapshot the session has seen.
	Snapshot() WorldSnapshot

	ActorByID(id ActorID) (protocol.ActorRecord, bool)
	AllActors() []protocol.ActorRecord

	SpawnActor(blueprint string, tf geom.Transform, parent ActorID, attachment string) (protocol.ActorRecord, error)
	DestroyActor(id ActorID) error

	// Tick requests exactly one simulation step and blocks until the step
	// is acknowledged or the timeout elapses.
	Tick(timeout time.Duration) (uint64, error)

	Settings() (protocol.EpisodeSettings, error)
	ApplySettings(s protocol.EpisodeSettings) (uint64, error)
	Weather() (protocol.WeatherParameters, error)
	SetWeather(w protocol.WeatherParameters) error

	Spectator() (protocol.ActorRecord, error)
	RandomLocationFromNavigation() (*geom.Location, error)

	FreezeAllTrafficLights(frozen bool) error
	ResetAllTrafficLights() error

	EnvironmentObjects() ([]protocol.EnvironmentObject, error)
	EnableEnvironmentObjects(ids []uint64, enable bool) error

	ProjectPoint(loc geom.Location, dir geom.Vector3D, distance float64) (*protocol.LabelledPoint, error)
	CastRay(start, end geom.Location) ([]protocol.LabelledPoint, error)
}
