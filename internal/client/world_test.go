package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"roadsim.ai/internal/geom"
	"roadsim.ai/internal/protocol"
)

type projectCall struct {
	loc      geom.Location
	dir      geom.Vector3D
	distance float64
}

// fakeSession is an in-memory Session for facade tests.
type fakeSession struct {
	mu         sync.Mutex
	actors     []protocol.ActorRecord
	frame      uint64
	tickErr    error
	spawnErr   error
	nextSpawn  uint64
	onSnapshot func(WorldSnapshot)
	onClose    func()

	projectCalls  []projectCall
	projectResult *protocol.LabelledPoint
	rayResult     []protocol.LabelledPoint
}

func newFakeSession(actors ...protocol.ActorRecord) *fakeSession {
	return &fakeSession{actors: actors, nextSpawn: 1000}
}

func (f *fakeSession) Bind(onSnapshot func(WorldSnapshot), onClose func()) {
	f.onSnapshot = onSnapshot
	f.onClose = onClose
}

// push publishes one snapshot as the session reader would.
func (f *fakeSession) push(frame uint64) WorldSnapshot {
	f.mu.Lock()
	f.frame = frame
	actors := make([]protocol.ActorRecord, len(f.actors))
	copy(actors, f.actors)
	f.mu.Unlock()
	s := WorldSnapshot{EpisodeID: "ep-1", Frame: frame, Actors: actors}
	if f.onSnapshot != nil {
		f.onSnapshot(s)
	}
	return s
}

// end simulates session teardown.
func (f *fakeSession) end() {
	if f.onClose != nil {
		f.onClose()
	}
}

func (f *fakeSession) Snapshot() WorldSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	actors := make([]protocol.ActorRecord, len(f.actors))
	copy(actors, f.actors)
	return WorldSnapshot{EpisodeID: "ep-1", Frame: f.frame, Actors: actors}
}

func (f *fakeSession) ActorByID(id ActorID) (protocol.ActorRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actors {
		if ActorID(a.ID) == id {
			return a, true
		}
	}
	return protocol.ActorRecord{}, false
}

func (f *fakeSession) AllActors() []protocol.ActorRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.ActorRecord, len(f.actors))
	copy(out, f.actors)
	return out
}

func (f *fakeSession) SpawnActor(blueprint string, tf geom.Transform, parent ActorID, attachment string) (protocol.ActorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return protocol.ActorRecord{}, f.spawnErr
	}
	f.nextSpawn++
	rec := protocol.ActorRecord{
		ID:        f.nextSpawn,
		TypeID:    blueprint,
		ParentID:  uint64(parent),
		Transform: tf,
	}
	f.actors = append(f.actors, rec)
	return rec, nil
}

func (f *fakeSession) DestroyActor(id ActorID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.actors {
		if ActorID(a.ID) == id {
			f.actors = append(f.actors[:i], f.actors[i+1:]...)
			return nil
		}
	}
	return errors.New("no such actor")
}

func (f *fakeSession) Tick(timeout time.Duration) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickErr != nil {
		return 0, f.tickErr
	}
	f.frame++
	return f.frame, nil
}

func (f *fakeSession) Settings() (protocol.EpisodeSettings, error) {
	return protocol.EpisodeSettings{SynchronousMode: true, FixedDeltaSeconds: 0.05}, nil
}

func (f *fakeSession) ApplySettings(s protocol.EpisodeSettings) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame + 1, nil
}

func (f *fakeSession) Weather() (protocol.WeatherParameters, error) {
	return protocol.WeatherParameters{Cloudiness: 10}, nil
}

func (f *fakeSession) SetWeather(w protocol.WeatherParameters) error { return nil }

func (f *fakeSession) Spectator() (protocol.ActorRecord, error) {
	return protocol.ActorRecord{ID: 1, TypeID: "spectator"}, nil
}

func (f *fakeSession) RandomLocationFromNavigation() (*geom.Location, error) {
	return nil, nil
}

func (f *fakeSession) FreezeAllTrafficLights(frozen bool) error { return nil }
func (f *fakeSession) ResetAllTrafficLights() error             { return nil }

func (f *fakeSession) EnvironmentObjects() ([]protocol.EnvironmentObject, error) {
	return nil, nil
}

func (f *fakeSession) EnableEnvironmentObjects(ids []uint64, enable bool) error { return nil }

func (f *fakeSession) ProjectPoint(loc geom.Location, dir geom.Vector3D, distance float64) (*protocol.LabelledPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projectCalls = append(f.projectCalls, projectCall{loc: loc, dir: dir, distance: distance})
	return f.projectResult, nil
}

func (f *fakeSession) CastRay(start, end geom.Location) ([]protocol.LabelledPoint, error) {
	return f.rayResult, nil
}

func newTestWorld(actors ...protocol.ActorRecord) (*World, *fakeSession) {
	sess := newFakeSession(actors...)
	return NewWorld("ep-1", sess), sess
}

func TestLock_FailsAfterSessionEnds(t *testing.T) {
	w, sess := newTestWorld()
	if _, err := w.GetSnapshot(); err != nil {
		t.Fatalf("snapshot before teardown: %v", err)
	}
	sess.end()
	if _, err := w.GetSnapshot(); !errors.Is(err, ErrInvalidEpisode) {
		t.Fatalf("snapshot after teardown: err=%v want ErrInvalidEpisode", err)
	}
	if _, err := w.GetActors(); !errors.Is(err, ErrInvalidEpisode) {
		t.Fatalf("actors after teardown: err=%v want ErrInvalidEpisode", err)
	}
	if _, err := w.Tick(time.Second); !errors.Is(err, ErrInvalidEpisode) {
		t.Fatalf("tick after teardown: err=%v want ErrInvalidEpisode", err)
	}
	if _, err := w.WaitForTick(time.Second); !errors.Is(err, ErrInvalidEpisode) {
		t.Fatalf("wait after teardown: err=%v want ErrInvalidEpisode", err)
	}
}

func TestGetActor_PresentAndAbsent(t *testing.T) {
	w, _ := newTestWorld(
		protocol.ActorRecord{ID: 7, TypeID: "vehicle.tesla.model3"},
		protocol.ActorRecord{ID: 9, TypeID: "walker.pedestrian.0001"},
	)
	a, err := w.GetActor(7)
	if err != nil {
		t.Fatalf("get actor: %v", err)
	}
	if a == nil || a.ID() != 7 {
		t.Fatalf("got %+v, want id=7", a)
	}
	missing, err := w.GetActor(12345)
	if err != nil {
		t.Fatalf("absent id should not error: %v", err)
	}
	if missing != nil {
		t.Fatalf("absent id should yield nil, got id=%d", missing.ID())
	}
}

func TestGetActorsByID_PreservesCallerOrderOmitsMissing(t *testing.T) {
	w, _ := newTestWorld(
		protocol.ActorRecord{ID: 1, TypeID: "vehicle.a"},
		protocol.ActorRecord{ID: 2, TypeID: "vehicle.b"},
		protocol.ActorRecord{ID: 3, TypeID: "vehicle.c"},
	)
	got, err := w.GetActorsByID([]ActorID{3, 99, 1, 42})
	if err != nil {
		t.Fatalf("get actors: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want 2", len(got))
	}
	if got[0].ID() != 3 || got[1].ID() != 1 {
		t.Fatalf("order [%d %d], want [3 1]", got[0].ID(), got[1].ID())
	}
}

func TestGetActors_SessionOrder(t *testing.T) {
	w, _ := newTestWorld(
		protocol.ActorRecord{ID: 5},
		protocol.ActorRecord{ID: 2},
		protocol.ActorRecord{ID: 8},
	)
	got, err := w.GetActors()
	if err != nil {
		t.Fatalf("get actors: %v", err)
	}
	want := []ActorID{5, 2, 8}
	for i, a := range got {
		if a.ID() != want[i] {
			t.Fatalf("index %d: id=%d want %d", i, a.ID(), want[i])
		}
	}
}

func TestSpawnActor_FailureIsSpawnError(t *testing.T) {
	w, sess := newTestWorld()
	sess.spawnErr = &SpawnError{Code: protocol.ErrSpawnCollision, Message: "blocked"}
	_, err := w.SpawnActor("vehicle.a", geom.Transform{}, nil, AttachmentRigid)
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v want *SpawnError", err)
	}
	if se.Code != protocol.ErrSpawnCollision {
		t.Fatalf("code=%q want %q", se.Code, protocol.ErrSpawnCollision)
	}
}

func TestSpawnActor_InvalidEpisodeWrapsSentinel(t *testing.T) {
	w, sess := newTestWorld()
	sess.end()
	_, err := w.SpawnActor("vehicle.a", geom.Transform{}, nil, AttachmentRigid)
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v want *SpawnError", err)
	}
	if !errors.Is(err, ErrInvalidEpisode) {
		t.Fatalf("spawn error should wrap ErrInvalidEpisode, got %v", err)
	}
}

func TestTrySpawnActor_NeverFails(t *testing.T) {
	w, sess := newTestWorld()
	sess.spawnErr = &SpawnError{Code: protocol.ErrBadBlueprint, Message: "unknown blueprint"}
	if a := w.TrySpawnActor("nope", geom.Transform{}, nil, AttachmentRigid); a != nil {
		t.Fatalf("try spawn should return nil on failure, got id=%d", a.ID())
	}
	sess.spawnErr = nil
	a := w.TrySpawnActor("vehicle.a", geom.Transform{}, nil, AttachmentRigid)
	if a == nil {
		t.Fatalf("try spawn should succeed when spawn succeeds")
	}
	sess.end()
	if a := w.TrySpawnActor("vehicle.a", geom.Transform{}, nil, AttachmentRigid); a != nil {
		t.Fatalf("try spawn after teardown should return nil")
	}
}

func TestSpawnActor_ParentAttachment(t *testing.T) {
	w, _ := newTestWorld(protocol.ActorRecord{ID: 3, TypeID: "vehicle.a"})
	parent, err := w.GetActor(3)
	if err != nil || parent == nil {
		t.Fatalf("get parent: %v", err)
	}
	child, err := w.SpawnActor("sensor.camera.rgb", geom.Transform{}, parent, AttachmentRigid)
	if err != nil {
		t.Fatalf("spawn child: %v", err)
	}
	if child.ParentID() != 3 {
		t.Fatalf("parent id=%d want 3", child.ParentID())
	}
}

func TestTick_FramesStrictlyIncrease(t *testing.T) {
	w, _ := newTestWorld()
	var prev uint64
	for i := 0; i < 5; i++ {
		frame, err := w.Tick(time.Second)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if frame <= prev {
			t.Fatalf("frame %d not greater than previous %d", frame, prev)
		}
		prev = frame
	}
}

func TestTick_TimeoutSurfaces(t *testing.T) {
	w, sess := newTestWorld()
	sess.tickErr = ErrTimeout
	if _, err := w.Tick(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v want ErrTimeout", err)
	}
}

func TestWaitForTick_DeliversNextSnapshot(t *testing.T) {
	w, sess := newTestWorld()
	done := make(chan WorldSnapshot, 1)
	go func() {
		s, err := w.WaitForTick(2 * time.Second)
		if err != nil {
			t.Errorf("wait: %v", err)
		}
		done <- s
	}()
	// Give the waiter a moment to register.
	time.Sleep(20 * time.Millisecond)
	sess.push(42)
	s := <-done
	if s.Frame != 42 {
		t.Fatalf("frame=%d want 42", s.Frame)
	}
}

func TestWaitForTick_Timeout(t *testing.T) {
	w, _ := newTestWorld()
	start := time.Now()
	_, err := w.WaitForTick(30 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v want ErrTimeout", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("wait blocked far past its timeout")
	}
	if n := len(w.ticks.waiters); n != 0 {
		t.Fatalf("dangling waiters after timeout: %d", n)
	}
}

func TestOnTick_EveryCallbackSeesEverySnapshot(t *testing.T) {
	w, sess := newTestWorld()
	var mu sync.Mutex
	var a, b []uint64
	if _, err := w.OnTick(func(s WorldSnapshot) {
		mu.Lock()
		a = append(a, s.Frame)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("on tick: %v", err)
	}
	if _, err := w.OnTick(func(s WorldSnapshot) {
		mu.Lock()
		b = append(b, s.Frame)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("on tick: %v", err)
	}
	for frame := uint64(1); frame <= 3; frame++ {
		sess.push(frame)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, got := range [][]uint64{a, b} {
		if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
			t.Fatalf("frames=%v want [1 2 3]", got)
		}
	}
}

func TestRemoveOnTick_StopsDelivery(t *testing.T) {
	w, sess := newTestWorld()
	var calls int
	id, err := w.OnTick(func(WorldSnapshot) { calls++ })
	if err != nil {
		t.Fatalf("on tick: %v", err)
	}
	sess.push(1)
	w.RemoveOnTick(id)
	sess.push(2)
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestRemoveOnTick_UnknownIDIsNoop(t *testing.T) {
	w, _ := newTestWorld()
	w.RemoveOnTick(999)
}

func TestRemoveOnTick_WaitsForInFlightDelivery(t *testing.T) {
	w, sess := newTestWorld()

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var calls int
	id, err := w.OnTick(func(WorldSnapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
		entered <- struct{}{}
		<-release
	})
	if err != nil {
		t.Fatalf("on tick: %v", err)
	}

	go sess.push(1)
	<-entered // delivery is now in flight

	removed := make(chan struct{})
	go func() {
		w.RemoveOnTick(id)
		close(removed)
	}()

	select {
	case <-removed:
		t.Fatalf("removal returned while delivery was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-removed:
	case <-time.After(2 * time.Second):
		t.Fatalf("removal never completed")
	}

	// After removal completes the callback must never run again.
	sess.push(2)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestOnTick_CallbackMayRemoveAnother(t *testing.T) {
	w, sess := newTestWorld()
	var removedCalls int
	var id2 uint64
	if _, err := w.OnTick(func(WorldSnapshot) {
		w.ticks.remove(id2)
	}); err != nil {
		t.Fatalf("on tick: %v", err)
	}
	id2, err := w.OnTick(func(WorldSnapshot) { removedCalls++ })
	if err != nil {
		t.Fatalf("on tick: %v", err)
	}
	sess.push(1)
	sess.push(2)
	if removedCalls > 1 {
		t.Fatalf("removed callback ran %d times after removal", removedCalls)
	}
}

func TestResolveController_SignMatch(t *testing.T) {
	w, _ := newTestWorld(
		protocol.ActorRecord{ID: 1, TypeID: "vehicle.tesla.model3"},
		protocol.ActorRecord{ID: 2, TypeID: "traffic.sign.yield", SignID: "42"},
	)
	a, err := w.ResolveController(Landmark{ID: "42"}, ControllerSign)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a == nil || a.ID() != 2 {
		t.Fatalf("got %+v, want actor 2", a)
	}
}

func TestResolveController_EmptyAndNonMatching(t *testing.T) {
	w, _ := newTestWorld()
	a, err := w.ResolveController(Landmark{ID: "42"}, ControllerSign)
	if err != nil || a != nil {
		t.Fatalf("empty directory: actor=%v err=%v, want nil,nil", a, err)
	}

	w2, _ := newTestWorld(protocol.ActorRecord{ID: 2, TypeID: "traffic.sign.yield", SignID: "7"})
	a, err = w2.ResolveController(Landmark{ID: "42"}, ControllerSign)
	if err != nil || a != nil {
		t.Fatalf("non-matching sign id: actor=%v err=%v, want nil,nil", a, err)
	}
}

func TestResolveController_LightPatternExcludesSigns(t *testing.T) {
	w, _ := newTestWorld(
		protocol.ActorRecord{ID: 1, TypeID: "traffic.sign.stop", SignID: "9"},
		protocol.ActorRecord{ID: 2, TypeID: "traffic.traffic_light", SignID: "9"},
	)
	a, err := w.ResolveController(Landmark{ID: "9"}, ControllerLight)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a == nil || a.ID() != 2 {
		t.Fatalf("light lookup matched actor %+v, want the traffic light", a)
	}
}

func TestResolveController_SignPatternAlsoMatchesLights(t *testing.T) {
	// The sign pattern is deliberately broad; a traffic light with the
	// queried sign id resolves under ControllerSign too.
	w, _ := newTestWorld(protocol.ActorRecord{ID: 2, TypeID: "traffic.traffic_light", SignID: "9"})
	a, err := w.ResolveController(Landmark{ID: "9"}, ControllerSign)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a == nil || a.ID() != 2 {
		t.Fatalf("broad sign pattern should match traffic lights, got %+v", a)
	}
}

func TestResolveController_FirstMatchWins(t *testing.T) {
	w, _ := newTestWorld(
		protocol.ActorRecord{ID: 1, TypeID: "traffic.sign.stop", SignID: "dup"},
		protocol.ActorRecord{ID: 2, TypeID: "traffic.sign.stop", SignID: "dup"},
	)
	a, err := w.ResolveController(Landmark{ID: "dup"}, ControllerSign)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a == nil || a.ID() != 1 {
		t.Fatalf("duplicate sign ids: got %+v, want first match (id 1)", a)
	}
}

func TestGroundProjection_IsProjectPointStraightDown(t *testing.T) {
	w, sess := newTestWorld()
	origin := geom.Location{X: 3, Y: -2, Z: 10}
	if _, err := w.GroundProjection(origin, 50); err != nil {
		t.Fatalf("ground projection: %v", err)
	}
	if _, err := w.ProjectPoint(origin, geom.Vector3D{X: 0, Y: 0, Z: -1}, 50); err != nil {
		t.Fatalf("project point: %v", err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.projectCalls) != 2 {
		t.Fatalf("calls=%d want 2", len(sess.projectCalls))
	}
	if sess.projectCalls[0] != sess.projectCalls[1] {
		t.Fatalf("ground projection call %+v differs from explicit down ray %+v",
			sess.projectCalls[0], sess.projectCalls[1])
	}
}

func TestProjectPoint_MissIsNil(t *testing.T) {
	w, _ := newTestWorld()
	p, err := w.ProjectPoint(geom.Location{}, geom.Down, 10)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if p != nil {
		t.Fatalf("miss should be nil, got %+v", p)
	}
}

func TestActorList_FilterAndFind(t *testing.T) {
	w, _ := newTestWorld(
		protocol.ActorRecord{ID: 1, TypeID: "vehicle.tesla.model3"},
		protocol.ActorRecord{ID: 2, TypeID: "walker.pedestrian.0001"},
		protocol.ActorRecord{ID: 3, TypeID: "vehicle.audi.tt"},
	)
	actors, err := w.GetActors()
	if err != nil {
		t.Fatalf("get actors: %v", err)
	}
	vehicles := actors.Filter("vehicle.*")
	if len(vehicles) != 2 {
		t.Fatalf("vehicles=%d want 2", len(vehicles))
	}
	if a := actors.Find(3); a == nil || a.TypeID() != "vehicle.audi.tt" {
		t.Fatalf("find(3)=%+v", a)
	}
	if a := actors.Find(99); a != nil {
		t.Fatalf("find(99) should be nil")
	}
}

func TestActorDestroy_RemovesFromDirectory(t *testing.T) {
	w, _ := newTestWorld(protocol.ActorRecord{ID: 4, TypeID: "vehicle.a"})
	a, err := w.GetActor(4)
	if err != nil || a == nil {
		t.Fatalf("get actor: %v", err)
	}
	if err := a.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	gone, err := w.GetActor(4)
	if err != nil {
		t.Fatalf("lookup after destroy: %v", err)
	}
	if gone != nil {
		t.Fatalf("actor still resolvable after destroy")
	}
}
