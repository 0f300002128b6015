package remote

import (
	"fmt"
	"time"

	"roadsim.ai/internal/client"
	"roadsim.ai/internal/geom"
	"roadsim.ai/internal/protocol"
)

func (s *Session) nextReq() uint64 { return s.reqID.Add(1) }

// call sends one request and blocks until its RESULT arrives, the timeout
// elapses, or the session dies. A timed-out request is always unregistered,
// so a late RESULT is dropped instead of leaking a channel.
func (s *Session) call(msg any, reqID uint64, timeout time.Duration) (protocol.ResultMsg, error) {
	ch := make(chan protocol.ResultMsg, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return protocol.ResultMsg{}, client.ErrInvalidEpisode
	}
	s.pending[reqID] = ch
	s.mu.Unlock()

	s.writeMu.Lock()
	err := s.conn.WriteJSON(msg)
	s.writeMu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
		s.teardown()
		return protocol.ResultMsg{}, client.ErrInvalidEpisode
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, nil
	case <-s.done:
		return protocol.ResultMsg{}, client.ErrInvalidEpisode
	case <-timer.C:
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
		select {
		case res := <-ch:
			return res, nil
		default:
		}
		return protocol.ResultMsg{}, client.ErrTimeout
	}
}

// resultErr maps a failed RESULT to the facade error taxonomy.
func resultErr(res protocol.ResultMsg) error {
	if res.OK {
		return nil
	}
	if res.Code == protocol.ErrEpisodeEnded {
		return client.ErrInvalidEpisode
	}
	return fmt.Errorf("%s: %s", res.Code, res.Message)
}

// SpawnActor implements client.Session. Every failure comes back as a
// *client.SpawnError; the server does not distinguish collision, bad
// blueprint and episode teardown beyond the code.
func (s *Session) SpawnActor(blueprint string, tf geom.Transform, parent client.ActorID, attachment string) (protocol.ActorRecord, error) {
	req := s.nextReq()
	msg := protocol.SpawnMsg{
		Type:            protocol.TypeSpawn,
		ProtocolVersion: protocol.Version,
		ReqID:           req,
		Blueprint:       blueprint,
		Transform:       tf,
		ParentID:        uint64(parent),
		Attachment:      attachment,
	}
	res, err := s.call(msg, req, s.callTimeout)
	if err != nil {
		return protocol.ActorRecord{}, &client.SpawnError{Err: err}
	}
	if !res.OK {
		return protocol.ActorRecord{}, &client.SpawnError{Code: res.Code, Message: res.Message}
	}
	if res.Actor == nil {
		return protocol.ActorRecord{}, &client.SpawnError{Message: "server reported success without an actor"}
	}
	s.registerActor(*res.Actor)
	return *res.Actor, nil
}

// DestroyActor implements client.Session.
func (s *Session) DestroyActor(id client.ActorID) error {
	req := s.nextReq()
	msg := protocol.DestroyMsg{
		Type:            protocol.TypeDestroy,
		ProtocolVersion: protocol.Version,
		ReqID:           req,
		ActorID:         uint64(id),
	}
	res, err := s.call(msg, req, s.callTimeout)
	if err != nil {
		return err
	}
	return resultErr(res)
}

// Tick implements client.Session: one synchronous simulation step. The
// step's snapshot arrives as a regular TICK on the reader goroutine; the
// RESULT acknowledges the step and carries the new frame number.
func (s *Session) Tick(timeout time.Duration) (uint64, error) {
	req := s.nextReq()
	msg := protocol.StepMsg{
		Type:            protocol.TypeStep,
		ProtocolVersion: protocol.Version,
		ReqID:           req,
	}
	res, err := s.call(msg, req, timeout)
	if err != nil {
		return 0, err
	}
	if err := resultErr(res); err != nil {
		return 0, err
	}
	return res.Frame, nil
}

func (s *Session) query(what string, mut func(*protocol.QueryMsg)) (protocol.ResultMsg, error) {
	req := s.nextReq()
	msg := protocol.QueryMsg{
		Type:            protocol.TypeQuery,
		ProtocolVersion: protocol.Version,
		ReqID:           req,
		What:            what,
	}
	if mut != nil {
		mut(&msg)
	}
	res, err := s.call(msg, req, s.callTimeout)
	if err != nil {
		return protocol.ResultMsg{}, err
	}
	if err := resultErr(res); err != nil {
		return protocol.ResultMsg{}, err
	}
	return res, nil
}

func (s *Session) apply(op string, mut func(*protocol.ApplyMsg)) (protocol.ResultMsg, error) {
	req := s.nextReq()
	msg := protocol.ApplyMsg{
		Type:            protocol.TypeApply,
		ProtocolVersion: protocol.Version,
		ReqID:           req,
		Op:              op,
	}
	if mut != nil {
		mut(&msg)
	}
	res, err := s.call(msg, req, s.callTimeout)
	if err != nil {
		return protocol.ResultMsg{}, err
	}
	if err := resultErr(res); err != nil {
		return protocol.ResultMsg{}, err
	}
	return res, nil
}

// Settings implements client.Session.
func (s *Session) Settings() (protocol.EpisodeSettings, error) {
	res, err := s.query(protocol.QuerySettings, nil)
	if err != nil {
		return protocol.EpisodeSettings{}, err
	}
	if res.Settings == nil {
		return protocol.EpisodeSettings{}, fmt.Errorf("settings query: empty result")
	}
	return *res.Settings, nil
}

// ApplySettings implements client.Session; returns the frame at which the
// settings take effect.
func (s *Session) ApplySettings(settings protocol.EpisodeSettings) (uint64, error) {
	res, err := s.apply(protocol.ApplySettings, func(m *protocol.ApplyMsg) {
		m.Settings = &settings
	})
	if err != nil {
		return 0, err
	}
	return res.Frame, nil
}

// Weather implements client.Session.
func (s *Session) Weather() (protocol.WeatherParameters, error) {
	res, err := s.query(protocol.QueryWeather, nil)
	if err != nil {
		return protocol.WeatherParameters{}, err
	}
	if res.Weather == nil {
		return protocol.WeatherParameters{}, fmt.Errorf("weather query: empty result")
	}
	return *res.Weather, nil
}

// SetWeather implements client.Session.
func (s *Session) SetWeather(w protocol.WeatherParameters) error {
	_, err := s.apply(protocol.ApplyWeather, func(m *protocol.ApplyMsg) {
		m.Weather = &w
	})
	return err
}

// Spectator implements client.Session.
func (s *Session) Spectator() (protocol.ActorRecord, error) {
	res, err := s.query(protocol.QuerySpectator, nil)
	if err != nil {
		return protocol.ActorRecord{}, err
	}
	if res.Actor == nil {
		return protocol.ActorRecord{}, fmt.Errorf("spectator query: empty result")
	}
	return *res.Actor, nil
}

// RandomLocationFromNavigation implements client.Session. A map without a
// navigation mesh yields (nil, nil).
func (s *Session) RandomLocationFromNavigation() (*geom.Location, error) {
	res, err := s.query(protocol.QueryNavLocation, nil)
	if err != nil {
		return nil, err
	}
	return res.Location, nil
}

// FreezeAllTrafficLights implements client.Session.
func (s *Session) FreezeAllTrafficLights(frozen bool) error {
	_, err := s.apply(protocol.ApplyFreezeLights, func(m *protocol.ApplyMsg) {
		m.Frozen = frozen
	})
	return err
}

// ResetAllTrafficLights implements client.Session.
func (s *Session) ResetAllTrafficLights() error {
	_, err := s.apply(protocol.ApplyResetLights, nil)
	return err
}

// EnvironmentObjects implements client.Session.
func (s *Session) EnvironmentObjects() ([]protocol.EnvironmentObject, error) {
	res, err := s.query(protocol.QueryEnvObjects, nil)
	if err != nil {
		return nil, err
	}
	return res.Objects, nil
}

// EnableEnvironmentObjects implements client.Session.
func (s *Session) EnableEnvironmentObjects(ids []uint64, enable bool) error {
	_, err := s.apply(protocol.ApplyEnvObjects, func(m *protocol.ApplyMsg) {
		m.ObjectIDs = ids
		m.Enable = enable
	})
	return err
}

// ProjectPoint implements client.Session. A miss is (nil, nil).
func (s *Session) ProjectPoint(loc geom.Location, dir geom.Vector3D, distance float64) (*protocol.LabelledPoint, error) {
	res, err := s.query(protocol.QueryProjectPoint, func(m *protocol.QueryMsg) {
		m.Location = &loc
		m.Direction = &dir
		m.Distance = distance
	})
	if err != nil {
		return nil, err
	}
	if len(res.Points) == 0 {
		return nil, nil
	}
	p := res.Points[0]
	return &p, nil
}

// CastRay implements client.Session; hit order is as the server reports it.
func (s *Session) CastRay(start, end geom.Location) ([]protocol.LabelledPoint, error) {
	res, err := s.query(protocol.QueryCastRay, func(m *protocol.QueryMsg) {
		m.Location = &start
		m.End = &end
	})
	if err != nil {
		return nil, err
	}
	return res.Points, nil
}
