package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"roadsim.ai/internal/geom"
	"roadsim.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", string(b), err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	tickSchema := compile("tick.schema.json")
	spawnSchema := compile("spawn.schema.json")
	resultSchema := compile("result.schema.json")

	validate(helloSchema, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "bot1",
	})

	validate(welcomeSchema, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		EpisodeID:       "ep-1",
		MapName:         "town01",
		Frame:           120,
		Settings: protocol.EpisodeSettings{
			SynchronousMode:   true,
			FixedDeltaSeconds: 0.05,
		},
	})

	validate(tickSchema, protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		EpisodeID:       "ep-1",
		Frame:           121,
		ElapsedSeconds:  6.05,
		DeltaSeconds:    0.05,
		Actors: []protocol.ActorRecord{
			{
				ID:     7,
				TypeID: "traffic.traffic_light",
				SignID: "42",
				Transform: geom.Transform{
					Location: geom.Location{X: 1.5, Y: -2, Z: 0},
					Rotation: geom.Rotation{Yaw: 90},
				},
			},
		},
	})

	validate(spawnSchema, protocol.SpawnMsg{
		Type:            protocol.TypeSpawn,
		ProtocolVersion: protocol.Version,
		ReqID:           3,
		Blueprint:       "vehicle.tesla.model3",
		Transform:       geom.Transform{Location: geom.Location{Z: 0.5}},
		ParentID:        7,
		Attachment:      protocol.AttachRigid,
	})

	validate(resultSchema, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           3,
		OK:              true,
		Actor: &protocol.ActorRecord{
			ID:     99,
			TypeID: "vehicle.tesla.model3",
		},
	})

	validate(resultSchema, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           4,
		OK:              false,
		Code:            protocol.ErrSpawnCollision,
		Message:         "collision at spawn pose",
	})

	validate(resultSchema, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           5,
		OK:              true,
		Points: []protocol.LabelledPoint{
			{Location: geom.Location{X: 1, Y: 2, Z: 0}, Label: "Road"},
		},
	})
}

func TestSchemas_RejectBadSamples(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "hello.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var v any
	_ = json.Unmarshal([]byte(`{"type":"HELLO","protocol_version":"1.2","client_name":""}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("empty client_name should fail validation")
	}
}
