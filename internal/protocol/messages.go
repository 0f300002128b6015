package protocol

import "roadsim.ai/internal/geom"

// Query kinds (QUERY.what).
const (
	QueryProjectPoint = "project_point"
	QueryCastRay      = "cast_ray"
	QuerySettings     = "settings"
	QueryWeather      = "weather"
	QuerySpectator    = "spectator"
	QueryNavLocation  = "nav_location"
	QueryEnvObjects   = "env_objects"
)

// Apply ops (APPLY.op).
const (
	ApplySettings     = "settings"
	ApplyWeather      = "weather"
	ApplyFreezeLights = "freeze_lights"
	ApplyResetLights  = "reset_lights"
	ApplyEnvObjects   = "env_objects"
)

// Attachment kinds (SPAWN.attachment).
const (
	AttachRigid     = "rigid"
	AttachSpringArm = "spring_arm"
)

// ActorRecord is the per-actor state the server reports with every tick.
// SignID is only set for traffic-control actors.
type ActorRecord struct {
	ID        uint64         `json:"id"`
	TypeID    string         `json:"type_id"`
	SignID    string         `json:"sign_id,omitempty"`
	ParentID  uint64         `json:"parent_id,omitempty"`
	Transform geom.Transform `json:"transform"`
	Velocity  geom.Vector3D  `json:"velocity"`
}

type EpisodeSettings struct {
	SynchronousMode   bool    `json:"synchronous_mode"`
	FixedDeltaSeconds float64 `json:"fixed_delta_seconds,omitempty"`
	NoRenderingMode   bool    `json:"no_rendering_mode,omitempty"`
}

type WeatherParameters struct {
	Cloudiness       float64 `json:"cloudiness"`
	Precipitation    float64 `json:"precipitation"`
	WindIntensity    float64 `json:"wind_intensity"`
	FogDensity       float64 `json:"fog_density,omitempty"`
	SunAzimuthAngle  float64 `json:"sun_azimuth_angle"`
	SunAltitudeAngle float64 `json:"sun_altitude_angle"`
}

// LabelledPoint is a geometry hit tagged with the semantic label of the
// surface it lies on.
type LabelledPoint struct {
	Location geom.Location `json:"location"`
	Label    string        `json:"label"`
}

type EnvironmentObject struct {
	ID          uint64           `json:"id"`
	Name        string           `json:"name"`
	TypeID      string           `json:"type_id"`
	Transform   geom.Transform   `json:"transform"`
	BoundingBox geom.BoundingBox `json:"bounding_box"`
	Enabled     bool             `json:"enabled"`
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	AuthToken       string `json:"auth_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	EpisodeID       string          `json:"episode_id"`
	MapName         string          `json:"map_name"`
	Frame           uint64          `json:"frame"`
	Settings        EpisodeSettings `json:"settings"`
}

// TICK (server -> client): one world snapshot. Sent for every completed
// simulation step, whether free-running or requested via STEP.
type TickMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	EpisodeID       string        `json:"episode_id"`
	Frame           uint64        `json:"frame"`
	ElapsedSeconds  float64       `json:"elapsed_seconds"`
	DeltaSeconds    float64       `json:"delta_seconds"`
	Actors          []ActorRecord `json:"actors"`
}

// STEP (client -> server): advance exactly one simulation step.
// Answered with a RESULT carrying the new frame; the step's snapshot
// arrives as a regular TICK.
type StepMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           uint64 `json:"req_id"`
}

// SPAWN (client -> server)
type SpawnMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ReqID           uint64         `json:"req_id"`
	Blueprint       string         `json:"blueprint"`
	Transform       geom.Transform `json:"transform"`
	ParentID        uint64         `json:"parent_id,omitempty"`
	Attachment      string         `json:"attachment,omitempty"`
}

// DESTROY (client -> server)
type DestroyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           uint64 `json:"req_id"`
	ActorID         uint64 `json:"actor_id"`
}

// QUERY (client -> server): read-only questions about the episode.
type QueryMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ReqID           uint64         `json:"req_id"`
	What            string         `json:"what"`
	Location        *geom.Location `json:"location,omitempty"`
	Direction       *geom.Vector3D `json:"direction,omitempty"`
	Distance        float64        `json:"distance,omitempty"`
	End             *geom.Location `json:"end,omitempty"`
}

// APPLY (client -> server): episode-level mutations.
type ApplyMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	ReqID           uint64             `json:"req_id"`
	Op              string             `json:"op"`
	Settings        *EpisodeSettings   `json:"settings,omitempty"`
	Weather         *WeatherParameters `json:"weather,omitempty"`
	Frozen          bool               `json:"frozen,omitempty"`
	ObjectIDs       []uint64           `json:"object_ids,omitempty"`
	Enable          bool               `json:"enable,omitempty"`
}

// RESULT (server -> client): answer to any req_id-carrying request.
// Exactly the fields relevant to the request kind are set.
type ResultMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	ReqID           uint64              `json:"req_id"`
	OK              bool                `json:"ok"`
	Code            string              `json:"code,omitempty"`
	Message         string              `json:"message,omitempty"`
	Frame           uint64              `json:"frame,omitempty"`
	Actor           *ActorRecord        `json:"actor,omitempty"`
	Points          []LabelledPoint     `json:"points,omitempty"`
	Location        *geom.Location      `json:"location,omitempty"`
	Settings        *EpisodeSettings    `json:"settings,omitempty"`
	Weather         *WeatherParameters  `json:"weather,omitempty"`
	Objects         []EnvironmentObject `json:"objects,omitempty"`
}

// BYE (server -> client): episode ended; the connection is no longer usable.
type ByeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Reason          string `json:"reason,omitempty"`
}
