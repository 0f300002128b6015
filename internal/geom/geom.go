package geom

import "math"

// Location is a point in world space, meters.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vector3D is a direction or offset in world space.
type Vector3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Down is the straight-down direction used for ground projection.
var Down = Vector3D{X: 0, Y: 0, Z: -1}

// Rotation in degrees.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

type Transform struct {
	Location Location `json:"location"`
	Rotation Rotation `json:"rotation"`
}

type BoundingBox struct {
	Location Location `json:"location"`
	Extent   Vector3D `json:"extent"`
	Rotation Rotation `json:"rotation"`
}

func (v Vector3D) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vector3D) Normalized() Vector3D {
	l := v.Length()
	if l == 0 {
		return Vector3D{}
	}
	return Vector3D{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}

func (a Location) Sub(b Location) Vector3D {
	return Vector3D{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func (a Location) Distance(b Location) float64 {
	return a.Sub(b).Length()
}
