package client

import (
	"path"

	"roadsim.ai/internal/geom"
)

// Landmark is a road-map entity carrying a stable sign id. It may or may not
// correspond to a currently spawned traffic-control actor.
type Landmark struct {
	ID        string
	Name      string
	Transform geom.Transform
}

// ControllerKind selects which traffic-control category to resolve.
type ControllerKind int

const (
	ControllerSign ControllerKind = iota
	ControllerLight
)

// Type-id patterns per kind. The sign pattern is deliberately broad and also
// matches traffic lights; kept from the source behavior.
func (k ControllerKind) pattern() string {
	if k == ControllerLight {
		return "*traffic_light*"
	}
	return "*traffic.*"
}

// ResolveController finds the live actor controlling the landmark, or nil if
// none is spawned. Linear scan over the current actor set: controller counts
// are small relative to total actor counts, so no index is kept. First match
// in directory order wins; duplicate sign ids are not validated against.
func (w *World) ResolveController(lm Landmark, kind ControllerKind) (*Actor, error) {
	actors, err := w.GetActors()
	if err != nil {
		return nil, err
	}
	for _, a := range actors {
		if ok, _ := path.Match(kind.pattern(), a.TypeID()); !ok {
			continue
		}
		if a.SignID() == lm.ID {
			return a, nil
		}
	}
	return nil, nil
}
