package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Episode lifecycle.
	ErrEpisodeEnded = "E_EPISODE_ENDED"

	// Spawn path.
	ErrSpawnCollision = "E_SPAWN_COLLISION"
	ErrBadBlueprint   = "E_BAD_BLUEPRINT"
	ErrBadAttachment  = "E_BAD_ATTACHMENT"

	// Generic request layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrNotSupported  = "E_NOT_SUPPORTED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrEpisodeEnded:    {},
	ErrSpawnCollision:  {},
	ErrBadBlueprint:    {},
	ErrBadAttachment:   {},
	ErrBadRequest:      {},
	ErrInvalidTarget:   {},
	ErrNotSupported:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
