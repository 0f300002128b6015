package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		ErrProtoBadRequest,
		ErrEpisodeEnded,
		ErrSpawnCollision,
		ErrBadBlueprint,
		ErrBadAttachment,
		ErrBadRequest,
		ErrInvalidTarget,
		ErrNotSupported,
		ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Fatalf("%s should be known", code)
		}
	}
	if !IsKnownCode("") {
		t.Fatalf("empty code means no error and is always accepted")
	}
	if IsKnownCode("E_NOPE") {
		t.Fatalf("unknown code accepted")
	}
}

func TestDecodeBase_RoutesByType(t *testing.T) {
	base, err := DecodeBase([]byte(`{"type":"TICK","protocol_version":"1.2","frame":7}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if base.Type != TypeTick {
		t.Fatalf("type=%q want TICK", base.Type)
	}
	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("malformed json should error")
	}
}
