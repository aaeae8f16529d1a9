package callcore

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// NewCallID mints a process-unique CallId by folding a fresh random UUID
// down to 64 bits. Collisions are astronomically unlikely and, if one ever
// happened, the registry's Get would simply resolve to the other call; this
// is a generator, not a guarantee.
func NewCallID() CallId {
	id := uuid.New()
	hi := binary.BigEndian.Uint64(id[0:8])
	lo := binary.BigEndian.Uint64(id[8:16])
	return CallId(hi ^ lo)
}
