package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a random identifier. A non-empty prefix is prepended, which keeps
// memory-store ids readable in logs; Postgres rows use bare UUIDs.
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s-%s", prefix, id)
}
