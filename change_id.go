package sheetforge

import (
	"time"

	"github.com/google/uuid"
)

// newChangeID returns a new random id for a staged change. Generating an
// id is a must, so a transient entropy-source failure is retried with a
// 1ms backoff rather than surfaced to the caller.
func newChangeID() string {
	var err error
	for i := 0; i < 10; i++ {
		var id uuid.UUID
		id, err = uuid.NewRandom()
		if err == nil {
			return id.String()
		}
		time.Sleep(time.Millisecond)
	}
	panic(err)
}
