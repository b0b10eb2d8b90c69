package sheetforge

import (
	"crypto/rand"
	"time"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newScratchID returns a 12-char random id drawn from idAlphabet, used for
// fork ids and checkpoint ids. Retries with a brief backoff on
// entropy-source failure: generating an id is a must, a transient
// crypto/rand failure should not abort the caller.
func newScratchID() string {
	var err error
	for i := 0; i < 10; i++ {
		var buf [12]byte
		if _, e := rand.Read(buf[:]); e != nil {
			err = e
			time.Sleep(time.Millisecond)
			continue
		}
		out := make([]byte, 12)
		for j, b := range buf {
			out[j] = idAlphabet[int(b)%len(idAlphabet)]
		}
		return string(out)
	}
	panic(err)
}
