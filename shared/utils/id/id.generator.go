package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for entity identifiers.
const (
	PrefixEscrow     = "esc"
	PrefixWallet     = "wlt"
	PrefixLedger     = "led"
	PrefixMilestone  = "mst"
	PrefixDispute    = "dsp"
	PrefixTransition = "trn"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateUUID returns a prefixed, lexically sortable ULID, e.g. esc_01HZX...
func GenerateUUID(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return prefix + "_" + id.String()
}
