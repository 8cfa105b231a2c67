package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

var insertNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/drblury/pulseflow/insert-id"))

// InsertID derives a name-based UUID from the given parts. The same parts always
// yield the same id, so redelivered messages map onto the rows they already wrote.
func InsertID(parts ...string) string {
	return uuid.NewSHA1(insertNamespace, []byte(strings.Join(parts, "/"))).String()
}
