package contributions

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	// IDGeneratorULID issues lexically sortable ULIDs (millisecond time + random suffix).
	IDGeneratorULID = "ulid"
	// IDGeneratorUUIDv7 issues time-ordered UUIDv7 identifiers.
	IDGeneratorUUIDv7 = "uuidv7"
)

// IDProvider issues identifiers for new contributions.
type IDProvider interface {
	NewID() (string, error)
}

// NewIDProvider resolves a generator name to its provider.
func NewIDProvider(name string) (IDProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case IDGeneratorULID, "":
		return NewULIDProvider(nil), nil
	case IDGeneratorUUIDv7:
		return NewUUIDProvider(), nil
	default:
		return nil, fmt.Errorf("contributions: unknown id generator %q", name)
	}
}

type ulidProvider struct {
	mu      sync.Mutex
	clock   func() time.Time
	entropy *ulid.MonotonicEntropy
}

// NewULIDProvider constructs an IDProvider backed by monotonic ULIDs; a nil clock uses time.Now.
func NewULIDProvider(clock func() time.Time) IDProvider {
	if clock == nil {
		clock = time.Now
	}
	return &ulidProvider{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (p *ulidProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	value, err := ulid.New(ulid.Timestamp(p.clock()), p.entropy)
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
