package contributions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

type fakeStorage struct {
	mu       sync.Mutex
	slots    map[string][]byte
	readErr  error
	writeErr error
	writes   int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{slots: make(map[string][]byte)}
}

func (f *fakeStorage) Read(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, false, f.readErr
	}
	payload, ok := f.slots[key]
	return payload, ok, nil
}

func (f *fakeStorage) Write(_ context.Context, key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.slots[key] = append([]byte(nil), payload...)
	f.writes++
	return nil
}

func (f *fakeStorage) raw(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.slots[key])
}

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (g *sequentialIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("c-%03d", g.next), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) {
	return "", errors.New("entropy exhausted")
}

type recordedOperation struct {
	operation string
	outcome   string
}

type spyRecorder struct {
	mu         sync.Mutex
	operations []recordedOperation
	failures   []string
	chains     [][2]int
}

func (r *spyRecorder) ObserveOperation(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, recordedOperation{operation: operation, outcome: outcome})
}

func (r *spyRecorder) ObserveStorageFailure(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, kind)
}

func (r *spyRecorder) ObserveChain(nodes, skippedEdges int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains = append(r.chains, [2]int{nodes, skippedEdges})
}

func newTestStore(t *testing.T) (*Store, *fakeStorage) {
	t.Helper()
	storage := newFakeStorage()
	store, err := NewStore(StoreConfig{
		Storage:    storage,
		Clock:      func() time.Time { return fixedNow },
		IDProvider: &sequentialIDs{},
	})
	require.NoError(t, err)
	return store, storage
}

func contribution(id, parentID, contributor string) Contribution {
	return Contribution{
		ID:                   id,
		Contributor:          contributor,
		ProjectID:            "project-" + contributor,
		Type:                 TypeComment,
		Description:          "contribution " + id,
		Timestamp:            fixedNow,
		ParentContributionID: parentID,
		Tags:                 []string{},
	}
}

func chainIDs(chain Chain) []string {
	ids := make([]string, 0, len(chain.Nodes))
	for _, node := range chain.Nodes {
		ids = append(ids, fmt.Sprintf("%s@%d", node.ID, node.Depth))
	}
	return ids
}
