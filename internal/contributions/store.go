package contributions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStorage    = errors.New("storage port is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew        = "contributions.store.new"
	opLoadAll         = "contributions.load_all"
	opSaveAll         = "contributions.save_all"
	opAdd             = "contributions.add"
	opCreate          = "contributions.create"
	opGetByID         = "contributions.get_by_id"
	opGetByProject    = "contributions.get_by_project"
	opListByType      = "contributions.list_by_type"
	opUpdateResonance = "contributions.update_resonance"
	opGetChain        = "contributions.get_chain"
	opAncestryDepth   = "contributions.ancestry_depth"
	opSeed            = "contributions.seed"

	reasonMissingStorage    = "missing_storage"
	reasonMissingIDProvider = "missing_id_provider"
	reasonReadFailed        = "read_failed"
	reasonDecodeFailed      = "decode_failed"
	reasonRecordSkipped     = "record_skipped"
	reasonEncodeFailed      = "encode_failed"
	reasonWriteFailed       = "write_failed"
	reasonConstructFailed   = "construct_failed"
	reasonInvalidDraft      = "invalid_draft"
	reasonSeedDecodeFailed  = "seed_decode_failed"

	// Outcome labels reported to the Recorder.
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeSkipped  = "skipped"

	// Failure kinds reported to the Recorder.
	FailureLoad   = "load"
	FailureSave   = "save"
	FailureRecord = "record"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Storage is the port to the external key-value slot holding the serialized collection.
type Storage interface {
	// Read returns the payload stored under key; found is false when the slot is empty.
	Read(ctx context.Context, key string) (payload []byte, found bool, err error)
	// Write replaces the payload stored under key.
	Write(ctx context.Context, key string, payload []byte) error
}

// Recorder receives operational observations; internal/metrics provides the prometheus implementation.
type Recorder interface {
	ObserveOperation(operation, outcome string)
	ObserveStorageFailure(kind string)
	ObserveChain(nodes, skippedEdges int)
}

type noOpRecorder struct{}

func (noOpRecorder) ObserveOperation(string, string) {}
func (noOpRecorder) ObserveStorageFailure(string)    {}
func (noOpRecorder) ObserveChain(int, int)           {}

type StoreConfig struct {
	Storage    Storage
	Key        string
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Recorder   Recorder
}

// Store owns the contribution collection. Every operation reloads the persisted slot, so
// there is no cached state to go stale; writes replace the whole collection without any
// version check, and concurrent writers can overwrite each other.
type Store struct {
	storage  Storage
	key      string
	defaults defaults
	logger   *zap.Logger
	recorder Recorder
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Storage == nil {
		return nil, newServiceError(opStoreNew, reasonMissingStorage, errMissingStorage)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, reasonMissingIDProvider, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	key := cfg.Key
	if key == "" {
		key = StorageKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noOpRecorder{}
	}

	return &Store{
		storage:  cfg.Storage,
		key:      key,
		defaults: defaults{clock: clock, idProvider: cfg.IDProvider},
		logger:   logger,
		recorder: recorder,
	}, nil
}

// LoadAll returns the persisted collection. A missing or unreadable slot yields an empty slice;
// individual records that cannot be decoded are dropped and counted as FailureRecord.
func (s *Store) LoadAll(ctx context.Context) []Contribution {
	payload, found, err := s.storage.Read(ctx, s.key)
	if err != nil {
		s.logError(opLoadAll, reasonReadFailed, err, zap.String("key", s.key))
		s.recorder.ObserveStorageFailure(FailureLoad)
		return []Contribution{}
	}
	if !found || len(bytes.TrimSpace(payload)) == 0 {
		return []Contribution{}
	}
	items, skipped, err := s.defaults.decodeCollection(payload)
	if err != nil {
		s.logError(opLoadAll, reasonDecodeFailed, err, zap.String("key", s.key))
		s.recorder.ObserveStorageFailure(FailureLoad)
		return []Contribution{}
	}
	for _, recordErr := range skipped {
		s.logError(opLoadAll, reasonRecordSkipped, recordErr, zap.String("key", s.key))
		s.recorder.ObserveStorageFailure(FailureRecord)
	}
	return items
}

// SaveAll replaces the persisted collection. Failures are logged and counted, never returned,
// so callers cannot rely on the write having been durable.
func (s *Store) SaveAll(ctx context.Context, items []Contribution) {
	payload, err := encodeCollection(items)
	if err != nil {
		s.logError(opSaveAll, reasonEncodeFailed, err, zap.String("key", s.key))
		s.recorder.ObserveStorageFailure(FailureSave)
		return
	}
	if err := s.storage.Write(ctx, s.key, payload); err != nil {
		s.logError(opSaveAll, reasonWriteFailed, err,
			zap.String("key", s.key),
			zap.Int("count", len(items)))
		s.recorder.ObserveStorageFailure(FailureSave)
	}
}

// Add prepends the contribution (newest first) and persists the collection.
// Identifier uniqueness is the constructor's responsibility; no duplicate check is made.
func (s *Store) Add(ctx context.Context, contribution Contribution) Contribution {
	items := s.LoadAll(ctx)
	updated := make([]Contribution, 0, len(items)+1)
	updated = append(updated, contribution)
	updated = append(updated, items...)
	s.SaveAll(ctx, updated)
	s.recorder.ObserveOperation(opAdd, OutcomeOK)
	return contribution
}

// Construct builds a contribution from fields, filling the id, timestamp, tags and resonance defaults.
func (s *Store) Construct(fields Contribution) (Contribution, error) {
	contribution, err := s.defaults.construct(fields)
	if err != nil {
		s.logError(opCreate, reasonConstructFailed, err)
		return Contribution{}, newServiceError(opCreate, reasonConstructFailed, err)
	}
	return contribution, nil
}

// Create normalizes and validates a draft, constructs the contribution and adds it.
// Validation failures are returned as *ValidationError.
func (s *Store) Create(ctx context.Context, draft Draft) (Contribution, error) {
	normalized := draft.Normalize()
	if err := normalized.Validate(); err != nil {
		s.recorder.ObserveOperation(opCreate, OutcomeInvalid)
		s.logger.Debug("contribution draft rejected",
			zap.String("operation", opCreate),
			zap.String("reason", reasonInvalidDraft),
			zap.Error(err))
		return Contribution{}, err
	}
	contribution, err := s.Construct(Contribution{
		Contributor:          normalized.Contributor,
		ProjectID:            normalized.ProjectID,
		Type:                 normalized.Type,
		Description:          normalized.Description,
		ParentContributionID: normalized.ParentContributionID,
		Tags:                 normalized.Tags,
	})
	if err != nil {
		return Contribution{}, err
	}
	s.recorder.ObserveOperation(opCreate, OutcomeOK)
	return s.Add(ctx, contribution), nil
}

// GetByID returns the first contribution with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (Contribution, bool) {
	for _, item := range s.LoadAll(ctx) {
		if item.ID == id {
			s.recorder.ObserveOperation(opGetByID, OutcomeOK)
			return item, true
		}
	}
	s.recorder.ObserveOperation(opGetByID, OutcomeNotFound)
	return Contribution{}, false
}

// GetByProject returns contributions whose project id equals projectID exactly, in stored order.
func (s *Store) GetByProject(ctx context.Context, projectID string) []Contribution {
	matches := make([]Contribution, 0)
	for _, item := range s.LoadAll(ctx) {
		if item.ProjectID == projectID {
			matches = append(matches, item)
		}
	}
	s.recorder.ObserveOperation(opGetByProject, OutcomeOK)
	return matches
}

// ListByType returns contributions of the given type in stored order; an empty type returns all.
func (s *Store) ListByType(ctx context.Context, contributionType ContributionType) []Contribution {
	items := s.LoadAll(ctx)
	s.recorder.ObserveOperation(opListByType, OutcomeOK)
	if contributionType == "" {
		return items
	}
	matches := make([]Contribution, 0, len(items))
	for _, item := range items {
		if item.Type == contributionType {
			matches = append(matches, item)
		}
	}
	return matches
}

// UpdateResonance adds delta to the contribution's resonance, flooring at zero, and persists.
// An unknown id returns false and leaves the collection untouched.
func (s *Store) UpdateResonance(ctx context.Context, id string, delta int) (Contribution, bool) {
	items := s.LoadAll(ctx)
	for index := range items {
		if items[index].ID != id {
			continue
		}
		items[index].Resonance = max(0, items[index].Resonance+delta)
		s.SaveAll(ctx, items)
		s.recorder.ObserveOperation(opUpdateResonance, OutcomeOK)
		return items[index], true
	}
	s.recorder.ObserveOperation(opUpdateResonance, OutcomeNotFound)
	return Contribution{}, false
}

// GetChain reconstructs the chain containing id. It never writes to storage.
func (s *Store) GetChain(ctx context.Context, id string) Chain {
	chain := BuildChain(s.LoadAll(ctx), id)
	if len(chain.Nodes) == 0 {
		s.recorder.ObserveOperation(opGetChain, OutcomeNotFound)
		return chain
	}
	if chain.SkippedEdges > 0 {
		s.logger.Warn("contribution chain contains cyclic links",
			zap.String("operation", opGetChain),
			zap.String("contribution_id", id),
			zap.String("root_id", chain.RootID),
			zap.Int("skipped_edges", chain.SkippedEdges))
	}
	s.recorder.ObserveOperation(opGetChain, OutcomeOK)
	s.recorder.ObserveChain(len(chain.Nodes), chain.SkippedEdges)
	return chain
}

// AncestryDepth reports how many parent hops separate id from its chain root.
func (s *Store) AncestryDepth(ctx context.Context, id string) (int, bool) {
	depth, ok := AncestryDepth(s.LoadAll(ctx), id)
	if !ok {
		s.recorder.ObserveOperation(opAncestryDepth, OutcomeNotFound)
		return 0, false
	}
	s.recorder.ObserveOperation(opAncestryDepth, OutcomeOK)
	return depth, true
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("contributions store error", attrs...)
}
