// Package testutil provides shared test utilities for the publishing pipeline.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/filter"
	"github.com/dwsmith1983/releasepub/internal/provider"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.StatusStore = (*MockStatusStore)(nil)

// StageWrite records one UpdatePublishingStage call.
type StageWrite struct {
	Key   types.ReleasePublishingKey
	Stage types.PublishingStage
}

// MockStatusStore is an in-memory StatusStore that records every stage write.
// Queries are evaluated with filter.Match against the stored records.
type MockStatusStore struct {
	mu       sync.Mutex
	statuses map[types.ReleasePublishingKey]types.ReleasePublishingStatus
	order    []types.ReleasePublishingKey
	writes   []StageWrite
	queries  []string
	locks    map[string]lockEntry

	// FailUpdate, when set, is consulted before each stage write.
	FailUpdate func(key types.ReleasePublishingKey, stage types.PublishingStage) error
	// Now stamps LastUpdated; defaults to time.Now.
	Now func() time.Time
}

type lockEntry struct {
	token   string
	expires time.Time
}

// NewMockStatusStore creates an empty store seeded with statuses.
func NewMockStatusStore(statuses ...types.ReleasePublishingStatus) *MockStatusStore {
	m := &MockStatusStore{
		statuses: make(map[types.ReleasePublishingKey]types.ReleasePublishingStatus),
		locks:    make(map[string]lockEntry),
		Now:      time.Now,
	}
	for _, s := range statuses {
		_ = m.Put(context.Background(), s)
	}
	return m
}

// Writes returns a copy of the recorded stage writes.
func (m *MockStatusStore) Writes() []StageWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StageWrite(nil), m.writes...)
}

// Queries returns the rendered filters of every query issued.
func (m *MockStatusStore) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Status returns the stored record for key.
func (m *MockStatusStore) Status(key types.ReleasePublishingKey) (types.ReleasePublishingStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[key]
	return s, ok
}

func (m *MockStatusStore) GetScheduledReleasesForPublishingRelativeToDate(_ context.Context, cmp types.DateComparison, ref time.Time) ([]types.ReleasePublishingKey, error) {
	f, err := filter.ScheduledRelativeTo(cmp, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrInvalidArgument, err)
	}
	return m.query(f), nil
}

func (m *MockStatusStore) GetScheduledReleasesReadyForPublishing(_ context.Context) ([]types.ReleasePublishingKey, error) {
	return m.query(filter.ScheduledReadyForPublishing()), nil
}

func (m *MockStatusStore) GetReleasesStartedPublishing(_ context.Context) ([]types.ReleasePublishingKey, error) {
	return m.query(filter.StartedPublishing()), nil
}

func (m *MockStatusStore) GetReleasesWithOverallStages(_ context.Context, releaseVersionID uuid.UUID, stages []types.OverallStage) ([]types.ReleasePublishingKey, error) {
	f, err := filter.WithOverallStages(releaseVersionID, stages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrInvalidArgument, err)
	}
	return m.query(f), nil
}

func (m *MockStatusStore) query(f filter.Expr) []types.ReleasePublishingKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, f.String())

	var keys []types.ReleasePublishingKey
	for _, k := range m.order {
		s := m.statuses[k]
		if filter.Match(f, fieldLookup(s)) {
			keys = append(keys, k)
		}
	}
	return keys
}

func fieldLookup(s types.ReleasePublishingStatus) func(string) (string, bool) {
	return func(field string) (string, bool) {
		switch field {
		case filter.FieldPartitionKey:
			return s.Key.ReleaseVersionID.String(), true
		case filter.FieldRowKey:
			return s.Key.ReleaseStatusID.String(), true
		case filter.FieldContentStage:
			return string(s.ContentStage), true
		case filter.FieldFilesStage:
			return string(s.FilesStage), true
		case filter.FieldPublishingStage:
			return string(s.PublishingStage), true
		case filter.FieldOverallStage:
			return string(s.OverallStage), true
		case filter.FieldPublish:
			if s.Publish == nil {
				return "", false
			}
			return s.Publish.UTC().Format(filter.DateTimeLayout), true
		}
		return "", false
	}
}

func (m *MockStatusStore) Get(_ context.Context, key types.ReleasePublishingKey) (*types.ReleasePublishingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MockStatusStore) GetStatuses(_ context.Context, keys []types.ReleasePublishingKey) ([]types.ReleasePublishingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.ReleasePublishingStatus
	for _, k := range keys {
		if s, ok := m.statuses[k]; ok {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MockStatusStore) Put(_ context.Context, status types.ReleasePublishingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.statuses[status.Key]; !exists {
		m.order = append(m.order, status.Key)
	}
	m.statuses[status.Key] = status
	return nil
}

func (m *MockStatusStore) UpdatePublishingStage(_ context.Context, key types.ReleasePublishingKey, stage types.PublishingStage) error {
	if m.FailUpdate != nil {
		if err := m.FailUpdate(key, stage); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[key]
	if !ok {
		return fmt.Errorf("%w: %s", provider.ErrStatusNotFound, key)
	}
	s.PublishingStage = stage
	if overall, ok := types.OverallFor(stage); ok {
		s.OverallStage = overall
	}
	s.LastUpdated = m.Now()
	m.statuses[key] = s
	m.writes = append(m.writes, StageWrite{Key: key, Stage: stage})
	return nil
}

func (m *MockStatusStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if l, ok := m.locks[key]; ok && now.Before(l.expires) {
		return "", nil
	}
	token := uuid.NewString()
	m.locks[key] = lockEntry{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (m *MockStatusStore) ReleaseLock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok && l.token == token {
		delete(m.locks, key)
	}
	return nil
}

// LockHeld reports whether key is currently locked.
func (m *MockStatusStore) LockHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	return ok && m.Now().Before(l.expires)
}

// SortKeys orders keys by their string form.
func SortKeys(keys []types.ReleasePublishingKey) []types.ReleasePublishingKey {
	out := append([]types.ReleasePublishingKey(nil), keys...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
