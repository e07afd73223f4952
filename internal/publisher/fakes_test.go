package publisher_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dwsmith1983/releasepub/internal/content"
	"github.com/dwsmith1983/releasepub/pkg/types"
)

// calls records collaborator calls in order across every fake.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, fmt.Sprintf(format, args...))
}

func (c *calls) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

func (c *calls) count(prefix string) int {
	n := 0
	for _, l := range c.all() {
		if len(l) >= len(prefix) && l[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeMethodologies struct {
	calls *calls
	err   error
}

func (f *fakeMethodologies) PublishForRelease(_ context.Context, rv *content.ReleaseVersion) ([]uuid.UUID, error) {
	f.calls.add("methodologies %s", rv.ID)
	return nil, f.err
}

type fakeCache struct {
	calls  *calls
	errFor map[string]error
}

func (f *fakeCache) UpdatePublication(_ context.Context, slug string) error {
	f.calls.add("cache publication %s", slug)
	return f.errFor["publication:"+slug]
}

func (f *fakeCache) UpdateRedirects(context.Context) error {
	f.calls.add("cache redirects")
	return f.errFor["redirects"]
}

func (f *fakeCache) UpdateTaxonomy(context.Context) error {
	f.calls.add("cache taxonomy")
	return f.errFor["taxonomy"]
}

func (f *fakeCache) RemoveSupersededContent(_ context.Context, rv *content.ReleaseVersion) error {
	f.calls.add("cache superseded %s", rv.ID)
	return nil
}

type fakeNotifier struct {
	calls *calls
	ids   [][]uuid.UUID
}

func (f *fakeNotifier) NotifySubscribers(_ context.Context, ids []uuid.UUID) error {
	f.calls.add("notify %d", len(ids))
	f.ids = append(f.ids, ids)
	return nil
}

type fakeDataSets struct {
	calls *calls
	ids   [][]uuid.UUID
}

func (f *fakeDataSets) PublishDataSetVersions(_ context.Context, ids []uuid.UUID) error {
	f.calls.add("datasets %d", len(ids))
	f.ids = append(f.ids, ids)
	return nil
}

type fakeEvents struct {
	calls *calls
	infos []types.PublishedReleaseVersionInfo
	err   error
}

func (f *fakeEvents) RaiseReleaseVersionPublishedEvents(_ context.Context, infos []types.PublishedReleaseVersionInfo) error {
	f.calls.add("events %d", len(infos))
	f.infos = append(f.infos, infos...)
	return f.err
}
