package testutil_test

import (
	"testing"

	"github.com/dwsmith1983/releasepub/internal/provider/providertest"
	"github.com/dwsmith1983/releasepub/internal/testutil"
)

func TestMockStatusStoreConformance(t *testing.T) {
	providertest.RunAll(t, testutil.NewMockStatusStore())
}
