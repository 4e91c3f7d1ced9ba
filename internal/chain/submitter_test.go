package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/concordium/eur2ccd-service/internal/audit"
	"github.com/concordium/eur2ccd-service/internal/governor"
	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/model"
	"github.com/concordium/eur2ccd-service/internal/security"
)

func newTestSubmitter(t *testing.T, nodes []string) *Submitter {
	t.Helper()
	store := history.NewStore([]string{"bitfinex"}, 10)
	gov := governor.New(governor.DefaultThresholds(), governor.WithLockFilePath(t.TempDir()+"/lock"))
	return New(nodes, []*security.Signer{}, store, gov, nil, (*audit.Sink)(nil), false, 2*time.Second)
}

// No gRPC server is available in this environment to exercise a real
// node round-trip, so this exercises the per-node attempt's own
// control flow against an address nothing is listening on.
func TestAttemptNodeFailsOnUnreachableNode(t *testing.T) {
	s := newTestSubmitter(t, []string{"127.0.0.1:1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rate, ok := model.RateFromFloat(5.0)
	assert.True(t, ok)

	err := s.attemptNode(ctx, "127.0.0.1:1", rate, false)
	assert.Error(t, err)
}

// A tick with no nodes configured must be a no-op, not an error: the
// scheduler should keep retrying on later ticks rather than crash the
// service over a transient config gap.
func TestTickSkipsWhenNoNodesConfigured(t *testing.T) {
	s := newTestSubmitter(t, nil)
	ring := s.Store.Ring("bitfinex")
	rate, ok := model.RateFromFloat(5.0)
	assert.True(t, ok)
	ring.Push(rate)

	err := s.Tick(context.Background())
	assert.NoError(t, err)
}

// With a configured node list that is entirely unreachable, the tick
// must try every candidate in order and still return nil, leaving the
// retry to the next scheduled tick rather than failing the service.
func TestTickExhaustsAllUnreachableNodes(t *testing.T) {
	s := newTestSubmitter(t, []string{"127.0.0.1:1", "127.0.0.1:2"})
	ring := s.Store.Ring("bitfinex")
	rate, ok := model.RateFromFloat(5.0)
	assert.True(t, ok)
	ring.Push(rate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Tick(ctx)
	assert.NoError(t, err)
}

func TestTickSkipsWhenNoHistory(t *testing.T) {
	s := newTestSubmitter(t, []string{"127.0.0.1:1"})

	err := s.Tick(context.Background())
	assert.NoError(t, err, "a tick with no source history yet must be a no-op, not an error")
}
