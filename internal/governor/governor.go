// Package governor implements the safety governor (C3): it classifies a
// candidate rate against the previously observed on-chain rate using
// four percent-deviation thresholds, and persists a one-way lockfile
// once a Halt fires, forcing every subsequent tick into dry-run
// regardless of configuration. The two-phase locking (RLock to check,
// Lock to mutate) and functional-options constructor mirror the shape of
// the circuit breaker this package replaces.
package governor

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/concordium/eur2ccd-service/internal/aggregate"
	"github.com/concordium/eur2ccd-service/internal/model"
)

// Thresholds are the four percent-deviation bounds from spec.md section
// 6: warning and halt bounds independently for increases and decreases.
type Thresholds struct {
	WarnUp   *big.Rat
	HaltUp   *big.Rat
	WarnDown *big.Rat
	HaltDown *big.Rat
}

// DefaultThresholds matches spec.md section 6's defaults (30/100/15/50).
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnUp:   big.NewRat(30, 1),
		HaltUp:   big.NewRat(100, 1),
		WarnDown: big.NewRat(15, 1),
		HaltDown: big.NewRat(50, 1),
	}
}

// Governor holds the deviation thresholds and the process-wide forced
// dry-run flag. Once halted, it stays halted for the lifetime of the
// process (spec.md's "forced dry-run as process-wide state" design
// note); the lockfile on disk is what makes the halt survive a
// restart.
type Governor struct {
	mu           sync.RWMutex
	thresholds   Thresholds
	lockFilePath string
	forcedDryRun bool
	log          *logrus.Entry
}

// Option configures a Governor at construction time.
type Option func(*Governor)

// WithLockFilePath overrides the default lockfile location.
func WithLockFilePath(path string) Option {
	return func(g *Governor) { g.lockFilePath = path }
}

// WithLogger attaches a logrus entry the governor annotates with its own
// component field.
func WithLogger(entry *logrus.Entry) Option {
	return func(g *Governor) { g.log = entry.WithField("component", "governor") }
}

const defaultLockFilePath = "/var/lib/concordium-eur2ccd-service/update.lockfile"

// New constructs a Governor. If a lockfile already exists at the
// configured path, the governor starts in forced dry-run, per spec.md
// section 3's LockFile lifecycle ("its presence at startup forces
// dry-run mode regardless of configuration").
func New(thresholds Thresholds, opts ...Option) *Governor {
	g := &Governor{
		thresholds:   thresholds,
		lockFilePath: defaultLockFilePath,
		log:          logrus.WithField("component", "governor"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if _, err := os.Stat(g.lockFilePath); err == nil {
		g.forcedDryRun = true
		g.log.Warn("lockfile present at startup, starting in forced dry-run")
	}
	return g
}

// ForcedDryRun reports whether the process is permanently in dry-run
// because a Halt has fired (this tick or a previous one, this process
// or a previous one).
func (g *Governor) ForcedDryRun() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.forcedDryRun
}

// Classify evaluates a candidate rate against the previous on-chain
// rate and returns the resulting CandidateUpdate. A previous rate of
// zero is treated as Halt (spec.md 4.3: "not expected on a live chain").
func (g *Governor) Classify(newRate, previousOnChain model.Rate) model.CandidateUpdate {
	cu := model.CandidateUpdate{NewRate: newRate, PreviousOnChain: previousOnChain}

	if previousOnChain.Rat().Sign() == 0 {
		cu.Classification = model.ClassificationHalt
		g.trip(cu)
		return cu
	}

	delta := aggregate.RelativeDeviationPercent(newRate.Rat(), previousOnChain.Rat())
	cu.DeviationPercent = delta

	g.mu.RLock()
	t := g.thresholds
	g.mu.RUnlock()

	switch {
	case delta.Cmp(t.HaltUp) >= 0 || delta.Cmp(new(big.Rat).Neg(t.HaltDown)) <= 0:
		cu.Classification = model.ClassificationHalt
		g.trip(cu)
	case (delta.Cmp(t.WarnUp) >= 0 && delta.Cmp(t.HaltUp) < 0) ||
		(delta.Cmp(new(big.Rat).Neg(t.HaltDown)) > 0 && delta.Cmp(new(big.Rat).Neg(t.WarnDown)) <= 0):
		cu.Classification = model.ClassificationWarn
	default:
		cu.Classification = model.ClassificationOK
	}

	return cu
}

// trip marks the process permanently dry-run and, if this is the first
// time, creates the lockfile. Lockfile creation failure is logged but
// does not stop the in-memory forced-dry-run flag from taking effect —
// the in-process state is the primary guard, the file is what makes it
// survive a restart.
func (g *Governor) trip(cu model.CandidateUpdate) {
	g.mu.Lock()
	alreadyTripped := g.forcedDryRun
	g.forcedDryRun = true
	g.mu.Unlock()

	if alreadyTripped {
		return
	}

	g.log.WithFields(logrus.Fields{
		"new_rate":      cu.NewRate.String(),
		"previous_rate": cu.PreviousOnChain.String(),
	}).Error("safety governor halting: deviation exceeds configured bound")

	if err := g.writeLockFile(cu); err != nil {
		g.log.WithError(err).Error("failed to persist halt lockfile")
	}
}

func (g *Governor) writeLockFile(cu model.CandidateUpdate) error {
	if err := os.MkdirAll(filepath.Dir(g.lockFilePath), 0o755); err != nil {
		return fmt.Errorf("create lockfile directory: %w", err)
	}
	contents := fmt.Sprintf("halted_at=%s\nnew_rate=%s\nprevious_rate=%s\n",
		time.Now().UTC().Format(time.RFC3339), cu.NewRate.String(), cu.PreviousOnChain.String())
	if err := os.WriteFile(g.lockFilePath, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write lockfile: %w", err)
	}
	return nil
}
