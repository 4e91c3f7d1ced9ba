package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/concordium/eur2ccd-service/internal/aggregate"
	"github.com/concordium/eur2ccd-service/internal/audit"
	"github.com/concordium/eur2ccd-service/internal/governor"
	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/metrics"
	"github.com/concordium/eur2ccd-service/internal/model"
	"github.com/concordium/eur2ccd-service/internal/security"
	"github.com/concordium/eur2ccd-service/internal/telemetry"
)

const updateExpiryOffset = 100 * time.Second

// errHalted signals that the tick's per-node loop should stop without
// error: the governor halted, or the tick turned out to be a dry run.
// Either way there is nothing left for the next node to try.
var errHalted = errors.New("update tick halted")

// fatalRejectError wraps a non-duplicate chain rejection, which ends
// the tick immediately rather than advancing to the next node
// (spec.md 4.4 step 7).
type fatalRejectError struct {
	reason string
}

func (e *fatalRejectError) Error() string {
	return fmt.Sprintf("chain rejected update: %s", e.reason)
}

// Submitter owns the governance signers and the list of node addresses,
// and performs the C4 update tick against the shared history store.
type Submitter struct {
	Nodes        []string
	Signers      []*security.Signer
	Store        *history.Store
	Governor     *governor.Governor
	Metrics      *metrics.Metrics
	Audit        *audit.Sink
	DryRun       bool // operator-configured dry-run, independent of the governor's forced dry-run
	TickDeadline time.Duration

	log *logrus.Entry
}

// New constructs a Submitter.
func New(nodes []string, signers []*security.Signer, store *history.Store, gov *governor.Governor, m *metrics.Metrics, auditSink *audit.Sink, dryRun bool, tickDeadline time.Duration) *Submitter {
	return &Submitter{
		Nodes: nodes, Signers: signers, Store: store, Governor: gov,
		Metrics: m, Audit: auditSink, DryRun: dryRun, TickDeadline: tickDeadline,
		log: logrus.WithField("component", "submitter"),
	}
}

// Tick performs one update-tick. It tries each configured node in
// order, folding fetch, governance classification, signing and
// broadcast into a single per-node attempt (spec.md 4.4 step 1: "on
// any failure - connection, RPC, decoding, or chain rejection for a
// non-permanent reason - advance to the next node"), so a node that
// connects fine but fails the broadcast RPC still gets a chance to fail
// over rather than aborting the whole tick. An explicit chain rejection
// (a non-empty reject reason that is not a duplicate sequence number)
// ends the tick without trying further nodes.
func (s *Submitter) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.TickDeadline)
	defer cancel()
	ctx, span := telemetry.Tracer().Start(ctx, "update_tick")
	defer span.End()

	dryRun := s.DryRun || s.Governor.ForcedDryRun()
	if s.Metrics != nil {
		if dryRun {
			s.Metrics.DryRunActive.Set(1)
		} else {
			s.Metrics.DryRunActive.Set(0)
		}
	}

	// Step 3: compute candidate before spending a node connection — if
	// there is nothing to aggregate, skip the tick entirely.
	candidate, ok := aggregate.Aggregate(s.Store)
	if !ok {
		s.log.Debug("no source history available yet, skipping update tick")
		return nil
	}

	if len(s.Nodes) == 0 {
		s.log.Warn("no nodes configured, skipping update tick")
		return nil
	}

	var lastErr error
	for _, addr := range s.Nodes {
		err := s.attemptNode(ctx, addr, candidate, dryRun)
		if err == nil {
			return nil
		}
		if errors.Is(err, errHalted) {
			return nil
		}
		var fatal *fatalRejectError
		if errors.As(err, &fatal) {
			telemetry.RecordError(ctx, err)
			if s.Metrics != nil {
				s.Metrics.SubmissionsFailedTotal.Inc()
			}
			s.log.WithError(err).WithField("node", addr).Error("chain rejected the update, not retrying this tick")
			return err
		}
		telemetry.RecordError(ctx, err)
		s.log.WithError(err).WithField("node", addr).Warn("node attempt failed, trying next node")
		lastErr = err
	}

	if s.Metrics != nil {
		s.Metrics.SubmissionsFailedTotal.Inc()
	}
	s.log.WithError(lastErr).Warn("no node completed the update tick, will retry next tick")
	return nil
}

// attemptNode runs steps 2 and 4-7 of spec.md 4.4 against one node:
// fetch current parameters, classify against the safety governor, sign
// and broadcast. A nil return means the tick is done. errHalted means
// the tick is done without broadcasting. Any other error means this
// node's attempt failed and the caller should try the next node,
// except a *fatalRejectError, which ends the tick outright.
func (s *Submitter) attemptNode(ctx context.Context, addr string, candidate model.Rate, dryRun bool) error {
	attemptCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()

	node, err := Dial(addr)
	if err != nil {
		return fmt.Errorf("dial node %s: %w", addr, err)
	}
	defer node.Close()

	consensus, err := node.ConsensusStatus(attemptCtx)
	if err != nil {
		return fmt.Errorf("fetch consensus status from %s: %w", addr, err)
	}
	if s.Metrics != nil {
		s.Metrics.ProtocolVersion.Set(float64(consensus.ProtocolVersion))
	}

	params, err := node.ChainParameters(attemptCtx)
	if err != nil {
		return fmt.Errorf("fetch chain parameters from %s: %w", addr, err)
	}

	previous, ok := model.NewRate(ratInt(params.CurrentNumerator), ratInt(params.CurrentDenominator))
	if !ok {
		return fmt.Errorf("node %s returned an invalid previous rate", addr)
	}

	// Step 4: governor check.
	cu := s.Governor.Classify(candidate, previous)
	switch cu.Classification {
	case model.ClassificationHalt:
		if s.Metrics != nil {
			s.Metrics.HaltTotal.Inc()
		}
		s.log.WithField("deviation_pct", cu.DeviationPercent).Error("update tick halted by safety governor")
		return errHalted
	case model.ClassificationWarn:
		if s.Metrics != nil {
			s.Metrics.WarnTotal.Inc()
		}
		s.log.WithField("deviation_pct", cu.DeviationPercent).Warn("update tick classified as warn, submitting anyway")
	}

	if dryRun {
		s.log.WithField("candidate_rate", candidate.String()).Info("dry-run: would submit this candidate rate")
		return errHalted
	}

	// Step 5: build payload.
	fraction := aggregate.ReduceToFraction(candidate.Rat(), aggregate.DefaultEpsilon())
	intent := model.ChainUpdateIntent{
		Rate:           candidate,
		Fraction:       fraction,
		SequenceNumber: params.NextSequenceNumber,
		EffectiveTime:  0,
		ExpiryTime:     time.Now().Add(updateExpiryOffset),
	}

	// Step 6: threshold signing with every authorized key held.
	authorized := make(map[uint16]bool, len(params.AuthorizedKeys))
	for _, idx := range params.AuthorizedKeys {
		authorized[idx] = true
	}
	payloadHash := signingPayload(intent)
	sigs, err := security.ThresholdSign(s.Signers, params.Level2Keys, authorized, params.Threshold, payloadHash)
	if err != nil {
		return fmt.Errorf("sign update: %w", err)
	}
	intent.Signatures = sigs

	// Step 7: broadcast.
	resp, err := node.SubmitUpdate(ctx, intent)
	if err != nil {
		return fmt.Errorf("broadcast update via %s: %w", addr, err)
	}
	if resp.RejectReason != "" && !resp.DuplicateSequenceNumber {
		return &fatalRejectError{reason: resp.RejectReason}
	}
	if !resp.Accepted && !resp.DuplicateSequenceNumber {
		return fmt.Errorf("node %s did not accept the update", addr)
	}

	// Duplicate-sequence and accepted both count as success.
	if s.Metrics != nil {
		s.Metrics.SubmissionsTotal.Inc()
		s.Metrics.LastSubmittedNumerator.Set(float64(fraction.Numerator))
		s.Metrics.LastSubmittedDenominator.Set(float64(fraction.Denominator))
	}

	// Step 8: post-conditions, audit hook (never blocks future updates).
	observed := snapshotLatest(s.Store)
	s.Audit.Record(context.Background(), model.AuditRecord{
		ObservedSources: observed,
		AggregatedRate:  candidate,
		SubmittedRate:   candidate,
		SubmittedAt:     time.Now(),
	}, fraction)

	return nil
}

func snapshotLatest(store *history.Store) map[string]model.Rate {
	out := make(map[string]model.Rate)
	for _, src := range store.Sources() {
		ring := store.Ring(src)
		snap := ring.Snapshot()
		if len(snap) == 0 {
			continue
		}
		out[src] = snap[len(snap)-1]
	}
	return out
}
