package audit

import (
	"context"
	"testing"
	"time"

	"github.com/concordium/eur2ccd-service/internal/model"
)

func TestNilSinkRecordIsNoOp(t *testing.T) {
	var s *Sink
	// Must not panic: a nil sink means "no audit hook configured",
	// which is a valid runtime state (database-url is optional).
	s.Record(context.Background(), model.AuditRecord{SubmittedAt: time.Now()}, model.FractionPair{Numerator: 1, Denominator: 2})
	if s.FailureCount() != 0 {
		t.Fatalf("expected zero failures from nil sink, got %d", s.FailureCount())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("expected nil sink Close to be a no-op, got %v", err)
	}
}
