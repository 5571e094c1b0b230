package domain

import "testing"

func TestOperation_Lifecycle(t *testing.T) {
	op := NewOperation("acc-1")

	if op.Status != OperationStatusPending {
		t.Errorf("expected pending, got %s", op.Status)
	}
	if op.ID == "" {
		t.Error("expected assigned operation ID")
	}

	op.MarkInProgress()
	if op.Status != OperationStatusInProgress || op.StartedAt == nil {
		t.Errorf("unexpected in-progress state %+v", op)
	}

	op.MarkCompleted(42)
	if op.Status != OperationStatusCompleted || op.Processed != 42 || op.CompletedAt == nil {
		t.Errorf("unexpected completed state %+v", op)
	}
}

func TestOperation_MarkFailed_AccumulatesErrors(t *testing.T) {
	op := NewOperation("acc-1")

	op.MarkFailed("attempt one")
	op.MarkFailed("attempt two")

	if op.Status != OperationStatusFailed {
		t.Errorf("expected failed, got %s", op.Status)
	}
	if len(op.Errors) != 2 {
		t.Errorf("expected 2 recorded errors, got %d", len(op.Errors))
	}
}
