package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(KindState, "not_active", "market: not active")
	wrapped := fmt.Errorf("command: %w", sentinel.Wrap(stderrors.New("cause")))
	if !stderrors.Is(wrapped, sentinel) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	other := New(KindState, "already_active", "market: already active")
	if stderrors.Is(wrapped, other) {
		t.Fatalf("different codes must not match")
	}
	if KindOf(wrapped) != KindState {
		t.Fatalf("unexpected kind %s", KindOf(wrapped))
	}
}

func TestTransferWrapsCause(t *testing.T) {
	cause := stderrors.New("ledger offline")
	err := Transfer("asset seller->custody", cause)
	if !stderrors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure to match ErrTransferFailed")
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("expected cause to remain reachable")
	}
	if KindOf(err) != KindTransfer || CodeOf(err) != CodeTransferFailed {
		t.Fatalf("unexpected classification %s/%s", KindOf(err), CodeOf(err))
	}
	if Transfer("noop", nil) != nil {
		t.Fatalf("nil cause must produce nil error")
	}
	if KindOf(cause) != KindUnknown {
		t.Fatalf("plain errors are unclassified")
	}
}
