package variable

import (
	"errors"
	"testing"
)

func TestPermittedActions_Matched(t *testing.T) {
	got := PermittedActions(StatusMatched)
	want := []Action{ActionSendToValidation, ActionSearchMore}

	if len(got) != len(want) {
		t.Fatalf("expected %d actions, got %v", len(want), got)
	}
	for i, a := range want {
		if got[i] != a {
			t.Fatalf("expected action %q at %d, got %q", a, i, got[i])
		}
	}
}

func TestPermittedActions_RequesterReview(t *testing.T) {
	got := PermittedActions(StatusRequesterReview)
	want := map[Action]bool{ActionConfirm: true, ActionRequestAlternative: true}

	if len(got) != len(want) {
		t.Fatalf("expected exactly %d actions, got %v", len(want), got)
	}
	for _, a := range got {
		if !want[a] {
			t.Fatalf("unexpected action %q for REQUESTER_REVIEW", a)
		}
	}
}

func TestPermittedActions_TerminalStatesEmpty(t *testing.T) {
	for _, s := range []Status{StatusApproved, StatusRejected, StatusCancelled} {
		if got := PermittedActions(s); len(got) != 0 {
			t.Fatalf("expected no actions for %s, got %v", s, got)
		}
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
}

func TestNextStatus_ForwardPath(t *testing.T) {
	steps := []struct {
		from   Status
		action Action
		want   Status
	}{
		{StatusPending, ActionStartSearch, StatusSearching},
		{StatusSearching, ActionRecordMatch, StatusMatched},
		{StatusMatched, ActionSendToValidation, StatusOwnerReview},
		{StatusOwnerReview, ActionOwnerApprove, StatusOwnerApproved},
		{StatusOwnerApproved, ActionSendToRequester, StatusRequesterReview},
		{StatusRequesterReview, ActionConfirm, StatusApproved},
	}

	for _, step := range steps {
		got, err := NextStatus(step.from, step.action)
		if err != nil {
			t.Fatalf("%s + %s: unexpected error: %v", step.from, step.action, err)
		}
		if got != step.want {
			t.Fatalf("%s + %s: expected %s, got %s", step.from, step.action, step.want, got)
		}
	}
}

func TestNextStatus_RejectionBranchesLoopBack(t *testing.T) {
	for _, from := range []Status{StatusOwnerRejected, StatusNoMatch, StatusAlternative} {
		got, err := NextStatus(from, ActionSearchMore)
		if err != nil {
			t.Fatalf("%s + search-more: unexpected error: %v", from, err)
		}
		if got != StatusSearching {
			t.Fatalf("%s + search-more: expected SEARCHING, got %s", from, got)
		}
	}
}

func TestNextStatus_RejectsUnpermittedAction(t *testing.T) {
	_, err := NextStatus(StatusMatched, ActionConfirm)
	if !errors.Is(err, ErrActionNotPermitted) {
		t.Fatalf("expected ErrActionNotPermitted, got %v", err)
	}

	if _, err := NextStatus(StatusApproved, ActionCancel); !errors.Is(err, ErrActionNotPermitted) {
		t.Fatalf("expected ErrActionNotPermitted from terminal status, got %v", err)
	}

	if _, err := NextStatus(Status("BOGUS"), ActionCancel); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestValidTransition_CancelFromPreApproval(t *testing.T) {
	cancellable := []Status{
		StatusPending, StatusSearching, StatusMatched, StatusOwnerReview,
		StatusOwnerApproved, StatusOwnerRejected, StatusRequesterReview,
		StatusAlternative, StatusNoMatch,
	}
	for _, from := range cancellable {
		if !ValidTransition(from, StatusCancelled) {
			t.Fatalf("expected cancel to be valid from %s", from)
		}
	}

	for _, from := range []Status{StatusApproved, StatusRejected, StatusCancelled} {
		if ValidTransition(from, StatusCancelled) {
			t.Fatalf("expected cancel to be invalid from terminal %s", from)
		}
	}

	if ValidTransition(Status("BOGUS"), StatusCancelled) {
		t.Fatal("expected cancel to be invalid from an unknown status")
	}
}

func TestValidTransition_ModerationOverride(t *testing.T) {
	if !ValidTransition(StatusRequesterReview, StatusRejected) {
		t.Fatal("expected moderation override REQUESTER_REVIEW -> REJECTED to be valid")
	}
	if ValidTransition(StatusPending, StatusRejected) {
		t.Fatal("expected PENDING -> REJECTED to be invalid")
	}
	if ValidTransition(StatusPending, StatusApproved) {
		t.Fatal("expected PENDING -> APPROVED to be invalid")
	}
}

func TestMeta_CoversEveryStatus(t *testing.T) {
	statuses := []Status{
		StatusPending, StatusSearching, StatusMatched, StatusOwnerReview,
		StatusOwnerApproved, StatusOwnerRejected, StatusRequesterReview,
		StatusApproved, StatusRejected, StatusCancelled, StatusAlternative,
		StatusNoMatch,
	}
	for _, s := range statuses {
		if !s.Valid() {
			t.Fatalf("expected %s to be a valid status", s)
		}
		if Meta(s).Label == "" {
			t.Fatalf("expected display label for %s", s)
		}
	}
	if Status("BOGUS").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
}
