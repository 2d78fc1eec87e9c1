package variable

import "fmt"

// Status is the closed set of workflow states a variable moves through
// between creation and final approval. The server is the only writer;
// clients render whatever the last fetch reported.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusSearching       Status = "SEARCHING"
	StatusMatched         Status = "MATCHED"
	StatusOwnerReview     Status = "OWNER_REVIEW"
	StatusOwnerApproved   Status = "OWNER_APPROVED"
	StatusOwnerRejected   Status = "OWNER_REJECTED"
	StatusRequesterReview Status = "REQUESTER_REVIEW"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
	StatusAlternative     Status = "ALTERNATIVE"
	StatusNoMatch         Status = "NO_MATCH"
)

// Action names an operation a caller may request against a variable in a
// given status. The permitted set is a pure function of status.
type Action string

const (
	ActionStartSearch        Action = "start-search"
	ActionRecordMatch        Action = "record-match"
	ActionRecordNoMatch      Action = "record-no-match"
	ActionSendToValidation   Action = "send-to-validation"
	ActionSearchMore         Action = "search-more"
	ActionOwnerApprove       Action = "owner-approve"
	ActionOwnerReject        Action = "owner-reject"
	ActionSendToRequester    Action = "send-to-requester"
	ActionConfirm            Action = "confirm"
	ActionRequestAlternative Action = "request-alternative"
	ActionCancel             Action = "cancel"

	// ActionOverrideReject is the moderator-only terminal rejection. It
	// never appears in a status action menu; the HTTP layer routes it to
	// WorkflowService.OverrideReject after checking the role.
	ActionOverrideReject Action = "override-reject"
)

// StatusMeta is static display metadata keyed by status. No computation
// happens here; badge tokens are resolved by the presentation layer.
type StatusMeta struct {
	Label string
	Badge string
}

var statusMeta = map[Status]StatusMeta{
	StatusPending:         {Label: "Pending", Badge: "neutral"},
	StatusSearching:       {Label: "Searching", Badge: "info"},
	StatusMatched:         {Label: "Matched", Badge: "info"},
	StatusOwnerReview:     {Label: "Owner Review", Badge: "warning"},
	StatusOwnerApproved:   {Label: "Owner Approved", Badge: "success"},
	StatusOwnerRejected:   {Label: "Owner Rejected", Badge: "danger"},
	StatusRequesterReview: {Label: "Requester Review", Badge: "warning"},
	StatusApproved:        {Label: "Approved", Badge: "success"},
	StatusRejected:        {Label: "Rejected", Badge: "danger"},
	StatusCancelled:       {Label: "Cancelled", Badge: "neutral"},
	StatusAlternative:     {Label: "Alternative Proposed", Badge: "info"},
	StatusNoMatch:         {Label: "No Match", Badge: "danger"},
}

// Meta returns the display metadata for a status. Unknown statuses get a
// zero StatusMeta so a stale client cannot crash the rendering path.
func Meta(s Status) StatusMeta {
	return statusMeta[s]
}

func (s Status) Valid() bool {
	_, ok := statusMeta[s]
	return ok
}

// IsTerminal reports whether no further action is permitted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// permittedActions drives both the action menu the API exposes and the
// transitions the workflow service will accept.
var permittedActions = map[Status][]Action{
	StatusPending:         {ActionStartSearch, ActionCancel},
	StatusSearching:       {ActionRecordMatch, ActionRecordNoMatch, ActionCancel},
	StatusMatched:         {ActionSendToValidation, ActionSearchMore},
	StatusOwnerReview:     {ActionOwnerApprove, ActionOwnerReject},
	StatusOwnerApproved:   {ActionSendToRequester},
	StatusOwnerRejected:   {ActionSearchMore, ActionCancel},
	StatusRequesterReview: {ActionConfirm, ActionRequestAlternative},
	StatusAlternative:     {ActionSearchMore, ActionCancel},
	StatusNoMatch:         {ActionSearchMore, ActionCancel},
	StatusApproved:        {},
	StatusRejected:        {},
	StatusCancelled:       {},
}

// PermittedActions returns the actions a variable in status s accepts.
// The returned slice is a copy; callers may reorder it freely.
func PermittedActions(s Status) []Action {
	actions := permittedActions[s]
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// Allows reports whether action a is permitted from status s.
func Allows(s Status, a Action) bool {
	for _, candidate := range permittedActions[s] {
		if candidate == a {
			return true
		}
	}
	return false
}

// NextStatus resolves the status an action moves a variable into when
// applied from the given status. It rejects actions the status does not
// permit, so callers can use it as the single transition gate.
func NextStatus(from Status, a Action) (Status, error) {
	if !from.Valid() {
		return "", fmt.Errorf("variable: unknown status %q", from)
	}
	if !Allows(from, a) {
		return "", fmt.Errorf("variable: action %q not permitted from %s: %w", a, from, ErrActionNotPermitted)
	}

	switch a {
	case ActionStartSearch, ActionSearchMore:
		return StatusSearching, nil
	case ActionRecordMatch:
		return StatusMatched, nil
	case ActionRecordNoMatch:
		return StatusNoMatch, nil
	case ActionSendToValidation:
		return StatusOwnerReview, nil
	case ActionOwnerApprove:
		return StatusOwnerApproved, nil
	case ActionOwnerReject:
		return StatusOwnerRejected, nil
	case ActionSendToRequester:
		return StatusRequesterReview, nil
	case ActionConfirm:
		return StatusApproved, nil
	case ActionRequestAlternative:
		return StatusAlternative, nil
	case ActionCancel:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("variable: unknown action %q", a)
	}
}

// ValidTransition reports whether moving from one status directly to
// another is representable as a permitted action. Two transitions exist
// outside the per-status menus and are accepted here so the workflow
// service can share the same gate: the moderation override
// (REQUESTER_REVIEW -> REJECTED), and cancellation, which abandons a
// request from any non-terminal status even when the menu for that
// status is pinned to review actions.
func ValidTransition(from, to Status) bool {
	if from == StatusRequesterReview && to == StatusRejected {
		return true
	}
	if to == StatusCancelled {
		return from.Valid() && !from.IsTerminal()
	}
	for _, a := range permittedActions[from] {
		next, err := NextStatus(from, a)
		if err == nil && next == to {
			return true
		}
	}
	return false
}
