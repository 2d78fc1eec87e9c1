package variable

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkflowService executes status transitions ensuring the status write,
// timeline append, and outbox enqueue land in the same transaction. The
// row is locked for the duration so concurrent actions serialize and the
// loser sees the new status.
type WorkflowService struct {
	pool *pgxpool.Pool
}

func NewWorkflowService(pool *pgxpool.Pool) *WorkflowService {
	return &WorkflowService{pool: pool}
}

// ApplyParams describes one action request against a variable.
// Override marks a moderator acting as approval proxy; the HTTP layer
// sets it only after verifying the moderator role.
type ApplyParams struct {
	VariableID   string
	ActorID      string
	Action       Action
	MatchedTable *string
	OwnerUserID  *string
	Note         string
	Override     bool
}

func (s *WorkflowService) ApplyAction(ctx context.Context, params ApplyParams) (Record, error) {
	if params.VariableID == "" {
		return Record{}, fmt.Errorf("variable: missing variable id")
	}
	if params.ActorID == "" {
		return Record{}, fmt.Errorf("variable: missing actor id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("variable: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		current     string
		requesterID string
		ownerID     *string
	)
	err = tx.QueryRow(ctx, `
        SELECT v.status::text, c.requester_user_id, v.owner_user_id
        FROM variables v
        JOIN cases c ON c.id = v.case_id
        WHERE v.id = $1
        FOR UPDATE OF v
    `, params.VariableID).Scan(&current, &requesterID, &ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("variable: fetch current status: %w", err)
	}

	if !params.Override {
		if err := authorizeActor(params, requesterID, ownerID); err != nil {
			return Record{}, err
		}
	}

	next, err := NextStatus(Status(current), params.Action)
	if err != nil {
		return Record{}, err
	}

	rec, err := s.writeTransition(ctx, tx, params, Status(current), next)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("variable: commit transition: %w", err)
	}
	return rec, nil
}

// Cancel abandons a variable from any non-terminal status. Cancellation
// is not part of the per-status action menus for the review states, so
// it bypasses NextStatus and gates on ValidTransition directly. Only the
// case requester may cancel unless override is set.
func (s *WorkflowService) Cancel(ctx context.Context, variableID, actorID, note string, override bool) (Record, error) {
	if variableID == "" {
		return Record{}, fmt.Errorf("variable: missing variable id")
	}
	if actorID == "" {
		return Record{}, fmt.Errorf("variable: missing actor id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("variable: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		current     string
		requesterID string
	)
	err = tx.QueryRow(ctx, `
        SELECT v.status::text, c.requester_user_id
        FROM variables v
        JOIN cases c ON c.id = v.case_id
        WHERE v.id = $1
        FOR UPDATE OF v
    `, variableID).Scan(&current, &requesterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("variable: fetch current status: %w", err)
	}

	if !override && actorID != requesterID {
		return Record{}, ErrForbidden
	}
	if !ValidTransition(Status(current), StatusCancelled) {
		return Record{}, fmt.Errorf("variable: invalid transition %s -> %s: %w", current, StatusCancelled, ErrActionNotPermitted)
	}

	params := ApplyParams{
		VariableID: variableID,
		ActorID:    actorID,
		Action:     ActionCancel,
		Note:       note,
		Override:   override,
	}
	rec, err := s.writeTransition(ctx, tx, params, Status(current), StatusCancelled)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("variable: commit cancel: %w", err)
	}
	return rec, nil
}

// OverrideReject lets a moderator terminally reject a variable waiting on
// requester confirmation. It is the only transition without a matching
// requester action.
func (s *WorkflowService) OverrideReject(ctx context.Context, variableID, moderatorID, reason string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("variable: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status::text FROM variables WHERE id=$1 FOR UPDATE`, variableID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("variable: fetch current status: %w", err)
	}

	if !ValidTransition(Status(current), StatusRejected) {
		return Record{}, fmt.Errorf("variable: invalid transition %s -> %s: %w", current, StatusRejected, ErrActionNotPermitted)
	}

	params := ApplyParams{
		VariableID: variableID,
		ActorID:    moderatorID,
		Note:       reason,
		Override:   true,
	}
	rec, err := s.writeTransition(ctx, tx, params, Status(current), StatusRejected)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("variable: commit override: %w", err)
	}
	return rec, nil
}

func (s *WorkflowService) writeTransition(ctx context.Context, tx pgx.Tx, params ApplyParams, current, next Status) (Record, error) {
	var rec Record
	switch params.Action {
	case ActionRecordMatch:
		if params.MatchedTable == nil || *params.MatchedTable == "" || params.OwnerUserID == nil || *params.OwnerUserID == "" {
			return Record{}, ErrMatchDetailsRequired
		}
		err := tx.QueryRow(ctx, `
            UPDATE variables
            SET status=$1::variable_status, matched_table=$2, owner_user_id=$3::uuid, updated_at=now()
            WHERE id=$4
            RETURNING `+recordColumns, next, *params.MatchedTable, *params.OwnerUserID, params.VariableID).
			Scan(scanTargets(&rec)...)
		if err != nil {
			return Record{}, fmt.Errorf("variable: update status: %w", err)
		}
	case ActionStartSearch, ActionSearchMore:
		// Looping back to search invalidates the previous match; the
		// timeline keeps the history.
		err := tx.QueryRow(ctx, `
            UPDATE variables
            SET status=$1::variable_status, matched_table=NULL, owner_user_id=NULL, updated_at=now()
            WHERE id=$2
            RETURNING `+recordColumns, next, params.VariableID).
			Scan(scanTargets(&rec)...)
		if err != nil {
			return Record{}, fmt.Errorf("variable: update status: %w", err)
		}
	default:
		err := tx.QueryRow(ctx, `
            UPDATE variables
            SET status=$1::variable_status, updated_at=now()
            WHERE id=$2
            RETURNING `+recordColumns, next, params.VariableID).
			Scan(scanTargets(&rec)...)
		if err != nil {
			return Record{}, fmt.Errorf("variable: update status: %w", err)
		}
	}

	payload := map[string]any{
		"previous_status": current,
		"next_status":     next,
		"actor_id":        params.ActorID,
	}
	if params.Action != "" {
		payload["action"] = params.Action
	}
	if params.Note != "" {
		payload["note"] = params.Note
	}
	if params.MatchedTable != nil {
		payload["matched_table"] = *params.MatchedTable
	}

	var actorPtr *string
	if params.ActorID != "" {
		actorPtr = &params.ActorID
	}
	if _, err := tx.Exec(ctx, `
        INSERT INTO variable_timeline (variable_id, type, payload, actor_id)
        VALUES ($1,'VARIABLE_STATUS_CHANGED',$2::jsonb,$3::uuid)
    `, params.VariableID, mustJSON(payload), actorPtr); err != nil {
		return Record{}, fmt.Errorf("variable: insert timeline: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO outbox (topic, payload) VALUES ($1,$2::jsonb)
    `, OutboxTopicStatusChanged, mustJSON(map[string]any{
		"variable_id": params.VariableID,
		"case_id":     rec.CaseID,
		"previous":    current,
		"next":        next,
	})); err != nil {
		return Record{}, fmt.Errorf("variable: enqueue outbox: %w", err)
	}

	return rec, nil
}

// authorizeActor enforces identity for non-override actions: owner-side
// actions belong to the matched table's owner, everything else to the
// case requester.
func authorizeActor(params ApplyParams, requesterID string, ownerID *string) error {
	switch params.Action {
	case ActionOwnerApprove, ActionOwnerReject, ActionSendToRequester:
		if ownerID == nil || *ownerID != params.ActorID {
			return ErrForbidden
		}
	default:
		if params.ActorID != requesterID {
			return ErrForbidden
		}
	}
	return nil
}
