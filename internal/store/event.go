package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/oracle"
)

// EventRepository stores terminal event records and their annotations.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// EventFilter narrows List. Zero values match everything.
type EventFilter struct {
	Outcome string
	Intent  intent.Intent
	Since   time.Time
	Limit   int
}

// FeatureSample is one labelled row of the calibration export.
type FeatureSample struct {
	EventID        string          `json:"event_id"`
	ProposedIntent intent.Intent   `json:"proposed_intent"`
	Outcome        string          `json:"outcome"`
	Features       features.Vector `json:"features"`
	LabelIntent    *intent.Intent  `json:"label_intent,omitempty"`
	Intentional    *bool           `json:"intentional,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Insert stores a terminal record.
func (r *EventRepository) Insert(ctx context.Context, rec eventlog.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.EventID, err)
	}
	var feats sql.NullString
	if rec.Features != nil {
		b, err := json.Marshal(rec.Features)
		if err != nil {
			return fmt.Errorf("encode features %s: %w", rec.EventID, err)
		}
		feats = sql.NullString{String: string(b), Valid: true}
	}
	vIntent, vIntentional := verdictColumns(rec.Verdict)

	created, ok := rec.Timestamps[eventlog.StageTerminal]
	if !ok {
		created = time.Now()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (id, proposed_intent, approved_intent, trigger_kind, hand, local_confidence,
			mode, outcome, policy_tag, merge_count, superseded, error, error_stage,
			verdict_intent, verdict_intentional, features, record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EventID, string(rec.ProposedIntent), string(rec.ApprovedIntent), rec.Trigger, rec.Hand,
		rec.LocalConfidence, rec.Mode, rec.Outcome, rec.PolicyTag, rec.MergeCount, rec.Superseded,
		rec.Error, rec.ErrorStage, vIntent, vIntentional, feats, string(raw), created.UTC(),
	)
	return err
}

// Annotate stores an annotation.
func (r *EventRepository) Annotate(ctx context.Context, ann eventlog.Annotation) error {
	raw, err := json.Marshal(ann)
	if err != nil {
		return fmt.Errorf("encode annotation %s: %w", ann.EventID, err)
	}
	vIntent, vIntentional := verdictColumns(ann.Verdict)
	ts := ann.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO annotations (event_id, kind, verdict_intent, verdict_intentional, error, detail, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ann.EventID, ann.Kind, vIntent, vIntentional, ann.Error, ann.Detail, string(raw), ts.UTC(),
	)
	return err
}

// Get returns the terminal record of an event.
func (r *EventRepository) Get(ctx context.Context, id string) (*eventlog.Record, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT record FROM events WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec eventlog.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

// List returns records newest first.
func (r *EventRepository) List(ctx context.Context, f EventFilter) ([]eventlog.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if f.Intent != "" {
		where = append(where, "proposed_intent = ?")
		args = append(args, string(f.Intent))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	q := `SELECT record FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []eventlog.Record{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec eventlog.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Annotations returns the annotations of an event in arrival order.
func (r *EventRepository) Annotations(ctx context.Context, eventID string) ([]eventlog.Annotation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM annotations WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	anns := []eventlog.Annotation{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ann eventlog.Annotation
		if err := json.Unmarshal([]byte(raw), &ann); err != nil {
			return nil, fmt.Errorf("decode annotation: %w", err)
		}
		anns = append(anns, ann)
	}
	return anns, rows.Err()
}

// Outcomes counts stored events per outcome.
func (r *EventRepository) Outcomes(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM events GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// ExportFeatures calls fn for every event that carries a feature vector,
// oldest first. The label is the verification verdict when there was one,
// otherwise the latest asynchronous label annotation.
func (r *EventRepository) ExportFeatures(ctx context.Context, fn func(FeatureSample) error) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.proposed_intent, e.outcome, e.features, e.created_at,
			COALESCE(e.verdict_intent, (
				SELECT a.verdict_intent FROM annotations a
				WHERE a.event_id = e.id AND a.kind = ? AND a.verdict_intent IS NOT NULL
				ORDER BY a.id DESC LIMIT 1)),
			COALESCE(e.verdict_intentional, (
				SELECT a.verdict_intentional FROM annotations a
				WHERE a.event_id = e.id AND a.kind = ? AND a.verdict_intentional IS NOT NULL
				ORDER BY a.id DESC LIMIT 1))
		FROM events e
		WHERE e.features IS NOT NULL
		ORDER BY e.created_at, e.id`,
		eventlog.AnnotationLabel, eventlog.AnnotationLabel,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s           FeatureSample
			proposed    string
			feats       string
			label       sql.NullString
			intentional sql.NullInt64
		)
		if err := rows.Scan(&s.EventID, &proposed, &s.Outcome, &feats, &s.CreatedAt, &label, &intentional); err != nil {
			return err
		}
		s.ProposedIntent = intent.Intent(proposed)
		if err := json.Unmarshal([]byte(feats), &s.Features); err != nil {
			return fmt.Errorf("decode features %s: %w", s.EventID, err)
		}
		if label.Valid {
			in := intent.Intent(label.String)
			s.LabelIntent = &in
		}
		if intentional.Valid {
			b := intentional.Int64 != 0
			s.Intentional = &b
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return rows.Err()
}

func verdictColumns(v *oracle.Verdict) (sql.NullString, sql.NullBool) {
	if v == nil {
		return sql.NullString{}, sql.NullBool{}
	}
	return sql.NullString{String: string(v.FinalIntent), Valid: true},
		sql.NullBool{Bool: v.Intentional, Valid: true}
}

// EventSink writes terminal records and annotations into the store.
type EventSink struct {
	events *EventRepository
}

// EventSink returns an eventlog.Sink backed by this store. Closing the sink
// does not close the store.
func (s *Store) EventSink() *EventSink {
	return &EventSink{events: s.Events()}
}

func (s *EventSink) WriteRecord(ctx context.Context, rec eventlog.Record) error {
	return s.events.Insert(ctx, rec)
}

func (s *EventSink) WriteAnnotation(ctx context.Context, ann eventlog.Annotation) error {
	return s.events.Annotate(ctx, ann)
}

func (s *EventSink) Close() error { return nil }

var _ eventlog.Sink = (*EventSink)(nil)
