package risk

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/riskwatch-backend/internal/data/repos"
	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/events"
	"github.com/yungbote/riskwatch-backend/internal/observability"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type SyncAction string

const (
	SyncNoop      SyncAction = "noop"
	SyncCreated   SyncAction = "created"
	SyncRefreshed SyncAction = "refreshed"
	SyncChanged   SyncAction = "changed"
	SyncResolved  SyncAction = "resolved"
)

// RiskSnapshot is the evaluated level an alert is synchronized against.
type RiskSnapshot struct {
	Category types.RiskCategory
	Score    float64
}

func SnapshotOf(s *types.Student) RiskSnapshot {
	return RiskSnapshot{Category: s.Category(), Score: s.Score()}
}

type SyncCounts struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Refreshed   int `json:"refreshed"`
	Deactivated int `json:"deactivated"`
	Unchanged   int `json:"unchanged"`
	Skipped     int `json:"skipped"`
}

func (c SyncCounts) Total() int {
	return c.Created + c.Updated + c.Refreshed + c.Deactivated
}

type AlertSynchronizer struct {
	log       *logger.Logger
	alerts    repos.AlertRepo
	mentors   repos.MentorRepo
	publisher events.Publisher
	metrics   *observability.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

func NewAlertSynchronizer(baseLog *logger.Logger, alerts repos.AlertRepo, mentors repos.MentorRepo, publisher events.Publisher, metrics *observability.Metrics) *AlertSynchronizer {
	if publisher == nil {
		publisher = events.NewNop()
	}
	return &AlertSynchronizer{
		log:       baseLog.With("service", "AlertSynchronizer"),
		alerts:    alerts,
		mentors:   mentors,
		publisher: publisher,
		metrics:   metrics,
		tracer:    otel.Tracer("riskwatch/alerts"),
		now:       time.Now,
	}
}

func resolvedMessage(score float64) string {
	return fmt.Sprintf("Risk resolved (Score: %d%%)", roundPct(score))
}

func createdMessage(c types.RiskCategory, score float64) string {
	return fmt.Sprintf("Risk is %s (%d%%)", c, roundPct(score))
}

func changedMessage(c types.RiskCategory, score float64) string {
	return fmt.Sprintf("Risk changed to %s (%d%%)", c, roundPct(score))
}

func roundPct(score float64) int { return int(math.Round(score)) }

// decision is the outcome of comparing a risk snapshot with the active alert.
type decision struct {
	action  SyncAction
	create  *types.RiskAlert
	updates map[string]interface{}
	event   *events.AlertEvent
}

// decide is the pure three-way rule shared by Sync and SyncAll. Severity is
// compared by category label: score movement inside one category only
// refreshes the snapshot and lastEvaluatedAt.
func decide(s *types.Student, snap RiskSnapshot, active *types.RiskAlert, mentorID *uuid.UUID, now time.Time) decision {
	if !snap.Category.Alertable() {
		if active == nil {
			return decision{action: SyncNoop}
		}
		msg := resolvedMessage(snap.Score)
		return decision{
			action: SyncResolved,
			updates: map[string]interface{}{
				"active":            false,
				"message":           msg,
				"last_evaluated_at": now,
				"resolved_at":       now,
			},
			event: &events.AlertEvent{
				Type:          events.AlertResolved,
				AlertID:       active.ID,
				StudentID:     s.ID,
				MentorID:      active.MentorID,
				RiskLevel:     string(snap.Category),
				PreviousLevel: string(active.RiskLevel),
				RiskScore:     snap.Score,
				Message:       msg,
				OccurredAt:    now,
			},
		}
	}

	if active == nil {
		a := &types.RiskAlert{
			ID:              uuid.New(),
			StudentID:       s.ID,
			StudentName:     s.Name,
			MentorID:        mentorID,
			AlertType:       types.AlertTypeRisk,
			RiskLevel:       snap.Category,
			RiskScore:       snap.Score,
			Message:         createdMessage(snap.Category, snap.Score),
			Active:          true,
			LastEvaluatedAt: now,
			LastUpdatedAt:   now,
		}
		return decision{
			action: SyncCreated,
			create: a,
			event: &events.AlertEvent{
				Type:       events.AlertCreated,
				AlertID:    a.ID,
				StudentID:  s.ID,
				MentorID:   mentorID,
				RiskLevel:  string(snap.Category),
				RiskScore:  snap.Score,
				Message:    a.Message,
				OccurredAt: now,
			},
		}
	}

	updates := map[string]interface{}{
		"last_evaluated_at": now,
		"risk_score":        snap.Score,
	}
	if active.MentorID == nil && mentorID != nil {
		updates["mentor_id"] = *mentorID
	}
	if active.RiskLevel == snap.Category {
		return decision{action: SyncRefreshed, updates: updates}
	}

	msg := changedMessage(snap.Category, snap.Score)
	updates["risk_level"] = snap.Category
	updates["message"] = msg
	updates["last_updated_at"] = now
	evtType := events.AlertDeescalated
	if snap.Category.Rank() > active.RiskLevel.Rank() {
		evtType = events.AlertEscalated
	}
	linked := active.MentorID
	if linked == nil {
		linked = mentorID
	}
	return decision{
		action:  SyncChanged,
		updates: updates,
		event: &events.AlertEvent{
			Type:          evtType,
			AlertID:       active.ID,
			StudentID:     s.ID,
			MentorID:      linked,
			RiskLevel:     string(snap.Category),
			PreviousLevel: string(active.RiskLevel),
			RiskScore:     snap.Score,
			Message:       msg,
			OccurredAt:    now,
		},
	}
}

// Sync reconciles the student's RISK alert with its persisted risk level.
func (a *AlertSynchronizer) Sync(ctx context.Context, s *types.Student) (SyncAction, error) {
	if s == nil {
		return SyncNoop, nil
	}
	ctx, span := a.tracer.Start(ctx, "risk.alerts.sync",
		trace.WithAttributes(attribute.String("student_id", s.ID.String())),
	)
	defer span.End()

	snap := SnapshotOf(s)
	if snap.Category == "" {
		a.log.Warn("Sync skipped for unscored student", "student_id", s.ID)
		return SyncNoop, nil
	}
	dbc := dbctx.Context{Ctx: ctx}

	active, err := a.alerts.GetActiveByStudent(dbc, s.ID, types.AlertTypeRisk)
	if err != nil {
		return SyncNoop, fmt.Errorf("load active alert: %w", err)
	}

	var mentorID *uuid.UUID
	if snap.Category.Alertable() && (active == nil || active.MentorID == nil) {
		mentorID = a.resolveMentor(dbc, s)
	}

	now := a.now()
	d := decide(s, snap, active, mentorID, now)
	if d.action == SyncCreated {
		created, err := a.alerts.CreateIfNoneActive(dbc, d.create)
		if err != nil {
			return SyncNoop, fmt.Errorf("create alert: %w", err)
		}
		if !created {
			// Another writer created the active alert between our read and insert.
			active, err = a.alerts.GetActiveByStudent(dbc, s.ID, types.AlertTypeRisk)
			if err != nil {
				return SyncNoop, fmt.Errorf("reload active alert: %w", err)
			}
			if active == nil {
				return SyncNoop, fmt.Errorf("alert create for student %s conflicted but no active alert was found", s.ID)
			}
			d = decide(s, snap, active, mentorID, now)
		}
	}
	if d.updates != nil {
		if err := a.alerts.UpdateFields(dbc, activeID(active), d.updates); err != nil {
			return SyncNoop, fmt.Errorf("update alert: %w", err)
		}
	}

	span.SetAttributes(attribute.String("action", string(d.action)))
	a.metrics.AddAlertActions(ctx, string(d.action), 1)
	if d.event != nil {
		a.publish(ctx, *d.event)
	}
	a.log.Debug("Alert synced",
		"student_id", s.ID,
		"category", snap.Category,
		"action", d.action,
	)
	return d.action, nil
}

// SyncAll is the batch form of Sync. Active alerts and mentors are prefetched
// with one query each, decisions are made in memory and every write goes out
// in a single transaction. Students missing from snapshots are ignored.
func (a *AlertSynchronizer) SyncAll(ctx context.Context, students []*types.Student, snapshots map[uuid.UUID]RiskSnapshot) (SyncCounts, error) {
	var counts SyncCounts
	targets := make([]*types.Student, 0, len(students))
	for _, s := range students {
		if s == nil {
			continue
		}
		if snap, ok := snapshots[s.ID]; ok && snap.Category != "" {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		return counts, nil
	}

	ctx, span := a.tracer.Start(ctx, "risk.alerts.sync_all",
		trace.WithAttributes(attribute.Int("students", len(targets))),
	)
	defer span.End()
	dbc := dbctx.Context{Ctx: ctx}

	ids := make([]uuid.UUID, 0, len(targets))
	codeSet := map[string]struct{}{}
	for _, s := range targets {
		ids = append(ids, s.ID)
		if code := strings.TrimSpace(s.AssignedMentorCode); code != "" {
			codeSet[code] = struct{}{}
		}
	}

	activeRows, err := a.alerts.GetActiveByStudents(dbc, ids, types.AlertTypeRisk)
	if err != nil {
		return counts, fmt.Errorf("prefetch active alerts: %w", err)
	}
	// Rows come oldest first, so the newest active alert wins the slot.
	activeByStudent := make(map[uuid.UUID]*types.RiskAlert, len(activeRows))
	for _, row := range activeRows {
		activeByStudent[row.StudentID] = row
	}

	mentorByCode := map[string]uuid.UUID{}
	if len(codeSet) > 0 {
		codes := make([]string, 0, len(codeSet))
		for c := range codeSet {
			codes = append(codes, c)
		}
		mentors, err := a.mentors.GetByCodes(dbc, codes)
		if err != nil {
			a.log.Warn("Mentor prefetch failed; alerts will be written without a mentor link", "error", err)
		} else {
			for _, m := range mentors {
				mentorByCode[m.MentorCode] = m.ID
			}
		}
	}

	now := a.now()
	var (
		set         repos.AlertWriteSet
		createEvts  = map[uuid.UUID]events.AlertEvent{}
		otherEvents []events.AlertEvent
	)
	for _, s := range targets {
		snap := snapshots[s.ID]
		active := activeByStudent[s.ID]
		var mentorID *uuid.UUID
		if id, ok := mentorByCode[strings.TrimSpace(s.AssignedMentorCode)]; ok {
			mentorID = &id
		}
		d := decide(s, snap, active, mentorID, now)
		switch d.action {
		case SyncNoop:
			counts.Unchanged++
		case SyncCreated:
			set.Creates = append(set.Creates, d.create)
			createEvts[d.create.ID] = *d.event
		case SyncRefreshed:
			set.Updates = append(set.Updates, repos.AlertUpdate{ID: active.ID, Updates: d.updates})
			counts.Refreshed++
		case SyncChanged:
			set.Updates = append(set.Updates, repos.AlertUpdate{ID: active.ID, Updates: d.updates})
			counts.Updated++
		case SyncResolved:
			set.Deactivations = append(set.Deactivations, repos.AlertUpdate{ID: active.ID, Updates: d.updates})
		}
		if d.event != nil && d.action != SyncCreated {
			otherEvents = append(otherEvents, *d.event)
		}
	}

	res, err := a.alerts.BulkWrite(dbc, set)
	if err != nil {
		return SyncCounts{Unchanged: counts.Unchanged}, fmt.Errorf("bulk write alerts: %w", err)
	}
	counts.Created = int(res.Created)
	counts.Skipped = int(res.Skipped)
	counts.Deactivated = int(res.Deactivated)

	evts := otherEvents
	if len(createEvts) > 0 {
		evts = append(evts, a.insertedEvents(dbc, set.Creates, createEvts, res)...)
	}
	if counts.Skipped > 0 {
		a.log.Warn("Alert creates lost to concurrent writers; they converge on the next pass", "skipped", counts.Skipped)
	}

	a.metrics.AddAlertActions(ctx, string(SyncCreated), counts.Created)
	a.metrics.AddAlertActions(ctx, string(SyncChanged), counts.Updated)
	a.metrics.AddAlertActions(ctx, string(SyncRefreshed), counts.Refreshed)
	a.metrics.AddAlertActions(ctx, string(SyncResolved), counts.Deactivated)
	a.metrics.AddAlertActions(ctx, string(SyncNoop), counts.Unchanged)
	if len(evts) > 0 {
		a.publish(ctx, evts...)
	}
	span.SetAttributes(
		attribute.Int("created", counts.Created),
		attribute.Int("updated", counts.Updated),
		attribute.Int("deactivated", counts.Deactivated),
	)
	a.log.Info("Batch alert sync complete",
		"students", len(targets),
		"created", counts.Created,
		"updated", counts.Updated,
		"refreshed", counts.Refreshed,
		"deactivated", counts.Deactivated,
		"skipped", counts.Skipped,
	)
	return counts, nil
}

// insertedEvents drops events for creates that lost the insert race.
func (a *AlertSynchronizer) insertedEvents(dbc dbctx.Context, creates []*types.RiskAlert, byID map[uuid.UUID]events.AlertEvent, res repos.AlertWriteResult) []events.AlertEvent {
	out := make([]events.AlertEvent, 0, len(byID))
	if res.Skipped == 0 {
		for _, c := range creates {
			out = append(out, byID[c.ID])
		}
		return out
	}
	ids := make([]uuid.UUID, 0, len(creates))
	for _, c := range creates {
		ids = append(ids, c.StudentID)
	}
	rows, err := a.alerts.GetActiveByStudents(dbc, ids, types.AlertTypeRisk)
	if err != nil {
		a.log.Warn("Could not confirm created alerts; skipping their events", "error", err)
		return out
	}
	for _, row := range rows {
		if evt, ok := byID[row.ID]; ok {
			out = append(out, evt)
		}
	}
	return out
}

func (a *AlertSynchronizer) resolveMentor(dbc dbctx.Context, s *types.Student) *uuid.UUID {
	code := strings.TrimSpace(s.AssignedMentorCode)
	if code == "" {
		return nil
	}
	m, err := a.mentors.GetByCode(dbc, code)
	if err != nil {
		a.log.Warn("Mentor lookup failed; continuing without link", "student_id", s.ID, "mentor_code", code, "error", err)
		return nil
	}
	if m == nil {
		a.log.Warn("Mentor not resolvable; continuing without link", "student_id", s.ID, "mentor_code", code)
		return nil
	}
	id := m.ID
	return &id
}

func (a *AlertSynchronizer) publish(ctx context.Context, evts ...events.AlertEvent) {
	if err := a.publisher.Publish(ctx, evts...); err != nil {
		a.log.Warn("Alert event publish failed", "count", len(evts), "error", err)
	}
}

func activeID(a *types.RiskAlert) uuid.UUID {
	if a == nil {
		return uuid.Nil
	}
	return a.ID
}
