// Package mongodb implements the recurrence schedule and artifact stores on
// MongoDB. Firing commits use a filtered UpdateOne so the compare-and-swap
// happens server-side in one atomic step; artifact idempotency rides on a
// unique (scheduleId, occurrence) index.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fieldline/recurrence"
)

// Config holds the configuration for the MongoDB stores.
type Config struct {
	// Schedules is the collection holding schedule records. Required.
	Schedules *mongo.Collection

	// Artifacts is the collection holding created artifacts. Required.
	Artifacts *mongo.Collection

	// Condition is an optional additional filter applied when listing due
	// schedules. This allows one deployment to process only a subset of the
	// collection. Example: bson.M{"kind": "invoice"}.
	Condition bson.M
}

// Store implements recurrence.ScheduleStore and recurrence.ArtifactStore.
type Store struct {
	schedules *mongo.Collection
	artifacts *mongo.Collection
	condition bson.M
}

// NewStore creates MongoDB-backed stores with the given configuration.
func NewStore(config Config) (*Store, error) {
	if config.Schedules == nil {
		return nil, fmt.Errorf("schedules collection is required")
	}
	if config.Artifacts == nil {
		return nil, fmt.Errorf("artifacts collection is required")
	}
	return &Store{
		schedules: config.Schedules,
		artifacts: config.Artifacts,
		condition: config.Condition,
	}, nil
}

// EnsureIndexes creates the indexes the store depends on: the unique
// artifact occurrence key and the due-schedule scan index. Call once at
// startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.artifacts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "scheduleId", Value: 1}, {Key: "occurrence", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create artifact occurrence index: %w", err)
	}

	_, err = s.schedules.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextExecution", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create schedule due index: %w", err)
	}
	return nil
}

// scheduleDoc is the persisted shape of a recurrence.Schedule. Times are
// stored in UTC at millisecond precision (BSON datetime resolution); the
// guarded commit compares them at the same precision.
type scheduleDoc struct {
	ID              string     `bson:"_id"`
	Kind            string     `bson:"kind"`
	Unit            string     `bson:"unit"`
	Interval        int        `bson:"interval"`
	DayOfMonth      int        `bson:"dayOfMonth,omitempty"`
	DaysOfWeek      []int      `bson:"daysOfWeek,omitempty"`
	MonthOfYear     int        `bson:"monthOfYear,omitempty"`
	CustomExpr      string     `bson:"customExpr,omitempty"`
	EndDate         *time.Time `bson:"endDate,omitempty"`
	MaxOccurrences  int        `bson:"maxOccurrences,omitempty"`
	NextExecution   time.Time  `bson:"nextExecution"`
	LastExecution   *time.Time `bson:"lastExecution,omitempty"`
	OccurrenceCount int        `bson:"occurrenceCount"`
	Status          string     `bson:"status"`
	LastError       string     `bson:"lastError,omitempty"`
	Data            bson.M     `bson:"data,omitempty"`
}

type artifactDoc struct {
	ID          string    `bson:"_id"`
	ScheduleID  string    `bson:"scheduleId"`
	Occurrence  int       `bson:"occurrence"`
	Kind        string    `bson:"kind"`
	CreatedAt   time.Time `bson:"createdAt"`
	PaymentLink string    `bson:"paymentLink,omitempty"`
	Data        bson.M    `bson:"data,omitempty"`
}

// Create inserts a new schedule.
func (s *Store) Create(ctx context.Context, sched *recurrence.Schedule) error {
	if _, err := s.schedules.InsertOne(ctx, toScheduleDoc(sched)); err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// Get returns the schedule with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*recurrence.Schedule, error) {
	var doc scheduleDoc
	err := s.schedules.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, recurrence.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	return fromScheduleDoc(&doc)
}

// ListDue returns active schedules due at or before now.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]*recurrence.Schedule, error) {
	filter := bson.M{
		"status":        string(recurrence.StatusActive),
		"nextExecution": bson.M{"$lte": storedTime(now)},
	}
	for k, v := range s.condition {
		filter[k] = v
	}

	cursor, err := s.schedules.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*recurrence.Schedule
	for cursor.Next(ctx) {
		var doc scheduleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode schedule: %w", err)
		}
		sched, err := fromScheduleDoc(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("due schedule cursor failed: %w", err)
	}
	return out, nil
}

// CommitFiring applies the firing update iff the stored record still matches
// the expected snapshot. The filter carries the expectation, so the check
// and the write are a single atomic operation on the server.
func (s *Store) CommitFiring(ctx context.Context, id string, update recurrence.FiringUpdate) error {
	filter := bson.M{
		"_id":             id,
		"nextExecution":   storedTime(update.ExpectedNextExecution),
		"occurrenceCount": update.ExpectedOccurrenceCount,
	}
	set := bson.M{
		"nextExecution":   storedTime(update.NextExecution),
		"lastExecution":   storedTime(update.LastExecution),
		"occurrenceCount": update.OccurrenceCount,
		"status":          string(update.Status),
		"lastError":       "",
	}

	result, err := s.schedules.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to commit firing: %w", err)
	}
	if result.MatchedCount == 0 {
		// Distinguish a lost race from a missing schedule.
		count, err := s.schedules.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to check schedule existence: %w", err)
		}
		if count == 0 {
			return recurrence.ErrScheduleNotFound
		}
		return recurrence.ErrStateConflict
	}
	return nil
}

// SetStatus applies a lifecycle transition.
func (s *Store) SetStatus(ctx context.Context, id string, status recurrence.Status) error {
	result, err := s.schedules.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	if result.MatchedCount == 0 {
		return recurrence.ErrScheduleNotFound
	}
	return nil
}

// RecordError stores the latest dispatch failure on the schedule.
func (s *Store) RecordError(ctx context.Context, id string, msg string) error {
	result, err := s.schedules.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"lastError": msg}})
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	if result.MatchedCount == 0 {
		return recurrence.ErrScheduleNotFound
	}
	return nil
}

// Delete removes a schedule. Cancelling is usually preferable; artifacts
// keep referencing the schedule ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.schedules.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if result.DeletedCount == 0 {
		return recurrence.ErrScheduleNotFound
	}
	return nil
}

// CreateArtifact inserts an artifact, enforcing the occurrence key.
func (s *Store) CreateArtifact(ctx context.Context, a *recurrence.Artifact) error {
	_, err := s.artifacts.InsertOne(ctx, toArtifactDoc(a))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return recurrence.ErrArtifactExists
		}
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// FindByOccurrence returns the artifact for (scheduleID, occurrence), or nil
// if none exists.
func (s *Store) FindByOccurrence(ctx context.Context, scheduleID string, occurrence int) (*recurrence.Artifact, error) {
	var doc artifactDoc
	err := s.artifacts.FindOne(ctx, bson.M{
		"scheduleId": scheduleID,
		"occurrence": occurrence,
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	return fromArtifactDoc(&doc), nil
}

// Artifacts returns an ArtifactStore view of the store. The schedule-store
// methods are on Store directly, so one value wires both dispatcher fields.
func (s *Store) Artifacts() recurrence.ArtifactStore {
	return artifactView{s}
}

// artifactView adapts Store's artifact methods to the ArtifactStore
// interface, whose Create would otherwise collide with schedule Create.
type artifactView struct {
	store *Store
}

func (v artifactView) Create(ctx context.Context, a *recurrence.Artifact) error {
	return v.store.CreateArtifact(ctx, a)
}

func (v artifactView) FindByOccurrence(ctx context.Context, scheduleID string, occurrence int) (*recurrence.Artifact, error) {
	return v.store.FindByOccurrence(ctx, scheduleID, occurrence)
}

// storedTime normalizes a time to what BSON round-trips: UTC, millisecond
// precision. Guarded commits rely on this being applied consistently.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func storedTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	st := storedTime(*t)
	return &st
}

func toScheduleDoc(sched *recurrence.Schedule) *scheduleDoc {
	days := make([]int, 0, len(sched.Pattern.DaysOfWeek))
	for _, d := range sched.Pattern.DaysOfWeek {
		days = append(days, int(d))
	}
	if len(days) == 0 {
		days = nil
	}
	return &scheduleDoc{
		ID:              sched.ID,
		Kind:            string(sched.Kind),
		Unit:            sched.Pattern.Unit.String(),
		Interval:        sched.Pattern.Interval,
		DayOfMonth:      sched.Pattern.DayOfMonth,
		DaysOfWeek:      days,
		MonthOfYear:     int(sched.Pattern.MonthOfYear),
		CustomExpr:      sched.Pattern.CustomExpr,
		EndDate:         storedTimePtr(sched.Pattern.EndDate),
		MaxOccurrences:  sched.Pattern.MaxOccurrences,
		NextExecution:   storedTime(sched.NextExecution),
		LastExecution:   storedTimePtr(sched.LastExecution),
		OccurrenceCount: sched.OccurrenceCount,
		Status:          string(sched.Status),
		LastError:       sched.LastError,
		Data:            bson.M(sched.Data),
	}
}

func fromScheduleDoc(doc *scheduleDoc) (*recurrence.Schedule, error) {
	unit, err := recurrence.ParseUnit(doc.Unit)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", doc.ID, err)
	}

	var days []time.Weekday
	for _, d := range doc.DaysOfWeek {
		days = append(days, time.Weekday(d))
	}

	return &recurrence.Schedule{
		ID:   doc.ID,
		Kind: recurrence.ArtifactKind(doc.Kind),
		Pattern: recurrence.Pattern{
			Unit:           unit,
			Interval:       doc.Interval,
			DayOfMonth:     doc.DayOfMonth,
			DaysOfWeek:     days,
			MonthOfYear:    time.Month(doc.MonthOfYear),
			CustomExpr:     doc.CustomExpr,
			EndDate:        doc.EndDate,
			MaxOccurrences: doc.MaxOccurrences,
		},
		NextExecution:   doc.NextExecution,
		LastExecution:   doc.LastExecution,
		OccurrenceCount: doc.OccurrenceCount,
		Status:          recurrence.Status(doc.Status),
		LastError:       doc.LastError,
		Data:            map[string]interface{}(doc.Data),
	}, nil
}

func toArtifactDoc(a *recurrence.Artifact) *artifactDoc {
	return &artifactDoc{
		ID:          a.ID,
		ScheduleID:  a.ScheduleID,
		Occurrence:  a.Occurrence,
		Kind:        string(a.Kind),
		CreatedAt:   storedTime(a.CreatedAt),
		PaymentLink: a.PaymentLink,
		Data:        bson.M(a.Data),
	}
}

func fromArtifactDoc(doc *artifactDoc) *recurrence.Artifact {
	return &recurrence.Artifact{
		ID:          doc.ID,
		ScheduleID:  doc.ScheduleID,
		Occurrence:  doc.Occurrence,
		Kind:        recurrence.ArtifactKind(doc.Kind),
		CreatedAt:   doc.CreatedAt,
		PaymentLink: doc.PaymentLink,
		Data:        doc.Data,
	}
}
