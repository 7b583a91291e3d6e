package persist

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultRunsCollection   = "bpmn_runs"
	defaultEventsCollection = "bpmn_events"
	defaultOpTimeout        = 5 * time.Second
)

// MongoOptions configures a Mongo-backed Store.
type MongoOptions struct {
	Client           *mongodriver.Client
	Database         string
	RunsCollection   string
	EventsCollection string
	Timeout          time.Duration
}

// MongoStore is the Mongo-backed Store implementation, grounded on the
// teacher's features/session/mongo client: run writes are keyed by instance
// id (RecordStarted is a $setOnInsert upsert, RecordFinished a $set), so
// retried run writes never duplicate a run record. AppendEvents is a plain
// insert, so a retried batch is stored twice.
type MongoStore struct {
	runs    *mongodriver.Collection
	events  *mongodriver.Collection
	timeout time.Duration
}

// NewMongoStore builds a MongoStore and ensures its indexes exist.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("persist: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("persist: database name is required")
	}
	runsName := opts.RunsCollection
	if runsName == "" {
		runsName = defaultRunsCollection
	}
	eventsName := opts.EventsCollection
	if eventsName == "" {
		eventsName = defaultEventsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	runs := opts.Client.Database(opts.Database).Collection(runsName)
	events := opts.Client.Database(opts.Database).Collection(eventsName)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := runs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "instance_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := runs.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "process_id", Value: 1}, {Key: "status", Value: 1}},
	}); err != nil {
		return nil, err
	}
	if _, err := events.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "instance_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}); err != nil {
		return nil, err
	}

	return &MongoStore{runs: runs, events: events, timeout: timeout}, nil
}

type runDocument struct {
	InstanceID string            `bson:"instance_id"`
	ProcessID  string            `bson:"process_id"`
	Status     string            `bson:"status"`
	StartedAt  time.Time         `bson:"started_at"`
	EndedAt    time.Time         `bson:"ended_at,omitempty"`
	Error      string            `bson:"error,omitempty"`
	Labels     map[string]string `bson:"labels,omitempty"`
}

type eventDocument struct {
	InstanceID string         `bson:"instance_id"`
	ElementID  string         `bson:"element_id,omitempty"`
	Type       string         `bson:"type"`
	Timestamp  time.Time      `bson:"timestamp"`
	Payload    map[string]any `bson:"payload,omitempty"`
	Extra      map[string]any `bson:"extra,omitempty"`
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// RecordStarted upserts a run's starting metadata, never overwriting an
// already-recorded StartedAt (mirrors the teacher's $setOnInsert pattern
// for idempotent creation under retries).
func (s *MongoStore) RecordStarted(ctx context.Context, run RunRecord) error {
	if run.InstanceID == "" {
		return errors.New("persist: instance id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"instance_id": run.InstanceID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"instance_id": run.InstanceID,
			"process_id":  run.ProcessID,
			"status":      run.Status,
			"started_at":  run.StartedAt.UTC(),
			"labels":      run.Labels,
		},
	}
	_, err := s.runs.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// RecordFinished transitions a run to its terminal status.
func (s *MongoStore) RecordFinished(ctx context.Context, instanceID, status string, endedAt time.Time, errMsg string) error {
	if instanceID == "" {
		return errors.New("persist: instance id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"instance_id": instanceID}
	update := bson.M{
		"$set": bson.M{
			"status":   status,
			"ended_at": endedAt.UTC(),
			"error":    errMsg,
		},
	}
	_, err := s.runs.UpdateOne(ctx, filter, update)
	return err
}

// LoadRun returns the run metadata for instanceID.
func (s *MongoStore) LoadRun(ctx context.Context, instanceID string) (RunRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc runDocument
	err := s.runs.FindOne(ctx, bson.M{"instance_id": instanceID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return RunRecord{}, ErrRunNotFound
	}
	if err != nil {
		return RunRecord{}, err
	}
	return docToRun(doc), nil
}

// ListRuns returns every run for processID (all processes, if empty)
// filtered to statuses (all statuses, if empty).
func (s *MongoStore) ListRuns(ctx context.Context, processID string, statuses []string) ([]RunRecord, error) {
	filter := bson.M{}
	if processID != "" {
		filter["process_id"] = processID
	}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.runs.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []RunRecord
	for cur.Next(ctx) {
		var doc runDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, docToRun(doc))
	}
	return out, cur.Err()
}

// AppendEvents archives a batch of events for instanceID.
func (s *MongoStore) AppendEvents(ctx context.Context, instanceID string, evs []EventRecord) error {
	if len(evs) == 0 {
		return nil
	}
	docs := make([]any, 0, len(evs))
	for _, ev := range evs {
		docs = append(docs, eventDocument{
			InstanceID: instanceID,
			ElementID:  ev.ElementID,
			Type:       ev.Type,
			Timestamp:  ev.Timestamp.UTC(),
			Payload:    ev.Payload,
			Extra:      ev.Extra,
		})
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.events.InsertMany(ctx, docs)
	return err
}

// ListEvents returns instanceID's archived events in recorded order.
func (s *MongoStore) ListEvents(ctx context.Context, instanceID string) ([]EventRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.events.Find(ctx, bson.M{"instance_id": instanceID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []EventRecord
	for cur.Next(ctx) {
		var doc eventDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, EventRecord{
			InstanceID: doc.InstanceID,
			ElementID:  doc.ElementID,
			Type:       doc.Type,
			Timestamp:  doc.Timestamp,
			Payload:    doc.Payload,
			Extra:      doc.Extra,
		})
	}
	return out, cur.Err()
}

func docToRun(doc runDocument) RunRecord {
	return RunRecord{
		InstanceID: doc.InstanceID,
		ProcessID:  doc.ProcessID,
		Status:     doc.Status,
		StartedAt:  doc.StartedAt,
		EndedAt:    doc.EndedAt,
		Error:      doc.Error,
		Labels:     doc.Labels,
	}
}

var _ Store = (*MongoStore)(nil)
