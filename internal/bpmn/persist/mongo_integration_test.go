package persist_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/bpmnkit/engine/internal/bpmn/persist"
)

// setupMongoContainer starts a disposable mongo:7 container for the test
// and returns a connected client, skipping the test outright when Docker
// isn't available in the current environment.
func setupMongoContainer(t *testing.T) *mongodriver.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
		Tmpfs:        map[string]string{"/data/db": "rw"},
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker not available, skipping mongo integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	require.NoError(t, client.Ping(ctx, nil))
	return client
}

// TestMongoStore_RunAndEventRoundTrip exercises the MongoStore against a
// real MongoDB instance: a run recorded as started, finished, and its
// archived events must all be readable back exactly as written, the same
// round-trip property the in-memory store's unit tests already cover.
func TestMongoStore_RunAndEventRoundTrip(t *testing.T) {
	client := setupMongoContainer(t)
	ctx := context.Background()

	store, err := persist.NewMongoStore(ctx, persist.MongoOptions{
		Client:   client,
		Database: "bpmnkit_test",
	})
	require.NoError(t, err)

	instanceID := "inst-mongo-1"
	startedAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.RecordStarted(ctx, persist.RunRecord{
		InstanceID: instanceID,
		ProcessID:  "order-fulfillment",
		Status:     "running",
		StartedAt:  startedAt,
	}))

	// A retried start report must not duplicate the run record.
	require.NoError(t, store.RecordStarted(ctx, persist.RunRecord{
		InstanceID: instanceID,
		ProcessID:  "order-fulfillment",
		Status:     "running",
		StartedAt:  startedAt,
	}))

	events := []persist.EventRecord{
		{InstanceID: instanceID, ElementID: "start", Type: "workflow.started", Timestamp: startedAt},
		{InstanceID: instanceID, ElementID: "task-1", Type: "element.completed", Timestamp: startedAt.Add(time.Second)},
	}
	require.NoError(t, store.AppendEvents(ctx, instanceID, events))

	endedAt := startedAt.Add(2 * time.Second)
	require.NoError(t, store.RecordFinished(ctx, instanceID, "success", endedAt, ""))

	run, err := store.LoadRun(ctx, instanceID)
	require.NoError(t, err)
	assert.Equal(t, "order-fulfillment", run.ProcessID)
	assert.Equal(t, "success", run.Status)
	assert.WithinDuration(t, startedAt, run.StartedAt, time.Millisecond)

	got, err := store.ListEvents(ctx, instanceID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "workflow.started", got[0].Type)
	assert.Equal(t, "element.completed", got[1].Type)

	runs, err := store.ListRuns(ctx, "order-fulfillment", nil)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

// TestMongoStore_LoadRunNotFound verifies a never-recorded instance returns
// ErrRunNotFound against a real collection, not just the in-memory fake.
func TestMongoStore_LoadRunNotFound(t *testing.T) {
	client := setupMongoContainer(t)
	ctx := context.Background()

	store, err := persist.NewMongoStore(ctx, persist.MongoOptions{
		Client:   client,
		Database: "bpmnkit_test",
	})
	require.NoError(t, err)

	_, err = store.LoadRun(ctx, "never-started")
	assert.ErrorIs(t, err, persist.ErrRunNotFound)
}
