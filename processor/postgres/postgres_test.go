package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/pipeline"
)

func TestProcessorInitialize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := NewWithPool(mock, "")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS feature_messages")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, p.Initialize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessorProcess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := NewWithPool(mock, "traces")
	msg := pipeline.NewFeatureMessage("node.started", "run-1", map[string]any{"node": "a"})
	payload, _ := json.Marshal(msg.Payload)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO traces")).
		WithArgs(msg.ID, msg.Type, msg.RunID, msg.Timestamp, payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, p.Process(context.Background(), msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessorProcessError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := NewWithPool(mock, "")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO feature_messages")).
		WillReturnError(errors.New("connection reset"))

	err = p.Process(context.Background(), pipeline.NewFeatureMessage("x", "r", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestProcessorMessages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := NewWithPool(mock, "")
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "type", "run_id", "timestamp", "payload"}).
		AddRow("m1", "node.started", "run-1", ts, []byte(`{"node":"a"}`)).
		AddRow("m2", "node.finished", "run-1", ts.Add(time.Second), []byte(nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, type, run_id, timestamp, payload")).
		WithArgs("run-1").
		WillReturnRows(rows)

	msgs, err := p.Messages(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Payload["node"])
	assert.Equal(t, ts, msgs[0].Timestamp)
	assert.Nil(t, msgs[1].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessorCloseLeavesSharedPool(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := NewWithPool(mock, "")
	require.NoError(t, p.Close(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
