package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"cardgate/pkg/domain"
	audit "cardgate/pkg/platform/audit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestStore_Append(t *testing.T) {
	t.Run("publishes keyed json message", func(t *testing.T) {
		producer := &fakeProducer{}
		store := New(producer, "cardgate.audit")
		userID := domain.NewUserID()

		err := store.Append(context.Background(), audit.Event{
			Timestamp: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
			UserID:    userID,
			Subject:   "distribution:abc",
			Action:    string(audit.EventDistributionUsed),
		})
		require.NoError(t, err)
		require.Len(t, producer.records, 1)

		rec := producer.records[0]
		assert.Equal(t, "cardgate.audit", rec.Topic)
		assert.Equal(t, userID.String(), string(rec.Key))

		var msg map[string]string
		require.NoError(t, json.Unmarshal(rec.Value, &msg))
		assert.Equal(t, "compliance", msg["category"])
		assert.Equal(t, "2025-05-01T12:00:00Z", msg["timestamp"])
		assert.Equal(t, "distribution_consumed", msg["action"])
	})

	t.Run("surfaces produce errors", func(t *testing.T) {
		producer := &fakeProducer{err: errors.New("broker down")}
		err := New(producer, "t").Append(context.Background(), audit.Event{Action: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})
}
