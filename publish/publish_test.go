package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gr-butler/dht/dht"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	r := dht.Reading{Status: dht.ChecksumMismatch}
	reading, status := Topics("home/dht", r)
	assert.Equal(t, "home/dht/reading", reading)
	assert.Equal(t, "home/dht/status/checksum_mismatch", status)
}

func TestPayload(t *testing.T) {
	r := dht.Reading{
		Values:   dht.Values{Temperature: 20.1, Humidity: 40, Valid: true},
		Status:   dht.Success,
		Attempts: 2,
		Statuses: []dht.Status{dht.NoResponse, dht.Success},
		Time:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, 2.0, got["attempts"])
	assert.Equal(t, []interface{}{"no_response", "success"}, got["statuses"])
	assert.Equal(t, 20.1, got["temperature_C"])
	assert.Equal(t, 40.0, got["humidity_RH"])
	assert.Equal(t, "2024-01-02T03:04:05Z", got["time"])
}
