package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeprofile/routeprofile/internal/api/models"
)

func TestTimestamp_JSON(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	ts := models.Timestamp(time.Date(2024, 5, 1, 10, 0, 25, 900_000_000, berlin))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-05-01T08:00:25Z"`, string(data))

	var req models.RouteProfileRequest
	require.NoError(t, json.Unmarshal([]byte(`{"departureTime":"2024-05-01T10:00:00+02:00"}`), &req))
	require.NotNil(t, req.DepartureTime)
	assert.True(t, req.DepartureTime.Time().Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)))

	req = models.RouteProfileRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"departureTime":"2024-05-01 08:00:00"}`), &req))
	require.NotNil(t, req.DepartureTime)
	assert.True(t, req.DepartureTime.Time().Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)))

	assert.Error(t, json.Unmarshal([]byte(`{"departureTime":"tomorrow"}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"departureTime":"2024-05-01 25:00:00"}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"departureTime":1714550400}`), &req))
}
