package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorValue_UnmarshalDispatch(t *testing.T) {
	var payload ReadingsPayload
	data := `{"readings":[
		{"sensor_name":"temperature","sensor_type":"temperature","value":27.4},
		{"sensor_name":"occupied","sensor_type":"presence","value":true},
		{"sensor_name":"mode","sensor_type":"mode","value":"eco"},
		{"sensor_name":"broken","sensor_type":"temperature","value":null}
	]}`
	require.NoError(t, json.Unmarshal([]byte(data), &payload))
	require.Len(t, payload.Readings, 4)

	v, ok := payload.Readings[0].Value.Number()
	require.True(t, ok)
	assert.Equal(t, 27.4, v)

	b, ok := payload.Readings[1].Value.Bool()
	require.True(t, ok)
	assert.True(t, b)

	s, ok := payload.Readings[2].Value.String()
	require.True(t, ok)
	assert.Equal(t, "eco", s)

	// null 值：无效变体，永远不会参与评估
	assert.False(t, payload.Readings[3].Value.IsValid())
	_, ok = payload.Readings[3].Value.Number()
	assert.False(t, ok)
}

func TestSensorValue_UnmarshalRejectsObjects(t *testing.T) {
	var v SensorValue
	err := json.Unmarshal([]byte(`{"nested":1}`), &v)
	assert.Error(t, err)
}

func TestSensorValue_MarshalRoundTrip(t *testing.T) {
	reading := Reading{
		SensorName: "temperature",
		SensorType: "temperature",
		Value:      NumberValue(27.4),
		Unit:       "°C",
	}

	data, err := json.Marshal(reading)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":27.4`)

	invalid, err := json.Marshal(SensorValue{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(invalid))
}
