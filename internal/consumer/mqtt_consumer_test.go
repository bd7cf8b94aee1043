package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workbit-telemetry/internal/config"
	"workbit-telemetry/internal/models"
)

type fakeEngine struct {
	registrations []*models.DeviceRegistration
	readings      map[string]*models.ReadingsPayload
	environmental []*models.EnvironmentalPayload
	access        []*models.AccessRequest
	guestLists    []*models.GuestList
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{readings: map[string]*models.ReadingsPayload{}}
}

func (f *fakeEngine) RegisterDevice(_ context.Context, reg *models.DeviceRegistration) error {
	f.registrations = append(f.registrations, reg)
	return nil
}

func (f *fakeEngine) IngestReadings(_ context.Context, deviceID string, payload *models.ReadingsPayload) error {
	f.readings[deviceID] = payload
	return nil
}

func (f *fakeEngine) IngestEnvironmental(_ context.Context, payload *models.EnvironmentalPayload) error {
	f.environmental = append(f.environmental, payload)
	return nil
}

func (f *fakeEngine) RecordAccess(_ context.Context, req *models.AccessRequest) error {
	f.access = append(f.access, req)
	return nil
}

func (f *fakeEngine) SyncGuestList(_ context.Context, gl *models.GuestList) error {
	f.guestLists = append(f.guestLists, gl)
	return nil
}

func setupConsumer(t *testing.T) (*MQTTConsumer, *fakeEngine) {
	t.Helper()

	cfg := &config.Config{}
	cfg.MQTT.QoS = 1
	engine := newFakeEngine()
	c := NewMQTTConsumer(cfg, nil, engine, zap.NewNop())
	return c, engine
}

func TestHandleDeviceAdd(t *testing.T) {
	c, engine := setupConsumer(t)

	payload := `{"device_id":"dev-001","name":"Env Sensor 1","type":"environmental","space_id":12,"space_name":"Meeting Room A"}`
	require.NoError(t, c.handleDeviceAdd("devices/add", []byte(payload)))

	require.Len(t, engine.registrations, 1)
	assert.Equal(t, "dev-001", engine.registrations[0].DeviceID)
	assert.Equal(t, 12, engine.registrations[0].SpaceID)
}

func TestHandlers_InvalidJSONWrapsDecodeError(t *testing.T) {
	c, engine := setupConsumer(t)

	err := c.handleDeviceAdd("devices/add", []byte(`{not json`))
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Empty(t, engine.registrations)

	err = c.handleReadings("devices/dev-001/readings", []byte(`{not json`))
	assert.True(t, errors.Is(err, ErrDecode))

	err = c.handleGuestList("guests/list", []byte(`[`))
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestHandleReadings_ExtractsDeviceID(t *testing.T) {
	c, engine := setupConsumer(t)

	payload := `{"readings":[{"sensor_name":"temperature","sensor_type":"temperature","value":27.4,"unit":"°C"}]}`
	require.NoError(t, c.handleReadings("devices/dev-001/readings", []byte(payload)))

	require.Contains(t, engine.readings, "dev-001")
	readings := engine.readings["dev-001"].Readings
	require.Len(t, readings, 1)

	v, ok := readings[0].Value.Number()
	require.True(t, ok)
	assert.Equal(t, 27.4, v)
}

func TestHandleReadings_MixedValueTypes(t *testing.T) {
	c, engine := setupConsumer(t)

	payload := `{"readings":[
		{"sensor_name":"temperature","sensor_type":"temperature","value":22.5},
		{"sensor_name":"occupied","sensor_type":"presence","value":true},
		{"sensor_name":"mode","sensor_type":"mode","value":"eco"}
	]}`
	require.NoError(t, c.handleReadings("devices/dev-002/readings", []byte(payload)))

	readings := engine.readings["dev-002"].Readings
	require.Len(t, readings, 3)

	_, isNum := readings[0].Value.Number()
	assert.True(t, isNum)
	b, isBool := readings[1].Value.Bool()
	assert.True(t, isBool)
	assert.True(t, b)
	s, isStr := readings[2].Value.String()
	assert.True(t, isStr)
	assert.Equal(t, "eco", s)
}

func TestHandleReadings_BadTopic(t *testing.T) {
	c, engine := setupConsumer(t)

	payload := `{"readings":[{"sensor_name":"t","sensor_type":"temperature","value":22.5}]}`

	assert.Error(t, c.handleReadings("devices/readings", []byte(payload)))
	assert.Error(t, c.handleReadings("devices//readings", []byte(payload)))
	assert.Empty(t, engine.readings)
}

func TestHandleEnvironmental(t *testing.T) {
	c, engine := setupConsumer(t)

	payload := `{"device_id":"dev-001","temperature":27.4,"co2":850,"people_count":5,"capacity":8}`
	require.NoError(t, c.handleEnvironmental("sensors/environmental_data", []byte(payload)))

	require.Len(t, engine.environmental, 1)
	env := engine.environmental[0]
	assert.Equal(t, "dev-001", env.DeviceID)
	assert.Equal(t, 27.4, *env.Temperature)
	assert.Equal(t, 850.0, *env.CO2)
	assert.Equal(t, 5, *env.PeopleCount)
}

func TestHandleAccessRequest(t *testing.T) {
	c, engine := setupConsumer(t)

	payload := `{"device_id":"door-001","card_code":"C-42","access_type":"entry"}`
	require.NoError(t, c.handleAccessRequest("access/request", []byte(payload)))

	require.Len(t, engine.access, 1)
	assert.Equal(t, "C-42", engine.access[0].CardCode)
}

func TestHandleGuestList(t *testing.T) {
	c, engine := setupConsumer(t)

	payload := `{"space_id":12,"guests":["C-41","C-42"]}`
	require.NoError(t, c.handleGuestList("guests/list", []byte(payload)))

	require.Len(t, engine.guestLists, 1)
	assert.Equal(t, []string{"C-41", "C-42"}, engine.guestLists[0].Guests)
}

func TestDispatch_DrainsInFlightOnStop(t *testing.T) {
	c, engine := setupConsumer(t)

	handler := c.dispatch(c.handleGuestList)
	handler("guests/list", []byte(`{"space_id":12,"guests":["C-41"]}`))

	c.Stop()
	assert.Len(t, engine.guestLists, 1)

	// 停止后新消息直接丢弃
	handler("guests/list", []byte(`{"space_id":13,"guests":["C-42"]}`))
	assert.Len(t, engine.guestLists, 1)
}
