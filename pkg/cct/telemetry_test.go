package cct

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/models"
	_ "probecloud.xyz/cct-backend/pkg/testing"
)

func registerDeviceWithProbes(t *testing.T, cctObj *CCT, probeIDs ...string) *models.Device {
	t.Helper()
	device := registerTestDevice(t, cctObj)
	for _, probeID := range probeIDs {
		_, err := cctObj.Registry.RegisterProbe(device.DeviceID, RegisterProbeInput{ProbeID: probeID})
		require.NoError(t, err)
	}
	return device
}

func TestIngestBatch(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, mockIEvaluator := GetMockCCTWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()

	device := registerDeviceWithProbes(t, cctObj, "P1", "P2")

	mockIEvaluator.
		EXPECT().
		EvaluateReading(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(2)

	result, err := cctObj.Telemetry.IngestBatch(IngestInput{
		DeviceID: device.DeviceID,
		Readings: []ProbeReadingInput{
			{ProbeID: "P1", Temperature: 165.0},
			{ProbeID: "P2", Temperature: 175.0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)
	assert.Nil(t, result.TargetTemperature)

	// no synthesized average row; CurrentAverage computes it on demand
	var count int64
	err = cctObj.Db.Conn.Model(&models.TemperatureReading{}).
		Where("device_id = ? AND is_average = ?", device.DeviceID, true).
		Count(&count).Error
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

// A single posted reading yields exactly one history entry.
func TestIngestBatch_SingleReadingSingleHistoryRow(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, mockIEvaluator := GetMockCCTWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()

	device := registerDeviceWithProbes(t, cctObj, "P1")

	mockIEvaluator.
		EXPECT().
		EvaluateReading(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(1)

	result, err := cctObj.Telemetry.IngestBatch(IngestInput{
		DeviceID: device.DeviceID,
		Readings: []ProbeReadingInput{{ProbeID: "P1", Temperature: 165.0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stored)

	history, err := cctObj.Telemetry.History(device.DeviceID, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "P1", history[0].ProbeID)
	assert.Equal(t, 165.0, history[0].Temperature)
	assert.False(t, history[0].IsAverage)
}

func TestIngestBatch_SuppliedAverage(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, mockIEvaluator := GetMockCCTWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()

	device := registerDeviceWithProbes(t, cctObj, "P1", "P2")

	mockIEvaluator.
		EXPECT().
		EvaluateReading(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(2)

	supplied := 168.5
	result, err := cctObj.Telemetry.IngestBatch(IngestInput{
		DeviceID: device.DeviceID,
		Readings: []ProbeReadingInput{
			{ProbeID: "P1", Temperature: 165.0},
			{ProbeID: "P2", Temperature: 175.0},
		},
		AverageTemperature: &supplied,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)

	// A device-supplied average is stored as-is, not recomputed.
	var average models.TemperatureReading
	err = cctObj.Db.Conn.
		Where("device_id = ? AND is_average = ?", device.DeviceID, true).
		First(&average).Error
	require.NoError(t, err)
	assert.Equal(t, supplied, average.Temperature)
}

func TestIngestBatch_ReturnsCurrentTarget(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, mockIEvaluator := GetMockCCTWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()

	device := registerDeviceWithProbes(t, cctObj, "P1")

	_, err := cctObj.Sync.SetTargetFromDevice(device.DeviceID, 185.0)
	require.NoError(t, err)

	mockIEvaluator.
		EXPECT().
		EvaluateReading(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(1)

	result, err := cctObj.Telemetry.IngestBatch(IngestInput{
		DeviceID: device.DeviceID,
		Readings: []ProbeReadingInput{{ProbeID: "P1", Temperature: 150.0}},
	})
	require.NoError(t, err)
	require.NotNil(t, result.TargetTemperature)
	assert.Equal(t, 185.0, *result.TargetTemperature)
}

func TestIngestBatch_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	_, err := cctObj.Telemetry.IngestBatch(IngestInput{DeviceID: uuid.NewString()})
	require.ErrorIs(t, err, ErrUnknownDevice)

	device := registerDeviceWithProbes(t, cctObj, "P1")
	_, err = cctObj.Telemetry.IngestBatch(IngestInput{
		DeviceID: device.DeviceID,
		Readings: []ProbeReadingInput{{ProbeID: "P9", Temperature: 100.0}},
	})
	require.ErrorIs(t, err, ErrUnknownProbe)

	// force the evaluator to be nil to cause evaluator not available
	cctObj.Evaluator = nil
	_, err = cctObj.Telemetry.IngestBatch(IngestInput{
		DeviceID: device.DeviceID,
		Readings: []ProbeReadingInput{{ProbeID: "P1", Temperature: 100.0}},
	})
	require.Error(t, err, "evaluator service not available")
}

func TestHistory(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, mockIEvaluator := GetMockCCTWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()

	device := registerDeviceWithProbes(t, cctObj, "P1", "P2")

	mockIEvaluator.
		EXPECT().
		EvaluateReading(gomock.Any(), gomock.Any(), gomock.Any()).
		AnyTimes()

	for i := 0; i < 3; i++ {
		avg := 155.0 + float64(i)
		_, err := cctObj.Telemetry.IngestBatch(IngestInput{
			DeviceID: device.DeviceID,
			Readings: []ProbeReadingInput{
				{ProbeID: "P1", Temperature: 150.0 + float64(i)},
				{ProbeID: "P2", Temperature: 160.0 + float64(i)},
			},
			AverageTemperature: &avg,
		})
		require.NoError(t, err)
	}

	all, err := cctObj.Telemetry.History(device.DeviceID, HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 9) // 6 raw + 3 average

	p1Only, err := cctObj.Telemetry.History(device.DeviceID, HistoryQuery{ProbeID: "P1"})
	require.NoError(t, err)
	assert.Len(t, p1Only, 3)

	isAverage := true
	averages, err := cctObj.Telemetry.History(device.DeviceID, HistoryQuery{IsAverage: &isAverage})
	require.NoError(t, err)
	assert.Len(t, averages, 3)
	// newest first
	assert.Equal(t, 157.0, averages[0].Temperature)

	limited, err := cctObj.Telemetry.History(device.DeviceID, HistoryQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = cctObj.Telemetry.History(uuid.NewString(), HistoryQuery{})
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestCurrentAverage(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, mockIEvaluator := GetMockCCTWithMemorySqliteDialector(t, true)
	defer ctrl.Finish()

	device := registerDeviceWithProbes(t, cctObj, "P1", "P2")

	_, err := cctObj.Telemetry.CurrentAverage(device.DeviceID)
	assert.ErrorIs(t, err, ErrNoReadings)

	mockIEvaluator.
		EXPECT().
		EvaluateReading(gomock.Any(), gomock.Any(), gomock.Any()).
		AnyTimes()

	_, err = cctObj.Telemetry.IngestBatch(IngestInput{
		DeviceID: device.DeviceID,
		Readings: []ProbeReadingInput{
			{ProbeID: "P1", Temperature: 165.0},
			{ProbeID: "P2", Temperature: 175.0},
		},
	})
	require.NoError(t, err)

	avg, err := cctObj.Telemetry.CurrentAverage(device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, 170.0, avg)

	// a disconnected probe drops out of the average
	_, err = cctObj.Registry.SetProbeConnection(device.DeviceID, "P2", false)
	require.NoError(t, err)

	avg, err = cctObj.Telemetry.CurrentAverage(device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, 165.0, avg)
}
