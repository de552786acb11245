package cct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/db"
	"probecloud.xyz/cct-backend/pkg/models"
	_ "probecloud.xyz/cct-backend/pkg/testing"
)

// seeds a claimed device with one probe and a max threshold of 200.
func setupThresholdFixture(t *testing.T, cctObj *CCT) (*models.User, *models.Device, *models.Probe) {
	t.Helper()

	user, err := cctObj.Identity.RegisterUser(newTestUserInput())
	require.NoError(t, err)
	device := registerTestDevice(t, cctObj)
	_, err = cctObj.Registry.AssociateDevice(user.ID, device.DeviceID)
	require.NoError(t, err)
	probe, err := cctObj.Registry.RegisterProbe(device.DeviceID, RegisterProbeInput{ProbeID: "P1"})
	require.NoError(t, err)

	// All channels off, so each dispatched event records exactly one in-app
	// row and row counts equal event counts.
	off := false
	maxThreshold := 200.0
	_, err = cctObj.Notifier.UpdateNotificationSettings(user.ID, SettingsUpdateInput{
		EmailEnabled:     &off,
		SMSEnabled:       &off,
		PushEnabled:      &off,
		MaxTempThreshold: &maxThreshold,
	})
	require.NoError(t, err)

	device, err = cctObj.deviceByID(device.DeviceID)
	require.NoError(t, err)
	return user, device, probe
}

func countNotifications(t *testing.T, cctObj *CCT, userID uint, nType models.NotificationType) int64 {
	t.Helper()
	var count int64
	err := cctObj.Db.Conn.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", userID, nType).
		Count(&count).Error
	require.NoError(t, err)
	return count
}

func TestEvaluateReading_MaxThresholdBoundary(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	user, device, probe := setupThresholdFixture(t, cctObj)

	// strictly greater: 199 and 200 stay quiet, 201 fires
	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 199.0))
	assert.EqualValues(t, 0, countNotifications(t, cctObj, user.ID, models.NotificationTypeTemperatureAlert))

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 200.0))
	assert.EqualValues(t, 0, countNotifications(t, cctObj, user.ID, models.NotificationTypeTemperatureAlert))

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 201.0))
	assert.EqualValues(t, 1, countNotifications(t, cctObj, user.ID, models.NotificationTypeTemperatureAlert))
}

func TestEvaluateReading_NoDebounce(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	user, device, probe := setupThresholdFixture(t, cctObj)

	// every breach fires, back to back breaches included
	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 210.0))
	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 211.0))
	assert.EqualValues(t, 2, countNotifications(t, cctObj, user.ID, models.NotificationTypeTemperatureAlert))
}

func TestEvaluateReading_MinThreshold(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	user, device, probe := setupThresholdFixture(t, cctObj)

	minThreshold := 140.0
	_, err := cctObj.Notifier.UpdateNotificationSettings(user.ID, SettingsUpdateInput{
		MinTempThreshold: &minThreshold,
	})
	require.NoError(t, err)

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 140.0))
	assert.EqualValues(t, 0, countNotifications(t, cctObj, user.ID, models.NotificationTypeTemperatureAlert))

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 139.5))
	assert.EqualValues(t, 1, countNotifications(t, cctObj, user.ID, models.NotificationTypeTemperatureAlert))

	var row models.Notification
	err = cctObj.Db.Conn.
		Where("user_id = ? AND type = ?", user.ID, models.NotificationTypeTemperatureAlert).
		First(&row).Error
	require.NoError(t, err)
	assert.Equal(t, "Low Temperature Alert", row.Title)
}

func TestEvaluateReading_UnclaimedDevice(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	device := registerTestDevice(t, cctObj)
	probe, err := cctObj.Registry.RegisterProbe(device.DeviceID, RegisterProbeInput{ProbeID: "P1"})
	require.NoError(t, err)

	// no owner, nothing to do
	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 500.0))

	var count int64
	err = cctObj.Db.Conn.Model(&models.Notification{}).
		Where("device_id = ?", device.DeviceID).
		Count(&count).Error
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEvaluateReading_CustomTrigger(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	user, device, probe := setupThresholdFixture(t, cctObj)

	_, err := cctObj.Notifier.CreateTrigger(user.ID, TriggerInput{
		Name:           "Wrap the brisket",
		Condition:      models.TriggerAbove,
		ThresholdValue: 160.0,
		DeviceID:       device.DeviceID,
		ProbeID:        probe.ProbeID,
	})
	require.NoError(t, err)

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 165.0))
	assert.EqualValues(t, 1, countNotifications(t, cctObj, user.ID, models.NotificationTypeCustomTrigger))

	var row models.Notification
	err = cctObj.Db.Conn.
		Where("user_id = ? AND type = ?", user.ID, models.NotificationTypeCustomTrigger).
		First(&row).Error
	require.NoError(t, err)
	assert.Equal(t, "Custom Temperature Alert: Wrap the brisket", row.Title)
}

func TestEvaluateReading_CustomTriggerScope(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	user, device, probe := setupThresholdFixture(t, cctObj)
	otherProbe, err := cctObj.Registry.RegisterProbe(device.DeviceID, RegisterProbeInput{ProbeID: "P2"})
	require.NoError(t, err)

	_, err = cctObj.Notifier.CreateTrigger(user.ID, TriggerInput{
		Name:           "Probe one only",
		Condition:      models.TriggerAbove,
		ThresholdValue: 100.0,
		DeviceID:       device.DeviceID,
		ProbeID:        probe.ProbeID,
	})
	require.NoError(t, err)

	// the other probe is out of scope
	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, otherProbe, 150.0))
	assert.EqualValues(t, 0, countNotifications(t, cctObj, user.ID, models.NotificationTypeCustomTrigger))

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 150.0))
	assert.EqualValues(t, 1, countNotifications(t, cctObj, user.ID, models.NotificationTypeCustomTrigger))
}

func TestEvaluateReading_EqualIsExact(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	user, device, probe := setupThresholdFixture(t, cctObj)

	_, err := cctObj.Notifier.CreateTrigger(user.ID, TriggerInput{
		Name:           "Exactly done",
		Condition:      models.TriggerEqual,
		ThresholdValue: 165.0,
		DeviceID:       device.DeviceID,
	})
	require.NoError(t, err)

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 164.9))
	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 165.1))
	assert.EqualValues(t, 0, countNotifications(t, cctObj, user.ID, models.NotificationTypeCustomTrigger))

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 165.0))
	assert.EqualValues(t, 1, countNotifications(t, cctObj, user.ID, models.NotificationTypeCustomTrigger))
}

func TestEvaluateReading_InactiveTrigger(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	user, device, probe := setupThresholdFixture(t, cctObj)

	inactive := false
	_, err := cctObj.Notifier.CreateTrigger(user.ID, TriggerInput{
		Name:           "Paused",
		Condition:      models.TriggerAbove,
		ThresholdValue: 100.0,
		DeviceID:       device.DeviceID,
		IsActive:       &inactive,
	})
	require.NoError(t, err)

	require.NoError(t, cctObj.Evaluator.EvaluateReading(device, probe, 150.0))
	assert.EqualValues(t, 0, countNotifications(t, cctObj, user.ID, models.NotificationTypeCustomTrigger))
}

// A batch where one reading breaches produces exactly one alert, even
// though the batch mean would breach too: only raw probe readings are
// evaluated.
func TestIngestBatch_SingleBreachSingleAlert(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, cctObj, _ := GetMockCCTWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()

	user, device, _ := setupThresholdFixture(t, cctObj)
	_, err := cctObj.Registry.RegisterProbe(device.DeviceID, RegisterProbeInput{ProbeID: "P2"})
	require.NoError(t, err)

	// average is 210, above the 200 threshold as well
	_, err = cctObj.Telemetry.IngestBatch(IngestInput{
		DeviceID: device.DeviceID,
		Readings: []ProbeReadingInput{
			{ProbeID: "P1", Temperature: 250.0},
			{ProbeID: "P2", Temperature: 170.0},
		},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, countNotifications(t, cctObj, user.ID, models.NotificationTypeTemperatureAlert))

	var row models.Notification
	err = cctObj.Db.Conn.
		Where("user_id = ? AND type = ?", user.ID, models.NotificationTypeTemperatureAlert).
		First(&row).Error
	require.NoError(t, err)
	assert.Equal(t, "P1", row.ProbeID)
}

// A failing settings lookup must propagate, not silently skip evaluation.
func TestEvaluateReading_SettingsLookupError(t *testing.T) {
	common.SetTestLoggerNop()

	// a connection without migrated tables fails the lookup with a real
	// driver error rather than a missing record
	conn, err := gorm.Open(sqlite.Open("file:eval_lookup_err?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	broken := (&CCT{Db: db.DB{Conn: conn}})
	broken.WithServices(ServiceOpts{
		Notifier: broken.GetINotifier(),
		Senders:  DefaultSenders("", ""),
	})

	ownerID := uint(1)
	device := &models.Device{DeviceID: "CCT-DEAD-BEEF", OwnerID: &ownerID}
	err = broken.evaluateReading(device, nil, 150.0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, gorm.ErrRecordNotFound)
}
