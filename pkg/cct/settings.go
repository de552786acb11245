package cct

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/models"
)

type SyncThresholds struct {
	MaxTemperature *float64 `json:"max_temperature"`
	MinTemperature *float64 `json:"min_temperature"`
}

type SyncTrigger struct {
	Name           string                  `json:"name"`
	Condition      models.TriggerCondition `json:"condition_type"`
	ThresholdValue float64                 `json:"threshold_value"`
}

type SyncData struct {
	DeviceID          string         `json:"device_id"`
	TargetTemperature *float64       `json:"target_temperature"`
	LastSync          time.Time      `json:"last_sync"`
	Thresholds        SyncThresholds `json:"thresholds"`
	CustomTriggers    []SyncTrigger  `json:"custom_triggers"`
}

func (c *CCT) syncSettings(deviceID string) (*SyncData, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategorySettings),
	)

	device, err := c.deviceByID(deviceID)
	if err != nil {
		return nil, err
	}

	data := SyncData{
		DeviceID:       deviceID,
		LastSync:       time.Now().UTC(),
		CustomTriggers: []SyncTrigger{},
	}

	target, err := c.currentTarget(deviceID)
	if err != nil {
		return nil, err
	}
	if target != nil {
		data.TargetTemperature = &target.Temperature
	}

	if device.OwnerID != nil {
		var settings models.NotificationSetting
		if err := c.Db.Conn.First(&settings, "user_id = ?", *device.OwnerID).Error; err == nil {
			data.Thresholds.MaxTemperature = settings.MaxTempThreshold
			data.Thresholds.MinTemperature = settings.MinTempThreshold

			var triggers []models.CustomTrigger
			if err := c.Db.Conn.
				Where("notification_setting_id = ? AND is_active = ? AND device_id = ?", settings.ID, true, deviceID).
				Find(&triggers).Error; err != nil {
				return nil, err
			}
			data.CustomTriggers = common.Mapper(triggers, func(t models.CustomTrigger) SyncTrigger {
				return SyncTrigger{
					Name:           t.Name,
					Condition:      t.Condition,
					ThresholdValue: t.ThresholdValue,
				}
			})
		}
	}

	now := data.LastSync
	device.LastConnected = &now
	device.IsConnected = true
	if err := c.Db.Conn.Save(device).Error; err != nil {
		return nil, err
	}

	logger.Info("Settings synced", zap.String("device_id", deviceID))
	return &data, nil
}

// setTarget appends a target-temperature row. The server receipt timestamp
// decides last-writer-wins; SetBy distinguishes a device echo from a user
// command.
func (c *CCT) setTarget(deviceID string, temperature float64, setBy models.TargetSetBy, userID *uint) (*models.TargetTemperature, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategorySettings),
	)

	if _, err := c.deviceByID(deviceID); err != nil {
		return nil, err
	}

	target := models.TargetTemperature{
		DeviceID:    deviceID,
		Temperature: temperature,
		SetBy:       setBy,
		SetByUserID: userID,
		Timestamp:   time.Now().UTC(),
	}
	if err := c.Db.Conn.Create(&target).Error; err != nil {
		return nil, err
	}

	logger.Info("Target temperature set",
		zap.String("device_id", deviceID),
		zap.Float64("temperature", temperature),
		zap.String("set_by", string(setBy)))
	return &target, nil
}

func (c *CCT) setTargetFromDevice(deviceID string, temperature float64) (*models.TargetTemperature, error) {
	return c.setTarget(deviceID, temperature, models.TargetSetByDevice, nil)
}

func (c *CCT) setTargetFromUser(userID uint, deviceID string, temperature float64) (*models.TargetTemperature, error) {
	device, err := c.deviceByID(deviceID)
	if err != nil {
		return nil, err
	}
	if device.OwnerID == nil || *device.OwnerID != userID {
		return nil, ErrUnauthorized
	}
	return c.setTarget(deviceID, temperature, models.TargetSetByUser, &userID)
}

// currentTarget returns nil without error when the device has no target yet.
func (c *CCT) currentTarget(deviceID string) (*models.TargetTemperature, error) {
	var target models.TargetTemperature
	err := c.Db.Conn.
		Where("device_id = ?", deviceID).
		Order("timestamp desc, id desc").
		First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &target, nil
}

func (c *CCT) targetHistory(deviceID string, limit int) ([]models.TargetTemperature, error) {
	if _, err := c.deviceByID(deviceID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	var targets []models.TargetTemperature
	err := c.Db.Conn.
		Where("device_id = ?", deviceID).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&targets).Error
	return targets, err
}

type ISyncImpl struct {
	cct *CCT
}

func (is *ISyncImpl) SyncSettings(deviceID string) (*SyncData, error) {
	return is.cct.syncSettings(deviceID)
}

func (is *ISyncImpl) SetTargetFromDevice(deviceID string, temperature float64) (*models.TargetTemperature, error) {
	return is.cct.setTargetFromDevice(deviceID, temperature)
}

func (is *ISyncImpl) SetTargetFromUser(userID uint, deviceID string, temperature float64) (*models.TargetTemperature, error) {
	return is.cct.setTargetFromUser(userID, deviceID, temperature)
}

func (is *ISyncImpl) CurrentTarget(deviceID string) (*models.TargetTemperature, error) {
	return is.cct.currentTarget(deviceID)
}

func (is *ISyncImpl) TargetHistory(deviceID string, limit int) ([]models.TargetTemperature, error) {
	return is.cct.targetHistory(deviceID, limit)
}

func (c *CCT) GetISync() ISync {
	return &ISyncImpl{cct: c}
}
