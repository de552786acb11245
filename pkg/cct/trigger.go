package cct

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/models"
)

// evaluateReading runs the owner's global thresholds and active custom
// triggers against one raw reading. Triggers are independent; one firing
// never suppresses another, and repeated breaches fire repeatedly (no
// debounce window).
func (c *CCT) evaluateReading(device *models.Device, probe *models.Probe, temperature float64) error {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryTrigger),
	)

	if device.OwnerID == nil {
		// unclaimed device, nobody to notify
		return nil
	}
	if c.Notifier == nil {
		return fmt.Errorf("notifier service not available")
	}

	var settings models.NotificationSetting
	if err := c.Db.Conn.First(&settings, "user_id = ?", *device.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// owner without settings, nothing to evaluate against
			return nil
		}
		return err
	}

	deviceName := device.Name
	if deviceName == "" {
		deviceName = device.DeviceID
	}
	probeName := ""
	if probe != nil && probe.Name != "" {
		probeName = fmt.Sprintf(" (%s)", probe.Name)
	}
	probeID := ""
	if probe != nil {
		probeID = probe.ProbeID
	}

	dispatch := func(nType models.NotificationType, title, message string) {
		result, err := c.Notifier.Dispatch(DispatchInput{
			UserID:   *device.OwnerID,
			Type:     nType,
			Title:    title,
			Message:  message,
			DeviceID: device.DeviceID,
			ProbeID:  probeID,
		})
		if err != nil {
			logger.Warn("Dispatch failed", zap.String("device_id", device.DeviceID), zap.Error(err))
			return
		}
		logger.Info("Trigger fired",
			zap.String("device_id", device.DeviceID),
			zap.String("title", title),
			zap.Reflect("delivery", result))
	}

	if settings.MaxTempThreshold != nil && temperature > *settings.MaxTempThreshold {
		dispatch(
			models.NotificationTypeTemperatureAlert,
			"High Temperature Alert",
			fmt.Sprintf("Temperature for %s%s has exceeded the maximum threshold. Current temperature: %.1f (Threshold: %.1f)",
				deviceName, probeName, temperature, *settings.MaxTempThreshold),
		)
	}

	if settings.MinTempThreshold != nil && temperature < *settings.MinTempThreshold {
		dispatch(
			models.NotificationTypeTemperatureAlert,
			"Low Temperature Alert",
			fmt.Sprintf("Temperature for %s%s has fallen below the minimum threshold. Current temperature: %.1f (Threshold: %.1f)",
				deviceName, probeName, temperature, *settings.MinTempThreshold),
		)
	}

	var triggers []models.CustomTrigger
	if err := c.Db.Conn.
		Where("notification_setting_id = ? AND is_active = ?", settings.ID, true).
		Find(&triggers).Error; err != nil {
		return err
	}

	for _, trigger := range triggers {
		if trigger.DeviceID != "" && trigger.DeviceID != device.DeviceID {
			continue
		}
		if trigger.ProbeID != "" && (probe == nil || trigger.ProbeID != probe.ProbeID) {
			continue
		}

		// "equal" is an exact float comparison, no tolerance band.
		fired := false
		switch trigger.Condition {
		case models.TriggerAbove:
			fired = temperature > trigger.ThresholdValue
		case models.TriggerBelow:
			fired = temperature < trigger.ThresholdValue
		case models.TriggerEqual:
			fired = temperature == trigger.ThresholdValue
		}
		if !fired {
			continue
		}

		dispatch(
			models.NotificationTypeCustomTrigger,
			fmt.Sprintf("Custom Temperature Alert: %s", trigger.Name),
			fmt.Sprintf("Temperature for %s%s has triggered a custom alert. Current temperature: %.1f (Trigger: %s %.1f)",
				deviceName, probeName, temperature, trigger.Condition, trigger.ThresholdValue),
		)
	}

	return nil
}

type IEvaluatorImpl struct {
	cct *CCT
}

func (ie *IEvaluatorImpl) EvaluateReading(device *models.Device, probe *models.Probe, temperature float64) error {
	return ie.cct.evaluateReading(device, probe, temperature)
}

func (c *CCT) GetIEvaluator() IEvaluator {
	return &IEvaluatorImpl{cct: c}
}
