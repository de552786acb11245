package cct

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/models"
)

// DefaultChannelTimeout bounds a single external delivery attempt.
const DefaultChannelTimeout = 5 * time.Second

// DeliveryResult maps each attempted channel to whether delivery succeeded.
// A failed channel never fails the enclosing request.
type DeliveryResult map[models.Channel]bool

type DispatchInput struct {
	UserID   uint
	Type     models.NotificationType
	Title    string
	Message  string
	DeviceID string
	ProbeID  string
}

type SettingsUpdateInput struct {
	EmailEnabled     *bool
	SMSEnabled       *bool
	PushEnabled      *bool
	MaxTempThreshold *float64
	MinTempThreshold *float64
	ConnectionAlerts *bool
}

type TriggerInput struct {
	Name           string
	Condition      models.TriggerCondition
	ThresholdValue float64
	DeviceID       string
	ProbeID        string
	IsActive       *bool
}

type TriggerUpdateInput struct {
	Name           *string
	Condition      *models.TriggerCondition
	ThresholdValue *float64
	IsActive       *bool
}

func (c *CCT) dispatch(input DispatchInput) (DeliveryResult, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryNotify),
	)

	var user models.User
	if err := c.Db.Conn.First(&user, input.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	settings, err := c.notificationSettings(input.UserID)
	if err != nil {
		return nil, err
	}

	enabled := []models.Channel{}
	if settings.EmailEnabled {
		enabled = append(enabled, models.ChannelEmail)
	}
	if settings.SMSEnabled {
		enabled = append(enabled, models.ChannelSMS)
	}
	if settings.PushEnabled {
		enabled = append(enabled, models.ChannelPush)
	}

	timeout := c.ChannelTimeout
	if timeout == 0 {
		timeout = DefaultChannelTimeout
	}

	result := DeliveryResult{}
	persist := func(channel models.Channel) error {
		row := models.Notification{
			UserID:   input.UserID,
			Type:     input.Type,
			Channel:  channel,
			Title:    input.Title,
			Message:  input.Message,
			DeviceID: input.DeviceID,
			ProbeID:  input.ProbeID,
		}
		return c.Db.Conn.Create(&row).Error
	}

	for _, channel := range enabled {
		sender, ok := c.Senders[channel]
		if !ok {
			result[channel] = false
			logger.Warn("No sender configured for channel", zap.String("channel", string(channel)))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			sendErr := sender.Send(ctx, &user, input.Title, input.Message)
			cancel()
			result[channel] = sendErr == nil
			if sendErr != nil {
				logger.Warn("Channel delivery failed",
					zap.String("channel", string(channel)),
					zap.Uint("user_id", input.UserID),
					zap.Error(sendErr))
			}
		}

		// The in-app history is authoritative even when external delivery
		// failed.
		if err := persist(channel); err != nil {
			return result, err
		}
	}

	if len(enabled) == 0 {
		if err := persist(models.ChannelApp); err != nil {
			return result, err
		}
	}

	logger.Info("Notification dispatched",
		zap.Uint("user_id", input.UserID),
		zap.String("type", string(input.Type)),
		zap.Reflect("delivery", result))
	return result, nil
}

func (c *CCT) notifications(userID uint, limit int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	q := c.Db.Conn.Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var rows []models.Notification
	err := q.Order("created_at desc, id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// markRead is idempotent: marking an already-read notification succeeds.
func (c *CCT) markRead(userID, notificationID uint) (*models.Notification, error) {
	var row models.Notification
	if err := c.Db.Conn.First(&row, "id = ? AND user_id = ?", notificationID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownNotification
		}
		return nil, err
	}
	if !row.IsRead {
		row.IsRead = true
		if err := c.Db.Conn.Save(&row).Error; err != nil {
			return nil, err
		}
	}
	return &row, nil
}

func (c *CCT) markAllRead(userID uint) (int64, error) {
	res := c.Db.Conn.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (c *CCT) notificationSettings(userID uint) (*models.NotificationSetting, error) {
	var settings models.NotificationSetting
	err := c.Db.Conn.First(&settings, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// default row, created lazily for users that predate the settings table
		settings = models.NotificationSetting{
			UserID:           userID,
			EmailEnabled:     true,
			PushEnabled:      true,
			ConnectionAlerts: true,
		}
		if err := c.Db.Conn.Create(&settings).Error; err != nil {
			return nil, err
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (c *CCT) updateNotificationSettings(userID uint, input SettingsUpdateInput) (*models.NotificationSetting, error) {
	settings, err := c.notificationSettings(userID)
	if err != nil {
		return nil, err
	}

	if input.EmailEnabled != nil {
		settings.EmailEnabled = *input.EmailEnabled
	}
	if input.SMSEnabled != nil {
		settings.SMSEnabled = *input.SMSEnabled
	}
	if input.PushEnabled != nil {
		settings.PushEnabled = *input.PushEnabled
	}
	if input.MaxTempThreshold != nil {
		settings.MaxTempThreshold = input.MaxTempThreshold
	}
	if input.MinTempThreshold != nil {
		settings.MinTempThreshold = input.MinTempThreshold
	}
	if input.ConnectionAlerts != nil {
		settings.ConnectionAlerts = *input.ConnectionAlerts
	}

	if err := c.Db.Conn.Save(settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

func (c *CCT) createTrigger(userID uint, input TriggerInput) (*models.CustomTrigger, error) {
	settings, err := c.notificationSettings(userID)
	if err != nil {
		return nil, err
	}

	switch input.Condition {
	case models.TriggerAbove, models.TriggerBelow, models.TriggerEqual:
	default:
		return nil, fmt.Errorf("%w: unknown condition %q", ErrValidation, input.Condition)
	}

	if input.ProbeID != "" && input.DeviceID == "" {
		return nil, fmt.Errorf("%w: probe scope requires device scope", ErrValidation)
	}

	if input.DeviceID != "" {
		device, err := c.deviceByID(input.DeviceID)
		if err != nil {
			return nil, err
		}
		if device.OwnerID == nil || *device.OwnerID != userID {
			return nil, ErrUnauthorized
		}
		if input.ProbeID != "" {
			if _, err := c.probeByID(input.DeviceID, input.ProbeID); err != nil {
				return nil, err
			}
		}
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	trigger := models.CustomTrigger{
		NotificationSettingID: settings.ID,
		Name:                  input.Name,
		Condition:             input.Condition,
		ThresholdValue:        input.ThresholdValue,
		DeviceID:              input.DeviceID,
		ProbeID:               input.ProbeID,
		IsActive:              active,
	}
	if err := c.Db.Conn.Create(&trigger).Error; err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (c *CCT) listTriggers(userID uint) ([]models.CustomTrigger, error) {
	settings, err := c.notificationSettings(userID)
	if err != nil {
		return nil, err
	}
	var triggers []models.CustomTrigger
	err = c.Db.Conn.Where("notification_setting_id = ?", settings.ID).Order("id").Find(&triggers).Error
	return triggers, err
}

func (c *CCT) triggerByID(userID, triggerID uint) (*models.CustomTrigger, error) {
	settings, err := c.notificationSettings(userID)
	if err != nil {
		return nil, err
	}
	var trigger models.CustomTrigger
	if err := c.Db.Conn.First(&trigger, "id = ? AND notification_setting_id = ?", triggerID, settings.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTrigger
		}
		return nil, err
	}
	return &trigger, nil
}

func (c *CCT) updateTrigger(userID, triggerID uint, input TriggerUpdateInput) (*models.CustomTrigger, error) {
	trigger, err := c.triggerByID(userID, triggerID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		trigger.Name = *input.Name
	}
	if input.Condition != nil {
		switch *input.Condition {
		case models.TriggerAbove, models.TriggerBelow, models.TriggerEqual:
		default:
			return nil, fmt.Errorf("%w: unknown condition %q", ErrValidation, *input.Condition)
		}
		trigger.Condition = *input.Condition
	}
	if input.ThresholdValue != nil {
		trigger.ThresholdValue = *input.ThresholdValue
	}
	if input.IsActive != nil {
		trigger.IsActive = *input.IsActive
	}

	if err := c.Db.Conn.Save(trigger).Error; err != nil {
		return nil, err
	}
	return trigger, nil
}

func (c *CCT) deleteTrigger(userID, triggerID uint) error {
	trigger, err := c.triggerByID(userID, triggerID)
	if err != nil {
		return err
	}
	return c.Db.Conn.Delete(trigger).Error
}

type INotifierImpl struct {
	cct *CCT
}

func (in *INotifierImpl) Dispatch(input DispatchInput) (DeliveryResult, error) {
	return in.cct.dispatch(input)
}

func (in *INotifierImpl) Notifications(userID uint, limit int, unreadOnly bool) ([]models.Notification, error) {
	return in.cct.notifications(userID, limit, unreadOnly)
}

func (in *INotifierImpl) MarkRead(userID, notificationID uint) (*models.Notification, error) {
	return in.cct.markRead(userID, notificationID)
}

func (in *INotifierImpl) MarkAllRead(userID uint) (int64, error) {
	return in.cct.markAllRead(userID)
}

func (in *INotifierImpl) NotificationSettings(userID uint) (*models.NotificationSetting, error) {
	return in.cct.notificationSettings(userID)
}

func (in *INotifierImpl) UpdateNotificationSettings(userID uint, input SettingsUpdateInput) (*models.NotificationSetting, error) {
	return in.cct.updateNotificationSettings(userID, input)
}

func (in *INotifierImpl) CreateTrigger(userID uint, input TriggerInput) (*models.CustomTrigger, error) {
	return in.cct.createTrigger(userID, input)
}

func (in *INotifierImpl) ListTriggers(userID uint) ([]models.CustomTrigger, error) {
	return in.cct.listTriggers(userID)
}

func (in *INotifierImpl) UpdateTrigger(userID, triggerID uint, input TriggerUpdateInput) (*models.CustomTrigger, error) {
	return in.cct.updateTrigger(userID, triggerID, input)
}

func (in *INotifierImpl) DeleteTrigger(userID, triggerID uint) error {
	return in.cct.deleteTrigger(userID, triggerID)
}

func (c *CCT) GetINotifier() INotifier {
	return &INotifierImpl{cct: c}
}
