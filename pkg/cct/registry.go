package cct

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/models"
)

// MaxProbesPerDevice caps how many probes one device may register.
const MaxProbesPerDevice = 4

type RegisterProbeInput struct {
	ProbeID string
	Name    string
	Model   string
}

func (c *CCT) registerProbe(deviceID string, input RegisterProbeInput) (*models.Probe, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryRegistry),
	)

	if input.ProbeID == "" {
		return nil, fmt.Errorf("%w: probe_id must not be empty", ErrValidation)
	}

	if _, err := c.deviceByID(deviceID); err != nil {
		return nil, err
	}

	var count int64
	if err := c.Db.Conn.Model(&models.Probe{}).
		Where("device_id = ? AND probe_id = ?", deviceID, input.ProbeID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: probe %s already registered for device %s", ErrDuplicateIdentity, input.ProbeID, deviceID)
	}

	if err := c.Db.Conn.Model(&models.Probe{}).Where("device_id = ?", deviceID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count >= MaxProbesPerDevice {
		return nil, fmt.Errorf("%w: device already has maximum number of probes (%d)", ErrValidation, MaxProbesPerDevice)
	}

	now := time.Now().UTC()
	probe := models.Probe{
		ProbeID:       input.ProbeID,
		DeviceID:      deviceID,
		Name:          input.Name,
		Model:         input.Model,
		IsConnected:   true,
		LastConnected: &now,
	}
	if err := c.Db.Conn.Create(&probe).Error; err != nil {
		return nil, err
	}

	logger.Info("Registered probe",
		zap.String("device_id", deviceID), zap.String("probe_id", probe.ProbeID))
	return &probe, nil
}

func (c *CCT) listProbes(deviceID string) ([]models.Probe, error) {
	if _, err := c.deviceByID(deviceID); err != nil {
		return nil, err
	}
	var probes []models.Probe
	err := c.Db.Conn.Where("device_id = ?", deviceID).Order("probe_id").Find(&probes).Error
	return probes, err
}

func (c *CCT) setDeviceConnection(deviceID string, connected bool) (*models.Device, error) {
	device, err := c.deviceByID(deviceID)
	if err != nil {
		return nil, err
	}

	lost := device.IsConnected && !connected
	device.IsConnected = connected
	if connected {
		now := time.Now().UTC()
		device.LastConnected = &now
	}
	if err := c.Db.Conn.Save(device).Error; err != nil {
		return nil, err
	}

	if lost {
		c.notifyConnectionLost(device, nil)
	}
	return device, nil
}

func (c *CCT) setProbeConnection(deviceID, probeID string, connected bool) (*models.Probe, error) {
	device, err := c.deviceByID(deviceID)
	if err != nil {
		return nil, err
	}

	probe, err := c.probeByID(deviceID, probeID)
	if err != nil {
		return nil, err
	}

	lost := probe.IsConnected && !connected
	probe.IsConnected = connected
	if connected {
		now := time.Now().UTC()
		probe.LastConnected = &now
	}
	if err := c.Db.Conn.Save(probe).Error; err != nil {
		return nil, err
	}

	if lost {
		c.notifyConnectionLost(device, probe)
	}
	return probe, nil
}

// notifyConnectionLost is best effort: a failed dispatch never fails the
// connection update itself.
func (c *CCT) notifyConnectionLost(device *models.Device, probe *models.Probe) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryRegistry),
	)

	if device.OwnerID == nil || c.Notifier == nil {
		return
	}

	var settings models.NotificationSetting
	if err := c.Db.Conn.First(&settings, "user_id = ?", *device.OwnerID).Error; err != nil {
		return
	}
	if !settings.ConnectionAlerts {
		return
	}

	deviceName := device.Name
	if deviceName == "" {
		deviceName = device.DeviceID
	}

	input := DispatchInput{
		UserID:   *device.OwnerID,
		Type:     models.NotificationTypeConnectionLost,
		DeviceID: device.DeviceID,
	}
	if probe != nil {
		probeName := probe.Name
		if probeName == "" {
			probeName = probe.ProbeID
		}
		input.ProbeID = probe.ProbeID
		input.Title = "Probe Connection Lost"
		input.Message = fmt.Sprintf("Connection to probe %s on device %s has been lost.", probeName, deviceName)
	} else {
		input.Title = "Device Connection Lost"
		input.Message = fmt.Sprintf("Connection to device %s has been lost.", deviceName)
	}

	if _, err := c.Notifier.Dispatch(input); err != nil {
		logger.Warn("Connection lost dispatch failed",
			zap.String("device_id", device.DeviceID), zap.Error(err))
	}
}

func (c *CCT) associateDevice(userID uint, deviceID string) (*models.Device, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryRegistry),
	)

	var user models.User
	if err := c.Db.Conn.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	device, err := c.deviceByID(deviceID)
	if err != nil {
		return nil, err
	}

	// Idempotent for the same user; a different user takes over ownership.
	if device.OwnerID != nil && *device.OwnerID == userID {
		return device, nil
	}
	device.OwnerID = &userID
	if err := c.Db.Conn.Save(device).Error; err != nil {
		return nil, err
	}

	logger.Info("Associated device with user",
		zap.String("device_id", deviceID), zap.Uint("user_id", userID))
	return device, nil
}

func (c *CCT) listUserDevices(userID uint) ([]models.Device, error) {
	var devices []models.Device
	err := c.Db.Conn.Where("owner_id = ?", userID).Order("device_id").Find(&devices).Error
	return devices, err
}

func (c *CCT) renameUserDevice(userID uint, deviceID, name string) (*models.Device, error) {
	device, err := c.deviceByID(deviceID)
	if err != nil {
		return nil, err
	}
	if device.OwnerID == nil || *device.OwnerID != userID {
		return nil, ErrUnauthorized
	}
	device.Name = name
	if err := c.Db.Conn.Save(device).Error; err != nil {
		return nil, err
	}
	return device, nil
}

func (c *CCT) deviceByID(deviceID string) (*models.Device, error) {
	var device models.Device
	if err := c.Db.Conn.First(&device, "device_id = ?", deviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownDevice
		}
		return nil, err
	}
	return &device, nil
}

func (c *CCT) probeByID(deviceID, probeID string) (*models.Probe, error) {
	var probe models.Probe
	if err := c.Db.Conn.First(&probe, "device_id = ? AND probe_id = ?", deviceID, probeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownProbe
		}
		return nil, err
	}
	return &probe, nil
}

type IRegistryImpl struct {
	cct *CCT
}

func (ir *IRegistryImpl) RegisterProbe(deviceID string, input RegisterProbeInput) (*models.Probe, error) {
	return ir.cct.registerProbe(deviceID, input)
}

func (ir *IRegistryImpl) ListProbes(deviceID string) ([]models.Probe, error) {
	return ir.cct.listProbes(deviceID)
}

func (ir *IRegistryImpl) SetDeviceConnection(deviceID string, connected bool) (*models.Device, error) {
	return ir.cct.setDeviceConnection(deviceID, connected)
}

func (ir *IRegistryImpl) SetProbeConnection(deviceID, probeID string, connected bool) (*models.Probe, error) {
	return ir.cct.setProbeConnection(deviceID, probeID, connected)
}

func (ir *IRegistryImpl) AssociateDevice(userID uint, deviceID string) (*models.Device, error) {
	return ir.cct.associateDevice(userID, deviceID)
}

func (ir *IRegistryImpl) ListUserDevices(userID uint) ([]models.Device, error) {
	return ir.cct.listUserDevices(userID)
}

func (ir *IRegistryImpl) RenameUserDevice(userID uint, deviceID, name string) (*models.Device, error) {
	return ir.cct.renameUserDevice(userID, deviceID, name)
}

func (c *CCT) GetIRegistry() IRegistry {
	return &IRegistryImpl{cct: c}
}
