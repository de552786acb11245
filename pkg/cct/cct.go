package cct

import (
	"time"

	"probecloud.xyz/cct-backend/pkg/db"
	"probecloud.xyz/cct-backend/pkg/models"
)

type IIdentity interface {
	RegisterUser(input RegisterUserInput) (*models.User, error)
	Authenticate(username, password string) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
	UpdateUser(userID uint, input UpdateUserInput) (*models.User, error)
	RegisterDevice(input RegisterDeviceInput) (*models.Device, error)
	GenerateDeviceID() (string, error)
	AuthorizeDevice(deviceID, apiKey string) (*models.Device, error)
}

type IRegistry interface {
	RegisterProbe(deviceID string, input RegisterProbeInput) (*models.Probe, error)
	ListProbes(deviceID string) ([]models.Probe, error)
	SetDeviceConnection(deviceID string, connected bool) (*models.Device, error)
	SetProbeConnection(deviceID, probeID string, connected bool) (*models.Probe, error)
	AssociateDevice(userID uint, deviceID string) (*models.Device, error)
	ListUserDevices(userID uint) ([]models.Device, error)
	RenameUserDevice(userID uint, deviceID, name string) (*models.Device, error)
}

type ITelemetry interface {
	IngestBatch(input IngestInput) (*IngestResult, error)
	History(deviceID string, query HistoryQuery) ([]models.TemperatureReading, error)
	CurrentAverage(deviceID string) (float64, error)
}

type IEvaluator interface {
	EvaluateReading(device *models.Device, probe *models.Probe, temperature float64) error
}

type INotifier interface {
	Dispatch(input DispatchInput) (DeliveryResult, error)
	Notifications(userID uint, limit int, unreadOnly bool) ([]models.Notification, error)
	MarkRead(userID, notificationID uint) (*models.Notification, error)
	MarkAllRead(userID uint) (int64, error)
	NotificationSettings(userID uint) (*models.NotificationSetting, error)
	UpdateNotificationSettings(userID uint, input SettingsUpdateInput) (*models.NotificationSetting, error)
	CreateTrigger(userID uint, input TriggerInput) (*models.CustomTrigger, error)
	ListTriggers(userID uint) ([]models.CustomTrigger, error)
	UpdateTrigger(userID, triggerID uint, input TriggerUpdateInput) (*models.CustomTrigger, error)
	DeleteTrigger(userID, triggerID uint) error
}

type ISync interface {
	SyncSettings(deviceID string) (*SyncData, error)
	SetTargetFromDevice(deviceID string, temperature float64) (*models.TargetTemperature, error)
	SetTargetFromUser(userID uint, deviceID string, temperature float64) (*models.TargetTemperature, error)
	CurrentTarget(deviceID string) (*models.TargetTemperature, error)
	TargetHistory(deviceID string, limit int) ([]models.TargetTemperature, error)
}

type CCT struct {
	Db db.DB

	Identity  IIdentity
	Registry  IRegistry
	Telemetry ITelemetry
	Evaluator IEvaluator
	Notifier  INotifier
	Sync      ISync

	// Senders holds the external transport per channel. A channel enabled in
	// a user's settings but absent here counts as a delivery failure.
	Senders        map[models.Channel]ChannelSender
	ChannelTimeout time.Duration
}

type ServiceOpts struct {
	Identity  IIdentity
	Registry  IRegistry
	Telemetry ITelemetry
	Evaluator IEvaluator
	Notifier  INotifier
	Sync      ISync

	Senders        map[models.Channel]ChannelSender
	ChannelTimeout time.Duration
}

func (c *CCT) WithServices(opts ServiceOpts) *CCT {
	if opts.Identity != nil {
		c.Identity = opts.Identity
	}
	if opts.Registry != nil {
		c.Registry = opts.Registry
	}
	if opts.Telemetry != nil {
		c.Telemetry = opts.Telemetry
	}
	if opts.Evaluator != nil {
		c.Evaluator = opts.Evaluator
	}
	if opts.Notifier != nil {
		c.Notifier = opts.Notifier
	}
	if opts.Sync != nil {
		c.Sync = opts.Sync
	}
	if opts.Senders != nil {
		c.Senders = opts.Senders
	}
	if opts.ChannelTimeout != 0 {
		c.ChannelTimeout = opts.ChannelTimeout
	}
	return c
}
