package models

import "time"

type NotificationType string

const (
	NotificationTypeTemperatureAlert NotificationType = "temperature_alert"
	NotificationTypeCustomTrigger    NotificationType = "custom_trigger"
	NotificationTypeConnectionLost   NotificationType = "connection_lost"
	NotificationTypeTest             NotificationType = "test"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelApp   Channel = "app"
)

type TriggerCondition string

const (
	TriggerAbove TriggerCondition = "above"
	TriggerBelow TriggerCondition = "below"
	TriggerEqual TriggerCondition = "equal"
)

type TargetSetBy string

const (
	TargetSetByDevice TargetSetBy = "device"
	TargetSetByUser   TargetSetBy = "user"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	Email        string `gorm:"uniqueIndex"`
	PhoneNumber  string
	PasswordHash string `json:"-"`
	IsActive     bool   `gorm:"default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Devices       []Device       `gorm:"foreignKey:OwnerID"`
	Notifications []Notification `gorm:"foreignKey:UserID"`
}

type Device struct {
	ID              uint   `gorm:"primaryKey"`
	DeviceID        string `gorm:"uniqueIndex"`
	APIKey          string `gorm:"uniqueIndex" json:"-"`
	Name            string
	Model           string
	FirmwareVersion string
	IsConnected     bool
	LastConnected   *time.Time
	OwnerID         *uint `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Probes   []Probe              `gorm:"foreignKey:DeviceID;references:DeviceID"`
	Readings []TemperatureReading `gorm:"foreignKey:DeviceID;references:DeviceID"`
	Targets  []TargetTemperature  `gorm:"foreignKey:DeviceID;references:DeviceID"`
}

type Probe struct {
	ID            uint   `gorm:"primaryKey"`
	ProbeID       string `gorm:"index:idx_device_probe,unique"`
	DeviceID      string `gorm:"index:idx_device_probe,unique"`
	Name          string
	Model         string
	IsConnected   bool
	LastConnected *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TemperatureReading rows are append-only. ProbeID is empty for device-level
// rows, which includes every IsAverage row.
type TemperatureReading struct {
	ID          uint   `gorm:"primaryKey"`
	DeviceID    string `gorm:"index"`
	ProbeID     string `gorm:"index"`
	Temperature float64
	IsAverage   bool
	Timestamp   time.Time `gorm:"index"`
}

// TargetTemperature history is retained; the current value is the latest row
// by timestamp (id breaks ties).
type TargetTemperature struct {
	ID          uint   `gorm:"primaryKey"`
	DeviceID    string `gorm:"index"`
	Temperature float64
	SetBy       TargetSetBy `gorm:"type:varchar(10);check:set_by IN ('device','user')"`
	SetByUserID *uint
	Timestamp   time.Time `gorm:"index"`
}

type NotificationSetting struct {
	ID               uint `gorm:"primaryKey"`
	UserID           uint `gorm:"uniqueIndex"`
	EmailEnabled     bool `gorm:"default:true"`
	SMSEnabled       bool
	PushEnabled      bool `gorm:"default:true"`
	MaxTempThreshold *float64
	MinTempThreshold *float64
	ConnectionAlerts bool `gorm:"default:true"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	CustomTriggers []CustomTrigger `gorm:"foreignKey:NotificationSettingID"`
}

// CustomTrigger device/probe scope uses the external ids; empty means
// unscoped. Probe scope requires device scope.
type CustomTrigger struct {
	ID                    uint `gorm:"primaryKey"`
	NotificationSettingID uint `gorm:"index"`
	Name                  string
	Condition             TriggerCondition `gorm:"type:varchar(10);check:condition IN ('above','below','equal')"`
	ThresholdValue        float64
	DeviceID              string
	ProbeID               string
	IsActive              bool `gorm:"default:true"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Notification struct {
	ID        uint             `gorm:"primaryKey"`
	UserID    uint             `gorm:"index"`
	Type      NotificationType `gorm:"type:varchar(30)"`
	Channel   Channel          `gorm:"type:varchar(10)"`
	Title     string
	Message   string
	DeviceID  string
	ProbeID   string
	IsRead    bool
	CreatedAt time.Time
}
