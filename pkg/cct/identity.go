package cct

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"probecloud.xyz/cct-backend/pkg/auth"
	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/models"
)

type RegisterUserInput struct {
	Username    string
	Email       string
	PhoneNumber string
	Password    string
}

type UpdateUserInput struct {
	Username    *string
	Email       *string
	PhoneNumber *string
	Password    *string
}

type RegisterDeviceInput struct {
	DeviceID        string
	Name            string
	Model           string
	FirmwareVersion string
}

// asDuplicateIdentity converts a unique-index violation into
// ErrDuplicateIdentity. Inserts racing past the existence pre-checks still
// hit the index, and must not surface as a bare driver error.
func asDuplicateIdentity(err error, detail string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, detail)
	}
	return err
}

func (c *CCT) registerUser(input RegisterUserInput) (*models.User, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryIdentity),
	)

	var existing models.User
	err := c.Db.Conn.
		Where("username = ? OR email = ?", input.Username, input.Email).
		First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: username or email already registered", ErrDuplicateIdentity)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     input.Username,
		Email:        input.Email,
		PhoneNumber:  input.PhoneNumber,
		PasswordHash: hash,
		IsActive:     true,
	}

	err = c.Db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		settings := models.NotificationSetting{
			UserID:           user.ID,
			EmailEnabled:     true,
			SMSEnabled:       input.PhoneNumber != "",
			PushEnabled:      true,
			ConnectionAlerts: true,
		}
		return tx.Create(&settings).Error
	})
	if err != nil {
		return nil, asDuplicateIdentity(err, "username or email already registered")
	}

	logger.Info("Registered user", zap.String("username", user.Username))
	return &user, nil
}

func (c *CCT) authenticate(username, password string) (*models.User, error) {
	var user models.User
	if err := c.Db.Conn.First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (c *CCT) getUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := c.Db.Conn.First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	return &user, nil
}

func (c *CCT) updateUser(userID uint, input UpdateUserInput) (*models.User, error) {
	var user models.User
	if err := c.Db.Conn.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	if input.Username != nil && *input.Username != user.Username {
		var count int64
		if err := c.Db.Conn.Model(&models.User{}).Where("username = ?", *input.Username).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, fmt.Errorf("%w: username already taken", ErrDuplicateIdentity)
		}
		user.Username = *input.Username
	}

	if input.Email != nil && *input.Email != user.Email {
		var count int64
		if err := c.Db.Conn.Model(&models.User{}).Where("email = ?", *input.Email).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, fmt.Errorf("%w: email already registered", ErrDuplicateIdentity)
		}
		user.Email = *input.Email
	}

	if input.PhoneNumber != nil {
		user.PhoneNumber = *input.PhoneNumber
	}

	if input.Password != nil {
		hash, err := auth.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := c.Db.Conn.Save(&user).Error; err != nil {
		return nil, asDuplicateIdentity(err, "username or email already registered")
	}
	return &user, nil
}

func (c *CCT) registerDevice(input RegisterDeviceInput) (*models.Device, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryIdentity),
	)

	if input.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id must not be empty", ErrValidation)
	}

	var count int64
	if err := c.Db.Conn.Model(&models.Device{}).Where("device_id = ?", input.DeviceID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: device %s already registered", ErrDuplicateIdentity, input.DeviceID)
	}

	key, err := auth.NewAPIKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	device := models.Device{
		DeviceID:        input.DeviceID,
		APIKey:          key,
		Name:            input.Name,
		Model:           input.Model,
		FirmwareVersion: input.FirmwareVersion,
		IsConnected:     true,
		LastConnected:   &now,
	}
	if err := c.Db.Conn.Create(&device).Error; err != nil {
		return nil, asDuplicateIdentity(err, fmt.Sprintf("device %s already registered", input.DeviceID))
	}

	logger.Info("Registered device", zap.String("device_id", device.DeviceID))
	return &device, nil
}

func (c *CCT) generateDeviceID() (string, error) {
	for {
		id, err := auth.NewDeviceID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := c.Db.Conn.Model(&models.Device{}).Where("device_id = ?", id).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return id, nil
		}
	}
}

func (c *CCT) authorizeDevice(deviceID, apiKey string) (*models.Device, error) {
	var device models.Device
	if err := c.Db.Conn.First(&device, "device_id = ?", deviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownDevice
		}
		return nil, err
	}
	if apiKey == "" || subtle.ConstantTimeCompare([]byte(device.APIKey), []byte(apiKey)) != 1 {
		return nil, ErrUnauthorized
	}
	return &device, nil
}

type IIdentityImpl struct {
	cct *CCT
}

func (ii *IIdentityImpl) RegisterUser(input RegisterUserInput) (*models.User, error) {
	return ii.cct.registerUser(input)
}

func (ii *IIdentityImpl) Authenticate(username, password string) (*models.User, error) {
	return ii.cct.authenticate(username, password)
}

func (ii *IIdentityImpl) GetUserByUsername(username string) (*models.User, error) {
	return ii.cct.getUserByUsername(username)
}

func (ii *IIdentityImpl) UpdateUser(userID uint, input UpdateUserInput) (*models.User, error) {
	return ii.cct.updateUser(userID, input)
}

func (ii *IIdentityImpl) RegisterDevice(input RegisterDeviceInput) (*models.Device, error) {
	return ii.cct.registerDevice(input)
}

func (ii *IIdentityImpl) GenerateDeviceID() (string, error) {
	return ii.cct.generateDeviceID()
}

func (ii *IIdentityImpl) AuthorizeDevice(deviceID, apiKey string) (*models.Device, error) {
	return ii.cct.authorizeDevice(deviceID, apiKey)
}

func (c *CCT) GetIIdentity() IIdentity {
	return &IIdentityImpl{cct: c}
}
