package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"

	"probecloud.xyz/cct-backend/pkg/auth"
	"probecloud.xyz/cct-backend/pkg/cct"
	"probecloud.xyz/cct-backend/pkg/models"
)

type UserRegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

var userRegisterRequestSchema = z.Struct(z.Shape{
	"Username":    z.String().Required(),
	"Email":       z.String().Email().Required(),
	"PhoneNumber": z.String(),
	"Password":    z.String().Min(8).Required(),
})

func (rs *RestfulServer) RegisterUser(c *gin.Context) {
	var req UserRegisterRequest
	if err := userRegisterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	user, err := rs.Cct.Identity.RegisterUser(cct.RegisterUserInput{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var tokenRequestSchema = z.Struct(z.Shape{
	"Username": z.String().Required(),
	"Password": z.String().Required(),
})

func (rs *RestfulServer) IssueUserToken(c *gin.Context) {
	var req TokenRequest
	if err := tokenRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	user, err := rs.Cct.Identity.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := auth.IssueToken(rs.JWTSecret, user.Username, rs.TokenTTL)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (rs *RestfulServer) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, rs.currentUser(c))
}

type ProfileUpdateRequest struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Password    *string `json:"password"`
}

func (rs *RestfulServer) UpdateProfile(c *gin.Context) {
	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := rs.Cct.Identity.UpdateUser(rs.currentUser(c).ID, cct.UpdateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (rs *RestfulServer) ClaimDevice(c *gin.Context) {
	device, err := rs.Cct.Registry.AssociateDevice(rs.currentUser(c).ID, c.Param("device_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (rs *RestfulServer) ListUserDevices(c *gin.Context) {
	devices, err := rs.Cct.Registry.ListUserDevices(rs.currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

type DevicePatchRequest struct {
	Name string `json:"name"`
}

var devicePatchRequestSchema = z.Struct(z.Shape{
	"Name": z.String().Required(),
})

func (rs *RestfulServer) PatchUserDevice(c *gin.Context) {
	var req DevicePatchRequest
	if err := devicePatchRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	device, err := rs.Cct.Registry.RenameUserDevice(rs.currentUser(c).ID, c.Param("device_id"), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (rs *RestfulServer) GetNotificationSettings(c *gin.Context) {
	settings, err := rs.Cct.Notifier.NotificationSettings(rs.currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type NotificationSettingsRequest struct {
	EmailEnabled     *bool    `json:"email_enabled"`
	SMSEnabled       *bool    `json:"sms_enabled"`
	PushEnabled      *bool    `json:"push_enabled"`
	MaxTempThreshold *float64 `json:"max_temp_threshold"`
	MinTempThreshold *float64 `json:"min_temp_threshold"`
	ConnectionAlerts *bool    `json:"connection_alerts"`
}

func (rs *RestfulServer) UpdateNotificationSettings(c *gin.Context) {
	var req NotificationSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := rs.Cct.Notifier.UpdateNotificationSettings(rs.currentUser(c).ID, cct.SettingsUpdateInput{
		EmailEnabled:     req.EmailEnabled,
		SMSEnabled:       req.SMSEnabled,
		PushEnabled:      req.PushEnabled,
		MaxTempThreshold: req.MaxTempThreshold,
		MinTempThreshold: req.MinTempThreshold,
		ConnectionAlerts: req.ConnectionAlerts,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type TriggerCreateRequest struct {
	Name           string   `json:"name" binding:"required"`
	Condition      string   `json:"condition_type" binding:"required"`
	ThresholdValue *float64 `json:"threshold_value" binding:"required"`
	DeviceID       string   `json:"device_id"`
	ProbeID        string   `json:"probe_id"`
	IsActive       *bool    `json:"is_active"`
}

func (rs *RestfulServer) CreateTrigger(c *gin.Context) {
	var req TriggerCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trigger, err := rs.Cct.Notifier.CreateTrigger(rs.currentUser(c).ID, cct.TriggerInput{
		Name:           req.Name,
		Condition:      models.TriggerCondition(req.Condition),
		ThresholdValue: *req.ThresholdValue,
		DeviceID:       req.DeviceID,
		ProbeID:        req.ProbeID,
		IsActive:       req.IsActive,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trigger)
}

func (rs *RestfulServer) ListTriggers(c *gin.Context) {
	triggers, err := rs.Cct.Notifier.ListTriggers(rs.currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, triggers)
}

func triggerIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("trigger_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trigger_id must be an integer"})
		return 0, false
	}
	return uint(id), true
}

type TriggerUpdateRequest struct {
	Name           *string  `json:"name"`
	Condition      *string  `json:"condition_type"`
	ThresholdValue *float64 `json:"threshold_value"`
	IsActive       *bool    `json:"is_active"`
}

func (rs *RestfulServer) UpdateTrigger(c *gin.Context) {
	triggerID, ok := triggerIDParam(c)
	if !ok {
		return
	}

	var req TriggerUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := cct.TriggerUpdateInput{
		Name:           req.Name,
		ThresholdValue: req.ThresholdValue,
		IsActive:       req.IsActive,
	}
	if req.Condition != nil {
		condition := models.TriggerCondition(*req.Condition)
		input.Condition = &condition
	}

	trigger, err := rs.Cct.Notifier.UpdateTrigger(rs.currentUser(c).ID, triggerID, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trigger)
}

func (rs *RestfulServer) DeleteTrigger(c *gin.Context) {
	triggerID, ok := triggerIDParam(c)
	if !ok {
		return
	}

	if err := rs.Cct.Notifier.DeleteTrigger(rs.currentUser(c).ID, triggerID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type UserTargetRequest struct {
	TargetTemperature float64 `json:"target_temperature"`
}

var userTargetRequestSchema = z.Struct(z.Shape{
	"TargetTemperature": z.Float64().Required(),
})

func (rs *RestfulServer) PostUserTarget(c *gin.Context) {
	var req UserTargetRequest
	if err := userTargetRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	target, err := rs.Cct.Sync.SetTargetFromUser(rs.currentUser(c).ID, c.Param("device_id"), req.TargetTemperature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

func (rs *RestfulServer) ListNotifications(c *gin.Context) {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
	}

	unreadOnly := false
	if unreadStr := c.Query("unread_only"); unreadStr != "" {
		var err error
		unreadOnly, err = strconv.ParseBool(unreadStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unread_only must be a boolean"})
			return
		}
	}

	rows, err := rs.Cct.Notifier.Notifications(rs.currentUser(c).ID, limit, unreadOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (rs *RestfulServer) MarkNotificationRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("notification_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "notification_id must be an integer"})
		return
	}

	row, err := rs.Cct.Notifier.MarkRead(rs.currentUser(c).ID, uint(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (rs *RestfulServer) MarkAllNotificationsRead(c *gin.Context) {
	affected, err := rs.Cct.Notifier.MarkAllRead(rs.currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": affected})
}

func (rs *RestfulServer) SendTestNotification(c *gin.Context) {
	user := rs.currentUser(c)

	result, err := rs.Cct.Notifier.Dispatch(cct.DispatchInput{
		UserID:  user.ID,
		Type:    models.NotificationTypeTest,
		Title:   "Test Notification",
		Message: "This is a test notification from your CCT backend.",
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery": result})
}
