package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"probecloud.xyz/cct-backend/pkg/auth"
	"probecloud.xyz/cct-backend/pkg/cct"
	"probecloud.xyz/cct-backend/pkg/models"
)

const (
	apiKeyHeader = "X-API-Key"

	contextKeyDevice = "device"
	contextKeyUser   = "user"
)

type RestfulServer struct {
	Server           *gin.Engine
	Cct              *cct.CCT
	RateLimiterStore *cct.RateLimiterStore
	JWTSecret        []byte
	TokenTTL         time.Duration
}

func (rs *RestfulServer) GetLimiter(deviceID string) *rate.Limiter {
	if rs.RateLimiterStore == nil {
		return nil
	} else {
		return rs.RateLimiterStore.GetLimiter(deviceID)
	}
}

func (rs *RestfulServer) CheckDeviceLimiter(deviceID string) bool {
	limiter := rs.GetLimiter(deviceID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (rs *RestfulServer) SetLimiter(deviceID string, deviceRate float64, deviceBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(deviceID, rate.Limit(deviceRate), deviceBurst)
}

// writeError maps the service error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is a 500.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cct.ErrValidation),
		errors.Is(err, cct.ErrDuplicateIdentity):
		status = http.StatusBadRequest
	case errors.Is(err, cct.ErrUnauthorized),
		errors.Is(err, cct.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, cct.ErrUnknownDevice),
		errors.Is(err, cct.ErrUnknownUser),
		errors.Is(err, cct.ErrUnknownProbe),
		errors.Is(err, cct.ErrUnknownTrigger),
		errors.Is(err, cct.ErrUnknownNotification),
		errors.Is(err, cct.ErrNoReadings):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// RequireDeviceKey authorizes the path device against the X-API-Key header.
func (rs *RestfulServer) RequireDeviceKey(c *gin.Context) {
	deviceID := c.Param("device_id")

	device, err := rs.Cct.Identity.AuthorizeDevice(deviceID, c.GetHeader(apiKeyHeader))
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}

	c.Set(contextKeyDevice, device)
	c.Next()
}

// RequireUserToken authorizes the bearer token and loads the active user.
func (rs *RestfulServer) RequireUserToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		writeError(c, cct.ErrUnauthorized)
		c.Abort()
		return
	}

	username, err := auth.ParseToken(rs.JWTSecret, token)
	if err != nil {
		writeError(c, cct.ErrUnauthorized)
		c.Abort()
		return
	}

	user, err := rs.Cct.Identity.GetUserByUsername(username)
	if err != nil || !user.IsActive {
		writeError(c, cct.ErrUnauthorized)
		c.Abort()
		return
	}

	c.Set(contextKeyUser, user)
	c.Next()
}

func (rs *RestfulServer) currentUser(c *gin.Context) *models.User {
	return c.MustGet(contextKeyUser).(*models.User)
}

func (rs *RestfulServer) Setup() {
	rs.Server.GET("/healthz", rs.HealthCheck)

	devices := rs.Server.Group("/devices")
	{
		devices.POST("/register", rs.RegisterDevice)
		devices.POST("/generate-id", rs.GenerateDeviceID)

		scoped := devices.Group("/:device_id", rs.RequireDeviceKey)
		{
			scoped.POST("/probes/register", rs.RegisterProbe)
			scoped.GET("/probes", rs.ListProbes)
			scoped.PUT("/connection", rs.UpdateDeviceConnection)
			scoped.PUT("/probes/:probe_id/connection", rs.UpdateProbeConnection)
			scoped.POST("/limiter", rs.PostLimiter)
		}
	}

	temperature := rs.Server.Group("/temperature")
	{
		temperature.POST("/update", rs.PostTemperatureUpdate)
		temperature.POST("/target", rs.PostDeviceTarget)

		scoped := temperature.Group("/:device_id", rs.RequireDeviceKey)
		{
			scoped.GET("/history", rs.GetTemperatureHistory)
			scoped.GET("/target", rs.GetCurrentTarget)
			scoped.GET("/average", rs.GetCurrentAverage)
		}
	}

	settings := rs.Server.Group("/settings")
	{
		scoped := settings.Group("/:device_id", rs.RequireDeviceKey)
		{
			scoped.GET("/sync", rs.SyncSettings)
			scoped.GET("/history", rs.GetTargetHistory)
		}

		settings.POST("/user/:device_id/target", rs.RequireUserToken, rs.PostUserTarget)
	}

	users := rs.Server.Group("/users")
	{
		users.POST("/register", rs.RegisterUser)
		users.POST("/token", rs.IssueUserToken)

		me := users.Group("/me", rs.RequireUserToken)
		{
			me.GET("", rs.GetProfile)
			me.PUT("", rs.UpdateProfile)
			me.POST("/devices/:device_id", rs.ClaimDevice)
			me.GET("/devices", rs.ListUserDevices)
			me.PATCH("/devices/:device_id", rs.PatchUserDevice)
			me.GET("/notification-settings", rs.GetNotificationSettings)
			me.PUT("/notification-settings", rs.UpdateNotificationSettings)
			me.POST("/triggers", rs.CreateTrigger)
			me.GET("/triggers", rs.ListTriggers)
			me.PUT("/triggers/:trigger_id", rs.UpdateTrigger)
			me.DELETE("/triggers/:trigger_id", rs.DeleteTrigger)
		}
	}

	notifications := rs.Server.Group("/notifications", rs.RequireUserToken)
	{
		notifications.GET("", rs.ListNotifications)
		notifications.PUT("/:notification_id/read", rs.MarkNotificationRead)
		notifications.PUT("/read-all", rs.MarkAllNotificationsRead)
		notifications.POST("/test", rs.SendTestNotification)
	}
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
