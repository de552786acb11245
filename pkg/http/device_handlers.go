package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"

	"probecloud.xyz/cct-backend/pkg/cct"
)

type DeviceRegisterRequest struct {
	DeviceID        string `json:"device_id"`
	Name            string `json:"name"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
}

var deviceRegisterRequestSchema = z.Struct(z.Shape{
	"DeviceID":        z.String().Required(),
	"Name":            z.String(),
	"Model":           z.String(),
	"FirmwareVersion": z.String(),
})

// RegisterDevice is the only place the API key ever leaves the server.
func (rs *RestfulServer) RegisterDevice(c *gin.Context) {
	var req DeviceRegisterRequest
	if err := deviceRegisterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	device, err := rs.Cct.Identity.RegisterDevice(cct.RegisterDeviceInput{
		DeviceID:        req.DeviceID,
		Name:            req.Name,
		Model:           req.Model,
		FirmwareVersion: req.FirmwareVersion,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": device.DeviceID,
		"api_key":   device.APIKey,
	})
}

func (rs *RestfulServer) GenerateDeviceID(c *gin.Context) {
	id, err := rs.Cct.Identity.GenerateDeviceID()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": id})
}

type ProbeRegisterRequest struct {
	ProbeID string `json:"probe_id"`
	Name    string `json:"name"`
	Model   string `json:"model"`
}

var probeRegisterRequestSchema = z.Struct(z.Shape{
	"ProbeID": z.String().Required(),
	"Name":    z.String(),
	"Model":   z.String(),
})

func (rs *RestfulServer) RegisterProbe(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	var req ProbeRegisterRequest
	if err := probeRegisterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	probe, err := rs.Cct.Registry.RegisterProbe(deviceID, cct.RegisterProbeInput{
		ProbeID: req.ProbeID,
		Name:    req.Name,
		Model:   req.Model,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, probe)
}

func (rs *RestfulServer) ListProbes(c *gin.Context) {
	deviceID := c.Param("device_id")

	probes, err := rs.Cct.Registry.ListProbes(deviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, probes)
}

type ConnectionRequest struct {
	Connected *bool `json:"connected"`
}

func (rs *RestfulServer) UpdateDeviceConnection(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	var req ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Connected == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connected is required"})
		return
	}

	device, err := rs.Cct.Registry.SetDeviceConnection(deviceID, *req.Connected)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (rs *RestfulServer) UpdateProbeConnection(c *gin.Context) {
	deviceID := c.Param("device_id")
	probeID := c.Param("probe_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	var req ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Connected == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connected is required"})
		return
	}

	probe, err := rs.Cct.Registry.SetProbeConnection(deviceID, probeID, *req.Connected)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, probe)
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"rate":  z.Float64().Required(),
	"burst": z.Int().Required(),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req LimiterRequest
	if err := limiterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	rs.SetLimiter(deviceID, req.Rate, req.Burst)

	c.Status(http.StatusOK)
}

type ProbeReadingRequest struct {
	ProbeID     string  `json:"probe_id" binding:"required"`
	Temperature float64 `json:"temperature"`
}

type TemperatureUpdateRequest struct {
	DeviceID           string                `json:"device_id" binding:"required"`
	Readings           []ProbeReadingRequest `json:"readings"`
	AverageTemperature *float64              `json:"average_temperature"`
	Timestamp          *time.Time            `json:"timestamp"`
}

// PostTemperatureUpdate carries the device id in the body, so device
// authorization happens here instead of in route middleware.
func (rs *RestfulServer) PostTemperatureUpdate(c *gin.Context) {
	var req TemperatureUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := rs.Cct.Identity.AuthorizeDevice(req.DeviceID, c.GetHeader(apiKeyHeader)); err != nil {
		writeError(c, err)
		return
	}

	if !rs.CheckDeviceLimiter(req.DeviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	input := cct.IngestInput{
		DeviceID:           req.DeviceID,
		AverageTemperature: req.AverageTemperature,
		Timestamp:          req.Timestamp,
	}
	for _, r := range req.Readings {
		input.Readings = append(input.Readings, cct.ProbeReadingInput{
			ProbeID:     r.ProbeID,
			Temperature: r.Temperature,
		})
	}

	result, err := rs.Cct.Telemetry.IngestBatch(input)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stored":             result.Stored,
		"target_temperature": result.TargetTemperature,
	})
}

type DeviceTargetRequest struct {
	DeviceID          string  `json:"device_id"`
	TargetTemperature float64 `json:"target_temperature"`
}

var deviceTargetRequestSchema = z.Struct(z.Shape{
	"DeviceID":          z.String().Required(),
	"TargetTemperature": z.Float64().Required(),
})

func (rs *RestfulServer) PostDeviceTarget(c *gin.Context) {
	var req DeviceTargetRequest
	if err := deviceTargetRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if _, err := rs.Cct.Identity.AuthorizeDevice(req.DeviceID, c.GetHeader(apiKeyHeader)); err != nil {
		writeError(c, err)
		return
	}

	if !rs.CheckDeviceLimiter(req.DeviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	target, err := rs.Cct.Sync.SetTargetFromDevice(req.DeviceID, req.TargetTemperature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

func (rs *RestfulServer) GetTemperatureHistory(c *gin.Context) {
	deviceID := c.Param("device_id")

	query := cct.HistoryQuery{
		ProbeID: c.Query("probe_id"),
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		query.Limit = limit
	}
	if isAverageStr := c.Query("is_average"); isAverageStr != "" {
		isAverage, err := strconv.ParseBool(isAverageStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_average must be a boolean"})
			return
		}
		query.IsAverage = &isAverage
	}

	readings, err := rs.Cct.Telemetry.History(deviceID, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (rs *RestfulServer) GetCurrentTarget(c *gin.Context) {
	deviceID := c.Param("device_id")

	target, err := rs.Cct.Sync.CurrentTarget(deviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": target})
}

func (rs *RestfulServer) GetCurrentAverage(c *gin.Context) {
	deviceID := c.Param("device_id")

	average, err := rs.Cct.Telemetry.CurrentAverage(deviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"average_temperature": average})
}

func (rs *RestfulServer) SyncSettings(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	data, err := rs.Cct.Sync.SyncSettings(deviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (rs *RestfulServer) GetTargetHistory(c *gin.Context) {
	deviceID := c.Param("device_id")

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
	}

	targets, err := rs.Cct.Sync.TargetHistory(deviceID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, targets)
}
