package cct

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/models"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

type ProbeReadingInput struct {
	ProbeID     string
	Temperature float64
}

type IngestInput struct {
	DeviceID           string
	Readings           []ProbeReadingInput
	AverageTemperature *float64
	Timestamp          *time.Time
}

type IngestResult struct {
	Stored            int
	TargetTemperature *float64
}

type HistoryQuery struct {
	ProbeID   string
	Limit     int
	IsAverage *bool
}

func (c *CCT) ingestBatch(input IngestInput) (*IngestResult, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryTelemetry),
	)

	device, err := c.deviceByID(input.DeviceID)
	if err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	if input.Timestamp != nil {
		ts = input.Timestamp.UTC()
	}

	device.IsConnected = true
	device.LastConnected = &ts
	if err := c.Db.Conn.Save(device).Error; err != nil {
		return nil, err
	}

	stored := 0
	for _, r := range input.Readings {
		probe, err := c.probeByID(input.DeviceID, r.ProbeID)
		if err != nil {
			return nil, err
		}

		probe.IsConnected = true
		probe.LastConnected = &ts
		if err := c.Db.Conn.Save(probe).Error; err != nil {
			return nil, err
		}

		reading := models.TemperatureReading{
			DeviceID:    input.DeviceID,
			ProbeID:     r.ProbeID,
			Temperature: r.Temperature,
			Timestamp:   ts,
		}
		if err := c.Db.Conn.Create(&reading).Error; err != nil {
			return nil, err
		}
		stored++

		if c.Evaluator == nil {
			return nil, fmt.Errorf("evaluator service not available")
		}
		if err := c.Evaluator.EvaluateReading(device, probe, r.Temperature); err != nil {
			logger.Warn("Trigger evaluation failed",
				zap.String("device_id", input.DeviceID),
				zap.String("probe_id", r.ProbeID),
				zap.Error(err))
		}
	}

	// Only a device-supplied average gets an IsAverage row. The server never
	// synthesizes one; currentAverage computes the mean on demand.
	if input.AverageTemperature != nil {
		average := models.TemperatureReading{
			DeviceID:    input.DeviceID,
			Temperature: *input.AverageTemperature,
			IsAverage:   true,
			Timestamp:   ts,
		}
		if err := c.Db.Conn.Create(&average).Error; err != nil {
			return nil, err
		}
		stored++
	}

	logger.Info("Ingested readings",
		zap.String("device_id", input.DeviceID), zap.Int("stored", stored))

	result := IngestResult{Stored: stored}
	target, err := c.currentTarget(input.DeviceID)
	if err != nil {
		return nil, err
	}
	if target != nil {
		result.TargetTemperature = &target.Temperature
	}
	return &result, nil
}

func (c *CCT) history(deviceID string, query HistoryQuery) ([]models.TemperatureReading, error) {
	if _, err := c.deviceByID(deviceID); err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	q := c.Db.Conn.Where("device_id = ?", deviceID)
	if query.ProbeID != "" {
		q = q.Where("probe_id = ?", query.ProbeID)
	}
	if query.IsAverage != nil {
		q = q.Where("is_average = ?", *query.IsAverage)
	}

	var readings []models.TemperatureReading
	err := q.Order("timestamp desc, id desc").Limit(limit).Find(&readings).Error
	return readings, err
}

// currentAverage is the mean of each connected probe's latest raw reading.
func (c *CCT) currentAverage(deviceID string) (float64, error) {
	if _, err := c.deviceByID(deviceID); err != nil {
		return 0, err
	}

	var probes []models.Probe
	if err := c.Db.Conn.Where("device_id = ? AND is_connected = ?", deviceID, true).Find(&probes).Error; err != nil {
		return 0, err
	}

	values := []float64{}
	for _, probe := range probes {
		var reading models.TemperatureReading
		err := c.Db.Conn.
			Where("device_id = ? AND probe_id = ? AND is_average = ?", deviceID, probe.ProbeID, false).
			Order("timestamp desc, id desc").
			First(&reading).Error
		if err != nil {
			continue
		}
		values = append(values, reading.Temperature)
	}

	if len(values) == 0 {
		return 0, ErrNoReadings
	}

	sum := common.Reducer(values, func(acc, v float64) float64 { return acc + v }, 0.0)
	return sum / float64(len(values)), nil
}

type ITelemetryImpl struct {
	cct *CCT
}

func (it *ITelemetryImpl) IngestBatch(input IngestInput) (*IngestResult, error) {
	return it.cct.ingestBatch(input)
}

func (it *ITelemetryImpl) History(deviceID string, query HistoryQuery) ([]models.TemperatureReading, error) {
	return it.cct.history(deviceID, query)
}

func (it *ITelemetryImpl) CurrentAverage(deviceID string) (float64, error) {
	return it.cct.currentAverage(deviceID)
}

func (c *CCT) GetITelemetry() ITelemetry {
	return &ITelemetryImpl{cct: c}
}
