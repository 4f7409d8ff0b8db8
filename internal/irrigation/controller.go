// Package irrigation decides the pump state from soil moisture readings and
// holds the operator's manual watering override.
package irrigation

import (
	"fmt"
	"math"
	"sync"

	"leafscan/internal/logger"
)

// Trigger records who decided the pump state.
type Trigger string

const (
	TriggerAuto   Trigger = "AUTO"
	TriggerManual Trigger = "MANUAL"
)

// Mode is the override state reported back to the web client.
type Mode string

const (
	ModeAuto     Mode = "AUTO"
	ModeManualOn Mode = "MANUAL_ON"
)

type Thresholds struct {
	Dry float64
	Wet float64
}

// Decision is the outcome of one moisture reading.
type Decision struct {
	PumpOn  bool
	Trigger Trigger
}

// Controller owns the manual override. All methods are safe for concurrent use.
type Controller struct {
	mu         sync.Mutex
	thresholds Thresholds
	manual     bool
	logger     logger.Logger
}

func NewController(log logger.Logger, thresholds Thresholds) (*Controller, error) {
	if thresholds.Dry > thresholds.Wet {
		return nil, fmt.Errorf("dry threshold %.1f is above wet threshold %.1f", thresholds.Dry, thresholds.Wet)
	}
	return &Controller{thresholds: thresholds, logger: log}, nil
}

// Evaluate applies one reading. Below the dry threshold the pump runs; above
// the wet threshold it stops and any manual override is cleared. Between the
// two the pump stays off unless the override is active.
func (c *Controller) Evaluate(moisture float64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Decision{Trigger: TriggerAuto}
	switch {
	case moisture < c.thresholds.Dry:
		d.PumpOn = true
	case moisture > c.thresholds.Wet:
		if c.manual {
			c.manual = false
			c.logger.Info("PumpController", "soil is wet, manual override cleared", map[string]interface{}{
				"moisture": moisture,
			})
		}
	}

	if c.manual {
		d.PumpOn = true
		d.Trigger = TriggerManual
	}

	c.logger.Debug("PumpController", "moisture evaluated", map[string]interface{}{
		"moisture": moisture,
		"pump_on":  d.PumpOn,
		"trigger":  string(d.Trigger),
	})
	return d
}

// SetManual switches the override on or off and returns the resulting mode.
func (c *Controller) SetManual(on bool) Mode {
	c.mu.Lock()
	c.manual = on
	c.mu.Unlock()

	mode := ModeAuto
	if on {
		mode = ModeManualOn
	}
	c.logger.Info("PumpController", "manual mode changed", map[string]interface{}{
		"mode": string(mode),
	})
	return mode
}

func (c *Controller) Manual() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// TankLevel is the water column derived from an ultrasonic distance reading.
type TankLevel struct {
	LevelCm float64
	Percent float64
}

// ComputeTankLevel converts the sensor-to-surface distance of a tank with the
// given height. The level never goes below zero.
func ComputeTankLevel(heightCm, distanceCm float64) TankLevel {
	level := math.Max(0, heightCm-distanceCm)
	return TankLevel{
		LevelCm: level,
		Percent: level / heightCm * 100,
	}
}
