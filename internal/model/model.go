package model

import (
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	Reading           = entities.Reading
	IrrigationSession = entities.IrrigationSession
	PumpState         = entities.PumpState
	Telemetry         = messages.Telemetry
	PumpCommand       = messages.PumpCommand
)

const (
	PumpOn  = entities.PumpOn
	PumpOff = entities.PumpOff
)
