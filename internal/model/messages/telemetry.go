package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Payload keys accepted on the telemetry topic. Some publishers send soil
// moisture as "moisture"; it is only read when "soil_moisture" is absent
// or null.
const (
	KeyTemperature        = "temperature"
	KeyHumidity           = "humidity"
	KeySoilMoisture       = "soil_moisture"
	KeySoilMoistureLegacy = "moisture"
)

var (
	ErrNotUTF8      = errors.New("telemetry: payload is not valid UTF-8")
	ErrMissingField = errors.New("telemetry: missing required field")
	ErrInvalidField = errors.New("telemetry: field is not a finite number")
)

// Telemetry is a validated sensor sample as received from the broker.
type Telemetry struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soil_moisture"`
}

func (t Telemetry) Features() []float64 {
	return []float64{t.Temperature, t.Humidity, t.SoilMoisture}
}

// ParseTelemetry decodes a telemetry payload. Unknown fields are ignored.
func ParseTelemetry(payload []byte) (Telemetry, error) {
	if !utf8.Valid(payload) {
		return Telemetry{}, ErrNotUTF8
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Telemetry{}, fmt.Errorf("telemetry: invalid JSON: %w", err)
	}

	var (
		t   Telemetry
		err error
	)
	if t.Temperature, err = requireNumber(raw, KeyTemperature); err != nil {
		return Telemetry{}, err
	}
	if t.Humidity, err = requireNumber(raw, KeyHumidity); err != nil {
		return Telemetry{}, err
	}
	soilKey := KeySoilMoisture
	if !present(raw, soilKey) {
		soilKey = KeySoilMoistureLegacy
	}
	if t.SoilMoisture, err = requireNumber(raw, soilKey); err != nil {
		if errors.Is(err, ErrMissingField) {
			return Telemetry{}, fmt.Errorf("%w: %s or %s", ErrMissingField, KeySoilMoisture, KeySoilMoistureLegacy)
		}
		return Telemetry{}, err
	}
	return t, nil
}

func present(raw map[string]json.RawMessage, key string) bool {
	v, ok := raw[key]
	return ok && strings.TrimSpace(string(v)) != "null"
}

func requireNumber(raw map[string]json.RawMessage, key string) (float64, error) {
	if !present(raw, key) {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	f, err := toF64(raw[key])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidField, key)
	}
	return f, nil
}

// toF64 accepts JSON numbers and numeric strings.
func toF64(v json.RawMessage) (float64, error) {
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.Float64()
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, fmt.Errorf("unsupported value %s", v)
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
