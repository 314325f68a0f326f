package sensor_simulator

import (
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

// ====== Tunables ======
const (
	// gainPerMin: +0.6 points of soil moisture per minute while the pump is on.
	gainPerMin = 0.6

	// seed values used on the first tick.
	defaultMoisture    = 30.0
	defaultTemperature = 24.0
	defaultHumidity    = 55.0

	// daily swing around the base temperature, in °C.
	tempAmplitude = 6.0
)

// DataGenerator keeps temperature, humidity and soil moisture and evolves
// them over wall-clock time. Moisture decays while the pump is off and
// rises while it is on.
type DataGenerator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	now         func() time.Time
	seeded      bool
	last        time.Time
	moisture    float64 // [0..100]
	decayPerMin float64
	pumpOn      bool
}

// NewDataGenerator creates a generator with the given moisture decay (points
// per minute while OFF). seed makes the noise reproducible.
func NewDataGenerator(decayPerMin float64, seed int64) *DataGenerator {
	return &DataGenerator{
		rng:         rand.New(rand.NewSource(seed)),
		now:         time.Now,
		decayPerMin: math.Max(0, decayPerMin),
	}
}

// SetPump records the last command received from the controller.
func (g *DataGenerator) SetPump(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance(g.now().UTC())
	g.pumpOn = on
}

func (g *DataGenerator) PumpOn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pumpOn
}

// advance integrates moisture up to now under the current pump state.
func (g *DataGenerator) advance(now time.Time) {
	if !g.seeded {
		g.moisture = defaultMoisture
		g.last = now
		g.seeded = true
		return
	}
	dtMin := now.Sub(g.last).Minutes()
	if dtMin < 0 {
		dtMin = 0
	}
	if g.pumpOn {
		g.moisture = clamp(g.moisture+gainPerMin*dtMin, 0, 100)
	} else {
		g.moisture = clamp(g.moisture-g.decayPerMin*dtMin, 0, 100)
	}
	g.last = now
}

// Next updates the internal state and returns a sample.
func (g *DataGenerator) Next() model.Telemetry {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	g.advance(now)

	// temperature peaks mid-afternoon; humidity moves the other way
	hour := float64(now.Hour()) + float64(now.Minute())/60
	phase := math.Sin((hour - 9) / 24 * 2 * math.Pi)
	temp := defaultTemperature + tempAmplitude*phase + g.rng.NormFloat64()*0.3
	hum := clamp(defaultHumidity-2*tempAmplitude*phase+g.rng.NormFloat64(), 0, 100)

	return model.Telemetry{
		Temperature:  round2(temp),
		Humidity:     round2(hum),
		SoilMoisture: round2(g.moisture),
	}
}

// EncodeTelemetry renders a sample with soil moisture under moistureKey
// ("soil_moisture" or the legacy "moisture").
func EncodeTelemetry(t model.Telemetry, moistureKey string) ([]byte, error) {
	if moistureKey == "" {
		moistureKey = messages.KeySoilMoisture
	}
	return json.Marshal(map[string]float64{
		messages.KeyTemperature: t.Temperature,
		messages.KeyHumidity:    t.Humidity,
		moistureKey:             t.SoilMoisture,
	})
}

// ===== Helpers =====

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
