package entities

// PumpState indicates whether the irrigation pump is running.
type PumpState string

const (
	PumpOff PumpState = "off"
	PumpOn  PumpState = "on"
)

func PumpStateOf(on bool) PumpState {
	if on {
		return PumpOn
	}
	return PumpOff
}
