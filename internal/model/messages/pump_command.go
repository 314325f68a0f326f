package messages

import "encoding/json"

// PumpCommand is published on the control topic. The actuator firmware
// expects the status as the strings "true"/"false", not JSON booleans.
type PumpCommand struct {
	PumpStatus string `json:"pump_status"`
}

func NewPumpCommand(on bool) PumpCommand {
	if on {
		return PumpCommand{PumpStatus: "true"}
	}
	return PumpCommand{PumpStatus: "false"}
}

func (c PumpCommand) On() bool {
	return c.PumpStatus == "true"
}

func (c PumpCommand) Encode() []byte {
	b, _ := json.Marshal(c)
	return b
}

// ParsePumpCommand decodes a control-topic payload.
func ParsePumpCommand(payload []byte) (PumpCommand, error) {
	var c PumpCommand
	if err := json.Unmarshal(payload, &c); err != nil {
		return PumpCommand{}, err
	}
	return c, nil
}
