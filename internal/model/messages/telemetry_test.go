package messages

import (
	"errors"
	"testing"
)

func TestParseTelemetryAcceptsBothSoilKeys(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    Telemetry
	}{
		{"soil_moisture", `{"temperature":25.0,"humidity":60.0,"soil_moisture":15.0}`, Telemetry{25, 60, 15}},
		{"moisture", `{"temperature":21,"humidity":40,"moisture":70}`, Telemetry{21, 40, 70}},
		{"soil_moisture wins", `{"temperature":21,"humidity":40,"soil_moisture":33,"moisture":70}`, Telemetry{21, 40, 33}},
		{"null soil_moisture falls back", `{"temperature":21,"humidity":40,"soil_moisture":null,"moisture":70}`, Telemetry{21, 40, 70}},
		{"numeric strings", `{"temperature":"25.5","humidity":" 60 ","soil_moisture":"15"}`, Telemetry{25.5, 60, 15}},
		{"extra fields ignored", `{"temperature":1,"humidity":2,"soil_moisture":3,"device":"esp32"}`, Telemetry{1, 2, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTelemetry([]byte(tc.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestParseTelemetryRejectsIncompletePayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"no temperature", `{"humidity":60,"soil_moisture":15}`, ErrMissingField},
		{"no humidity", `{"temperature":25,"soil_moisture":15}`, ErrMissingField},
		{"no soil keys", `{"temperature":25,"humidity":60}`, ErrMissingField},
		{"null temperature", `{"temperature":null,"humidity":60,"soil_moisture":15}`, ErrMissingField},
		{"bool value", `{"temperature":true,"humidity":60,"soil_moisture":15}`, ErrInvalidField},
		{"text value", `{"temperature":"warm","humidity":60,"soil_moisture":15}`, ErrInvalidField},
		{"invalid utf8", "\xff\xfe", ErrNotUTF8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTelemetry([]byte(tc.payload))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got err %v, want %v", err, tc.wantErr)
			}
		})
	}

	for _, bad := range []string{"", "not json", "[1,2,3]", `{"temperature":`} {
		if _, err := ParseTelemetry([]byte(bad)); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestPumpCommandEncodesStringLiterals(t *testing.T) {
	if got := string(NewPumpCommand(true).Encode()); got != `{"pump_status":"true"}` {
		t.Fatalf("on command = %s", got)
	}
	if got := string(NewPumpCommand(false).Encode()); got != `{"pump_status":"false"}` {
		t.Fatalf("off command = %s", got)
	}
	c, err := ParsePumpCommand([]byte(`{"pump_status":"true"}`))
	if err != nil || !c.On() {
		t.Fatalf("parse on command: %+v %v", c, err)
	}
}
