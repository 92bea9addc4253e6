package geolocation

import (
	"encoding/json"
	"time"
)

// Location is a raw provider reading.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Time      time.Time

	Altitude    float64
	HasAltitude bool
	Heading     float64
	HasHeading  bool
	Speed       float64
	HasSpeed    bool
}

// Fix is the wire form of a Location.
type Fix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  float64  `json:"accuracy"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// NewFix converts a provider reading to its wire form.
func NewFix(loc Location) Fix {
	fix := Fix{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Accuracy:  loc.Accuracy,
		Timestamp: loc.Time.UnixMilli(),
	}
	if loc.HasAltitude {
		alt := loc.Altitude
		fix.Altitude = &alt
	}
	if loc.HasHeading {
		hdg := loc.Heading
		fix.Heading = &hdg
	}
	if loc.HasSpeed {
		spd := loc.Speed
		fix.Speed = &spd
	}
	return fix
}

// encodeFix serializes a reading. Non-finite coordinates fail here.
func encodeFix(loc Location) (json.RawMessage, Fix, error) {
	fix := NewFix(loc)
	data, err := json.Marshal(fix)
	if err != nil {
		return nil, Fix{}, err
	}
	return data, fix, nil
}
