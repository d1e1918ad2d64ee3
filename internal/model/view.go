package model

import (
	"encoding/json"
	"strings"
	"time"
)

type ViewMode string

const (
	ViewCard  ViewMode = "card"
	ViewTable ViewMode = "table"
)

type TimeZoneMode string

const (
	TimeZoneDevice   TimeZoneMode = "device"
	TimeZoneSchedule TimeZoneMode = "schedule"
)

// Auto-refresh interval defaults, in minutes.
const (
	DefaultAutoReloadMinutes = 10
	MinAutoReloadMinutes     = 1
)

// ViewParams is the display configuration. It is passed by value and
// persisted as one blob whenever it is changed.
type ViewParams struct {
	ViewMode      ViewMode     `json:"viewMode"`
	ShowTimeRange bool         `json:"showTimeRange"`
	ShowDuration  bool         `json:"showDuration"`
	TimeZoneMode  TimeZoneMode `json:"timezoneMode"`
	// AutoReloadMinutes nil disables auto-refresh.
	AutoReloadMinutes *int `json:"autoReloadMinutes"`
}

func DefaultViewParams() ViewParams {
	mins := DefaultAutoReloadMinutes
	return ViewParams{
		ViewMode:          ViewTable,
		ShowTimeRange:     true,
		ShowDuration:      false,
		TimeZoneMode:      TimeZoneSchedule,
		AutoReloadMinutes: &mins,
	}
}

// DecodeViewParams parses a stored blob leniently: unknown values fall back
// per field, and an unreadable blob yields the defaults.
func DecodeViewParams(data []byte) ViewParams {
	if len(data) == 0 {
		return DefaultViewParams()
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return DefaultViewParams()
	}

	str := func(k string) string {
		var s string
		_ = json.Unmarshal(raw[k], &s)
		return s
	}
	boolean := func(k string) (bool, bool) {
		var b bool
		if err := json.Unmarshal(raw[k], &b); err != nil {
			return false, false
		}
		return b, true
	}

	out := DefaultViewParams()
	if str("viewMode") == string(ViewCard) {
		out.ViewMode = ViewCard
	} else {
		out.ViewMode = ViewTable
	}
	if b, ok := boolean("showTimeRange"); ok {
		out.ShowTimeRange = b
	}
	if b, ok := boolean("showDuration"); ok {
		out.ShowDuration = b
	}
	if str("timezoneMode") == string(TimeZoneDevice) {
		out.TimeZoneMode = TimeZoneDevice
	}
	if v, ok := raw["autoReloadMinutes"]; ok {
		if strings.TrimSpace(string(v)) == "null" {
			out.AutoReloadMinutes = nil
		} else {
			var n float64
			// Fractions below the floor would truncate to 0, which reads
			// as "off" nowhere else; such values keep the default.
			if err := json.Unmarshal(v, &n); err == nil && n >= MinAutoReloadMinutes {
				mins := int(n)
				out.AutoReloadMinutes = &mins
			}
		}
	}
	return out
}

// DisplayLocation is the zone session times are shown in: the schedule's
// zone in schedule mode (device zone when the feed names none), else the
// device zone.
func (v ViewParams) DisplayLocation(meta ConferenceMeta) *time.Location {
	if v.TimeZoneMode == TimeZoneDevice {
		return time.Local
	}
	return meta.Location(time.Local)
}

// Encode serializes the params for storage.
func (v ViewParams) Encode() ([]byte, error) {
	return json.Marshal(v)
}

// Filters narrows a session list. Empty fields (or "ALL") do not constrain.
type Filters struct {
	Track     string `json:"track,omitempty"`
	Day       string `json:"day,omitempty"`
	Room      string `json:"room,omitempty"`
	Type      string `json:"type,omitempty"`
	Language  string `json:"language,omitempty"`
	Query     string `json:"q,omitempty"`
	LikedOnly bool   `json:"likedOnly,omitempty"`
}

// FilterAll is accepted as an explicit "no constraint" value.
const FilterAll = "ALL"
