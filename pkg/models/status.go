package models

import (
	"encoding/json"
	"time"
)

// StatusFlag names one maintenance flag on a camera.
type StatusFlag string

const (
	FlagPhotoDirty    StatusFlag = "photoDirty"
	FlagLowImages     StatusFlag = "lowImages"
	FlagBetterView    StatusFlag = "betterView"
	FlagWrongTime     StatusFlag = "wrongTime"
	FlagShutterExpiry StatusFlag = "shutterExpiry"
	FlagDeviceExpiry  StatusFlag = "deviceExpiry"
)

// AllFlags lists every flag in persisted order.
var AllFlags = []StatusFlag{
	FlagPhotoDirty, FlagLowImages, FlagBetterView,
	FlagWrongTime, FlagShutterExpiry, FlagDeviceExpiry,
}

// AutomaticFlags are derived by the health check.
var AutomaticFlags = []StatusFlag{FlagLowImages, FlagWrongTime, FlagShutterExpiry, FlagDeviceExpiry}

// ManualFlags may be toggled by a user.
var ManualFlags = []StatusFlag{FlagPhotoDirty, FlagLowImages, FlagBetterView, FlagWrongTime}

// IsManual reports whether a user may toggle f.
func (f StatusFlag) IsManual() bool {
	for _, m := range ManualFlags {
		if m == f {
			return true
		}
	}
	return false
}

// FlagState is one flag with its audit fields.
type FlagState struct {
	Active    bool
	MarkedBy  string
	MarkedAt  *time.Time
	RemovedBy string
	RemovedAt *time.Time
}

// CameraStatus maps each flag to its state. It serialises flat, as
// photoDirty, photoDirtyMarkedBy, photoDirtyMarkedAt and so on.
type CameraStatus map[StatusFlag]FlagState

// Active reports whether flag is currently set.
func (s CameraStatus) Active(flag StatusFlag) bool {
	return s[flag].Active
}

// Apply sets flag to value on behalf of actor and reports whether anything changed.
// The marked pair is written only the first time the flag is ever set; the
// removed pair is overwritten on every clear.
func (s *CameraStatus) Apply(flag StatusFlag, value bool, actor Actor, now time.Time) bool {
	if *s == nil {
		*s = CameraStatus{}
	}
	st := (*s)[flag]
	if st.Active == value {
		return false
	}
	st.Active = value
	at := now
	if value {
		if st.MarkedAt == nil {
			st.MarkedAt = &at
			st.MarkedBy = actor.Name
		}
	} else {
		st.RemovedAt = &at
		st.RemovedBy = actor.Name
	}
	(*s)[flag] = st
	return true
}

// Clone returns an independent copy of s.
func (s CameraStatus) Clone() CameraStatus {
	out := make(CameraStatus, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s CameraStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s)*5)
	for flag, st := range s {
		name := string(flag)
		out[name] = st.Active
		out[name+"MarkedBy"] = nullIfEmpty(st.MarkedBy)
		out[name+"MarkedAt"] = st.MarkedAt
		out[name+"RemovedBy"] = nullIfEmpty(st.RemovedBy)
		out[name+"RemovedAt"] = st.RemovedAt
	}
	return json.Marshal(out)
}

func (s *CameraStatus) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := CameraStatus{}
	for _, flag := range AllFlags {
		name := string(flag)
		var st FlagState
		present := false
		if v, ok := raw[name]; ok {
			present = true
			if err := json.Unmarshal(v, &st.Active); err != nil {
				return err
			}
		}
		for suffix, dst := range map[string]any{
			"MarkedBy":  &st.MarkedBy,
			"MarkedAt":  &st.MarkedAt,
			"RemovedBy": &st.RemovedBy,
			"RemovedAt": &st.RemovedAt,
		} {
			v, ok := raw[name+suffix]
			if !ok || string(v) == "null" {
				continue
			}
			present = true
			if err := json.Unmarshal(v, dst); err != nil {
				return err
			}
		}
		if present {
			out[flag] = st
		}
	}
	*s = out
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
