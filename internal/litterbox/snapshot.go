package litterbox

import "time"

// Snapshot is the decoded state of the litter box at one point in time.
type Snapshot struct {
	WorkStatus      int    `json:"work_status"`
	UpLidStatus     bool   `json:"up_lid_status"`
	DrawerStatus    bool   `json:"drawer_status"`
	FullStatus      bool   `json:"full_status"`
	LastUsage       int64  `json:"last_usage"`
	ErrorStatus     int    `json:"error_status"`
	AutoClean       bool   `json:"auto_clean"`
	DeepClean       bool   `json:"deep_clean"`
	SmallCatMode    bool   `json:"small_cat_mode"`
	LightSwitch     bool   `json:"light_switch"`
	SoftwareVersion string `json:"software_version"`
}

var workStatusLabels = []string{
	"idle",
	"cleaning",
	"cleaning_complete",
	"dumping",
	"dumping_complete",
	"resetting",
	"resetting_complete",
	"paused",
	"cat_approaching",
	"cat_entering",
}

var errorStatusLabels = []string{
	"normal",
	"motor_failure",
	"magnet_clean_abnormal",
	"magnet_idle_abnormal",
	"weight_abnormal",
	"weight_high",
}

// label returns labels[code], or the raw code when it is out of range.
func label(labels []string, code int) any {
	if code < 0 || code >= len(labels) {
		return code
	}
	return labels[code]
}

// WorkStatusLabel returns the named work status, or the raw code if unknown.
func (s Snapshot) WorkStatusLabel() any { return label(workStatusLabels, s.WorkStatus) }

// ErrorStatusLabel returns the named error status, or the raw code if unknown.
func (s Snapshot) ErrorStatusLabel() any { return label(errorStatusLabels, s.ErrorStatus) }

// LastUsageTime converts LastUsage (epoch milliseconds) to a time.
// The zero time is returned when the box has never been used.
func (s Snapshot) LastUsageTime() time.Time {
	if s.LastUsage <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastUsage).UTC()
}

// WorkStatusOptions lists the known work status labels in code order.
func WorkStatusOptions() []string { return append([]string(nil), workStatusLabels...) }

// ErrorStatusOptions lists the known error status labels in code order.
func ErrorStatusOptions() []string { return append([]string(nil), errorStatusLabels...) }
