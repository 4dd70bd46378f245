package models

import "time"

// TopologyStats summarizes device health for dashboard rendering.
type TopologyStats struct {
	TotalDevices   int `json:"total_devices"`
	OnlineDevices  int `json:"online_devices"`
	OfflineDevices int `json:"offline_devices"`
	WarningDevices int `json:"warning_devices"`
}

// TopologySnapshot is the full device/link view served to dashboards.
type TopologySnapshot struct {
	Devices     []*Device     `json:"devices"`
	Links       []*Link       `json:"links"`
	Stats       TopologyStats `json:"statistics"`
	GeneratedAt time.Time     `json:"generated_at"`
}
