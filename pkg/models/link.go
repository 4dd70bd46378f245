package models

import "time"

// LinkStatus is the operational state of an edge.
type LinkStatus string

const (
	LinkUp   LinkStatus = "up"
	LinkDown LinkStatus = "down"
)

// LinkTypeFiber is the default physical medium for FTTH edges.
const LinkTypeFiber = "fiber"

// Link is a directed parent-to-child containment edge between two devices.
// The source is always the upstream device; restricted to non-subscriber
// devices the link set forms a forest.
type Link struct {
	ID             string     `json:"id"`
	SourceDeviceID string     `json:"source_device_id"`
	TargetDeviceID string     `json:"target_device_id"`
	LinkType       string     `json:"link_type"`
	Status         LinkStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}
