package resources

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DeviceShare is a fraction of one accelerator device granted to a replicate.
// Share is in the half-open interval (0, 1]; a device's shares across all
// replicates never sum to more than 1.
type DeviceShare struct {
	// Device is the index of the accelerator device.
	Device int

	// Share is the fraction of the device granted to the replicate.
	Share decimal.Decimal
}

func (s DeviceShare) String() string {
	return fmt.Sprintf("%d:%s", s.Device, s.Share.StringFixed(2))
}

// ComputeResources is the concrete grant of CPU cores and accelerator device
// shares bound to exactly one running replicate.
//
// A ComputeResources value is immutable after creation. It is owned by the
// replicate runner it was granted to until the allocator reclaims it via
// Release.
type ComputeResources struct {
	// AllocationID is the unique ID of the grant.
	AllocationID string

	// ReplicateID is the id of the replicate the grant is bound to.
	ReplicateID int

	// Cores holds the granted CPU core indices in ascending order. There is
	// always at least one core, even when the per-replicate core ratio is
	// fractional and the core is shared with sibling replicates.
	Cores []int

	// Devices holds the granted accelerator device shares in ascending device
	// order. Empty when no accelerators are configured.
	Devices []DeviceShare
}

// CoreList returns a copy of the granted core indices.
func (r ComputeResources) CoreList() []int {
	cores := make([]int, len(r.Cores))
	copy(cores, r.Cores)
	return cores
}

// DeviceList returns a copy of the granted device shares.
func (r ComputeResources) DeviceList() []DeviceShare {
	devices := make([]DeviceShare, len(r.Devices))
	copy(devices, r.Devices)
	return devices
}

// String returns a string representation of the grant suitable for logging.
func (r ComputeResources) String() string {
	var builder strings.Builder

	builder.WriteString("core(s) [")
	for i, core := range r.Cores {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString(fmt.Sprintf("%d", core))
	}
	builder.WriteString("]")

	if len(r.Devices) > 0 {
		builder.WriteString(", device(s) [")
		for i, device := range r.Devices {
			if i > 0 {
				builder.WriteString(",")
			}
			builder.WriteString(device.String())
		}
		builder.WriteString("]")
	}

	return builder.String()
}
