package utils

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// GetNumberOfGPUs queries the NVIDIA Management Library for the number of
// real GPUs on the host. It is used to size the accelerator pool when the
// device count is not configured explicitly.
//
// GetNumberOfGPUs returns -1 and an error if NVML cannot be initialized or
// the device count cannot be read.
func GetNumberOfGPUs() (int, error) {
	ret := nvml.Init()
	if ret != nvml.SUCCESS {
		return -1, fmt.Errorf("unable to initialize NVML: %v", nvml.ErrorString(ret))
	}

	defer func() {
		if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
			panic(fmt.Sprintf("Unable to shutdown NVML: %v", nvml.ErrorString(ret)))
		}
	}()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return -1, fmt.Errorf("unable to get device count: %v", nvml.ErrorString(ret))
	}

	return count, nil
}
