package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// SchedulerOptions configures one scheduling run: which replicates to
// execute, the resource pool and per-replicate ratios, checkpointing, and
// the output surface.
type SchedulerOptions struct {
	SimulationFile            string  `name:"file"                  json:"file"                  yaml:"file"                  description:"Path to the simulation file."`
	OutputFile                string  `name:"output"                json:"output"                yaml:"output"                description:"Path to the file output records are appended to."`
	Replicates                string  `name:"replicates"            json:"replicates"            yaml:"replicates"            description:"Replicate ids to run, as a comma-separated list of ids and ranges, e.g. \"1-10\" or \"0,3,7-9\"."`
	Solver                    string  `name:"solver"                json:"solver"                yaml:"solver"                description:"Name of the registered solver used to execute each replicate."`
	Cores                     int     `name:"cores"                 json:"cores"                 yaml:"cores"                 description:"Number of CPU cores usable by this process. Defaults to every available core."`
	Devices                   int     `name:"devices"               json:"devices"               yaml:"devices"               description:"Number of accelerator devices usable by this process; -1 auto-detects the host's GPUs."`
	CoresPerReplicate         float64 `name:"cores-per-replicate"   json:"cores-per-replicate"   yaml:"cores-per-replicate"   description:"CPU cores assigned to each replicate; may be fractional."`
	DevicesPerReplicate       float64 `name:"devices-per-replicate" json:"devices-per-replicate" yaml:"devices-per-replicate" description:"Accelerator devices assigned to each replicate; may be fractional, e.g. 0.5 means two replicates share one device."`
	CheckpointIntervalSeconds int     `name:"checkpoint-interval"   json:"checkpoint-interval"   yaml:"checkpoint-interval"   description:"Seconds between checkpoint requests to running replicates; 0 disables checkpointing."`
	ReserveOutputCore         bool    `name:"reserve-output-core"   json:"reserve-output-core"   yaml:"reserve-output-core"   description:"Reserve one CPU core for the output and infrastructure threads."`
	PrometheusPort            int     `name:"prometheus-port"       json:"prometheus-port"       yaml:"prometheus-port"       description:"Port on which to serve Prometheus metrics; 0 disables metrics."`

	// LocalMode is set to true during unit tests; it disables the signal
	// watcher and the metrics HTTP server so that tests neither trap the
	// test runner's signals nor bind ports.
	LocalMode bool `name:"local_mode" json:"local_mode" yaml:"local_mode" description:"Disables signal handling and metrics serving; used by unit tests."`
}

// ValidateSchedulerOptions ensures the options describe a runnable
// configuration.
func (o *SchedulerOptions) ValidateSchedulerOptions() error {
	if o.CoresPerReplicate <= 0 {
		return errors.Errorf("cores-per-replicate must be positive, got %f", o.CoresPerReplicate)
	}
	if o.DevicesPerReplicate < 0 {
		return errors.Errorf("devices-per-replicate must not be negative, got %f", o.DevicesPerReplicate)
	}
	if o.Cores < 0 || o.Devices < 0 {
		return errors.Errorf("resource pool dimensions must not be negative (cores=%d, devices=%d)", o.Cores, o.Devices)
	}
	if strings.TrimSpace(o.Replicates) == "" {
		return errors.New("no replicate ids were specified")
	}
	if _, err := o.ReplicateList(); err != nil {
		return err
	}

	return nil
}

// ReplicateList parses the Replicates option into the ordered id list.
// Duplicate ids keep their first position.
func (o *SchedulerOptions) ReplicateList() ([]int, error) {
	return ParseReplicateList(o.Replicates)
}

// CheckpointInterval returns the checkpoint interval as a duration; zero
// means checkpointing is disabled.
func (o *SchedulerOptions) CheckpointInterval() time.Duration {
	return time.Duration(o.CheckpointIntervalSeconds) * time.Second
}

func (o *SchedulerOptions) String() string {
	m, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}

	return string(m)
}

// ParseReplicateList parses a comma-separated list of replicate ids and
// inclusive ranges ("0,3,7-9") into the ordered id list. Duplicates keep
// their first position.
func ParseReplicateList(spec string) ([]int, error) {
	var ids []int
	seen := make(map[int]bool)

	push := func(id int) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if first, last, ok := strings.Cut(token, "-"); ok {
			low, err := strconv.Atoi(strings.TrimSpace(first))
			if err != nil {
				return nil, errors.Wrapf(err, "invalid replicate range %q", token)
			}
			high, err := strconv.Atoi(strings.TrimSpace(last))
			if err != nil {
				return nil, errors.Wrapf(err, "invalid replicate range %q", token)
			}
			if high < low {
				return nil, errors.Errorf("invalid replicate range %q: %d > %d", token, low, high)
			}

			for id := low; id <= high; id++ {
				push(id)
			}
			continue
		}

		id, err := strconv.Atoi(token)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid replicate id %q", token)
		}
		push(id)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("replicate list %q contains no ids", spec)
	}

	return ids, nil
}
