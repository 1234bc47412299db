package domain

import (
	"github.com/Scusemua/go-utils/config"
	"github.com/goccy/go-json"
)

// Functions selectable on the command line.
const (
	// FunctionSimulation runs the replicate batch. This is the default.
	FunctionSimulation = "simulation"

	// FunctionDevices prints the resource pool the process would use and exits.
	FunctionDevices = "devices"

	// FunctionSolvers prints the registered solver names and exits.
	FunctionSolvers = "solvers"

	// FunctionVersion prints the version string and exits.
	FunctionVersion = "version"

	// FunctionHelp prints the flag usage and exits.
	FunctionHelp = "help"
)

// RunnerOptions is the full command-line surface of the replicate runner.
// Positional arguments (everything after the flags) are "key=value"
// simulation parameter overrides.
type RunnerOptions struct {
	config.LoggerOptions `yaml:",inline" json:"logger_options"`
	SchedulerOptions     `yaml:",inline" json:"scheduler_options"`

	Function           string `name:"function" json:"function" yaml:"function" description:"What to do: \"simulation\", \"devices\", \"solvers\", \"version\", or \"help\"."`
	PrettyPrintOptions bool   `name:"pretty_print_options" json:"pretty_print_options" yaml:"pretty_print_options" description:"Pretty-print the effective options at startup."`
}

// PrettyString returns the options as indented JSON.
func (o *RunnerOptions) PrettyString(indentSize int) string {
	indent := make([]byte, 0, indentSize)
	for i := 0; i < indentSize; i++ {
		indent = append(indent, ' ')
	}

	m, err := json.MarshalIndent(o, "", string(indent))
	if err != nil {
		panic(err)
	}

	return string(m)
}
