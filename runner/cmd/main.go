package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/Scusemua/go-utils/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"

	"github.com/stochkit/replisched/common/lifecycle"
	"github.com/stochkit/replisched/common/replicate"
	"github.com/stochkit/replisched/common/resources"
	"github.com/stochkit/replisched/common/simfile"
	"github.com/stochkit/replisched/common/utils"
	"github.com/stochkit/replisched/runner/daemon"
	"github.com/stochkit/replisched/runner/domain"
)

const (
	ServiceName = "replicate-runner"
	Version     = "0.3.0"
)

var (
	options      = domain.RunnerOptions{}
	globalLogger = config.GetLogger("")
)

func init() {
	lipgloss.SetColorProfile(termenv.ANSI256)

	// Set default options.
	options.Function = domain.FunctionSimulation
	options.Solver = "noop"
	options.CoresPerReplicate = 1
	options.ReserveOutputCore = true
}

// ValidateOptions ensures that the options/configuration is valid. It returns
// the parsed flag set; its positional arguments are the "key=value" parameter
// overrides.
func ValidateOptions() *flag.FlagSet {
	flags, err := config.ValidateOptions(&options)
	if errors.Is(err, config.ErrPrintUsage) {
		flags.PrintDefaults()
		os.Exit(0)
	} else if err != nil {
		log.Fatal(err)
	}

	return flags
}

// resolveDevices replaces a negative device count with the number of GPUs
// NVML reports on the host.
func resolveDevices() {
	if options.Devices >= 0 {
		return
	}

	detected, err := utils.GetNumberOfGPUs()
	if err != nil {
		log.Fatalf("Could not detect accelerator devices: %v", err)
	}

	globalLogger.Info("Detected %d accelerator device(s).", detected)
	options.Devices = detected
}

func printDevices() {
	resolveDevices()

	cores := options.Cores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}

	fmt.Printf("CPU cores:             %d\n", cores)
	fmt.Printf("Accelerator devices:   %d\n", options.Devices)

	allocator, err := resources.NewAllocator(cores, options.CoresPerReplicate, options.Devices, options.DevicesPerReplicate)
	if err != nil {
		log.Fatalf("Invalid per-replicate ratios: %v", err)
	}
	if options.ReserveOutputCore {
		if _, err := allocator.ReserveCore(); err != nil {
			log.Fatalf("Could not reserve an output core: %v", err)
		}
	}

	fmt.Printf("Simultaneous replicates: %d\n", allocator.MaxSimultaneousReplicates())
}

func runSimulation(overrides []string) {
	resolveDevices()

	store, err := simfile.OpenJSONStore(options.SimulationFile, options.OutputFile)
	if err != nil {
		log.Fatalf("Could not open the simulation file: %v", err)
	}

	factory, err := replicate.GetSolverFactory(options.Solver)
	if err != nil {
		log.Fatalf("Unknown solver \"%s\"; registered solvers: %s.",
			options.Solver, strings.Join(replicate.RegisteredSolvers(), ", "))
	}

	abort := lifecycle.NewAbortController()

	schedulerDaemon, err := daemon.NewSchedulerDaemon(&options.SchedulerOptions, overrides, store, factory, abort)
	if err != nil {
		_ = store.Close()
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := schedulerDaemon.Run(); err != nil {
		log.Fatalf("Scheduler failed: %v", err)
	}
}

func main() {
	// Ensure that the options/configuration is valid.
	flags := ValidateOptions()
	overrides := flags.Args()

	if options.PrettyPrintOptions {
		globalLogger.Info("Starting the %s (version %s) with the following options:\n%s\n",
			ServiceName, Version, options.PrettyString(2))
	}

	switch options.Function {
	case domain.FunctionSimulation:
		runSimulation(overrides)
	case domain.FunctionDevices:
		printDevices()
	case domain.FunctionSolvers:
		fmt.Println(strings.Join(replicate.RegisteredSolvers(), "\n"))
	case domain.FunctionVersion:
		fmt.Printf("%s version %s\n", ServiceName, Version)
	case domain.FunctionHelp:
		flags.PrintDefaults()
	default:
		log.Fatalf("Unknown function \"%s\"; expected \"%s\", \"%s\", \"%s\", \"%s\", or \"%s\".",
			options.Function, domain.FunctionSimulation, domain.FunctionDevices, domain.FunctionSolvers,
			domain.FunctionVersion, domain.FunctionHelp)
	}
}
