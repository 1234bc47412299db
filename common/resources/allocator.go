package resources

import (
	"errors"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stochkit/replisched/common/utils"
)

var (
	// ErrInvalidRatio indicates that the pool was constructed with a
	// non-positive cores-per-replicate ratio or a negative
	// devices-per-replicate ratio.
	ErrInvalidRatio = errors.New("per-replicate resource ratio is invalid")

	// ErrNoFreeCores indicates that ReserveCore was called when every core
	// had already been reserved or partially assigned.
	ErrNoFreeCores = errors.New("no fully-free CPU core is available to reserve")

	// ErrReplicateAlreadyAssigned indicates that Assign was called for a
	// replicate id that already holds a grant.
	ErrReplicateAlreadyAssigned = errors.New("replicate already holds a resource grant")

	// ErrInsufficientResources indicates that Assign could not satisfy the
	// per-replicate ratios from the free pool. The scheduler only calls
	// Assign while the active count is below MaxSimultaneousReplicates, so
	// this error is a safety net rather than an expected condition.
	ErrInsufficientResources = errors.New("insufficient free resources to assign replicate")
)

// share taken from a single core or device; remembered so that Release can
// restore the pool to exactly its pre-assign state.
type take struct {
	index int
	share decimal.Decimal
}

type allocation struct {
	resources   ComputeResources
	coreTakes   []take
	deviceTakes []take
}

// Allocator tracks the global pool of CPU cores and accelerator devices,
// their per-replicate ratios, and the grants currently held by running
// replicates.
//
// Core and device capacity is accounted in decimal shares (each core and
// each device has capacity 1.0) so that fractional ratios such as 0.5
// devices per replicate never drift the way floating-point accumulation
// would.
//
// The Allocator is single-writer: it performs no locking, and only the
// scheduler goroutine may call its methods.
type Allocator struct {
	log logger.Logger

	coresPerReplicate   decimal.Decimal
	devicesPerReplicate decimal.Decimal

	// coreFree[i] is the unassigned share of core i; -1 marks a reserved core.
	coreFree []decimal.Decimal
	// deviceFree[i] is the unassigned share of device i.
	deviceFree []decimal.Decimal

	reserved []int

	assignments map[int]*allocation
}

var (
	fullShare     = decimal.NewFromInt(1)
	reservedShare = decimal.NewFromInt(-1)
)

// NewAllocator builds the resource pool: totalCores CPU cores and numDevices
// accelerator devices, handed out at coresPerReplicate and
// devicesPerReplicate per grant. Ratios may be fractional; a
// devicesPerReplicate of 0.5 means two replicates share one device.
func NewAllocator(totalCores int, coresPerReplicate float64, numDevices int, devicesPerReplicate float64) (*Allocator, error) {
	if coresPerReplicate <= 0 || devicesPerReplicate < 0 {
		return nil, ErrInvalidRatio
	}

	allocator := &Allocator{
		coresPerReplicate:   decimal.NewFromFloat(coresPerReplicate).Round(4),
		devicesPerReplicate: decimal.NewFromFloat(devicesPerReplicate).Round(4),
		coreFree:            make([]decimal.Decimal, totalCores),
		deviceFree:          make([]decimal.Decimal, numDevices),
		assignments:         make(map[int]*allocation),
	}
	config.InitLogger(&allocator.log, allocator)

	for i := range allocator.coreFree {
		allocator.coreFree[i] = fullShare
	}
	for i := range allocator.deviceFree {
		allocator.deviceFree[i] = fullShare
	}

	return allocator, nil
}

// ReserveCore permanently removes one fully-free CPU core from the usable
// pool and returns its index. Reserved cores are used to pin infrastructure
// threads away from replicate work.
func (a *Allocator) ReserveCore() (int, error) {
	for i, free := range a.coreFree {
		if utils.EqualWithTolerance(free, fullShare) {
			a.coreFree[i] = reservedShare
			a.reserved = append(a.reserved, i)
			a.log.Debug("Reserved CPU core %d. %d core(s) remain usable.", i, a.UsableCores())
			return i, nil
		}
	}

	return -1, ErrNoFreeCores
}

// UsableCores returns the number of cores available for replicate work, i.e.
// the total pool minus any reserved cores.
func (a *Allocator) UsableCores() int {
	return len(a.coreFree) - len(a.reserved)
}

// NumDevices returns the number of accelerator devices in the pool.
func (a *Allocator) NumDevices() int {
	return len(a.deviceFree)
}

// NumAssigned returns the number of replicates currently holding a grant.
func (a *Allocator) NumAssigned() int {
	return len(a.assignments)
}

// MaxSimultaneousReplicates returns the maximum number of replicates that
// may run concurrently: floor(usableCores / coresPerReplicate), additionally
// bounded by floor(totalDeviceShares / devicesPerReplicate) when an
// accelerator ratio is configured.
//
// The value is recomputed deterministically from the pool dimensions, which
// do not change once the scheduler has finished reserving cores, so it is
// constant for the lifetime of a run. A value of 0 is a fatal configuration
// error for the scheduler.
func (a *Allocator) MaxSimultaneousReplicates() int {
	usable := decimal.NewFromInt(int64(a.UsableCores()))
	bound := usable.Div(a.coresPerReplicate).Floor()

	if a.devicesPerReplicate.IsPositive() {
		deviceShares := decimal.NewFromInt(int64(len(a.deviceFree)))
		deviceBound := deviceShares.Div(a.devicesPerReplicate).Floor()
		if deviceBound.LessThan(bound) {
			bound = deviceBound
		}
	}

	return int(bound.IntPart())
}

// Assign selects the next free core shares (first-fit over the lowest free
// core indices) and, when an accelerator ratio is configured, the next
// device(s) with sufficient remaining share, records the grant, and returns
// it.
//
// Assign fails with ErrInsufficientResources when the free pool cannot cover
// the per-replicate ratios. The scheduler prevents this by checking the
// active count against MaxSimultaneousReplicates first; the allocator
// enforces the invariant independently as a safety net.
func (a *Allocator) Assign(replicateID int) (ComputeResources, error) {
	if _, ok := a.assignments[replicateID]; ok {
		return ComputeResources{}, ErrReplicateAlreadyAssigned
	}

	coreTakes, err := firstFit(a.coreFree, a.coresPerReplicate)
	if err != nil {
		return ComputeResources{}, err
	}

	var deviceTakes []take
	if a.devicesPerReplicate.IsPositive() {
		deviceTakes, err = firstFit(a.deviceFree, a.devicesPerReplicate)
		if err != nil {
			return ComputeResources{}, err
		}
	}

	// Both fits succeeded; commit the shares.
	for _, t := range coreTakes {
		a.coreFree[t.index] = a.coreFree[t.index].Sub(t.share)
	}
	for _, t := range deviceTakes {
		a.deviceFree[t.index] = a.deviceFree[t.index].Sub(t.share)
	}

	granted := ComputeResources{
		AllocationID: uuid.NewString(),
		ReplicateID:  replicateID,
		Cores:        indicesOf(coreTakes),
	}
	for _, t := range deviceTakes {
		granted.Devices = append(granted.Devices, DeviceShare{Device: t.index, Share: t.share})
	}

	a.assignments[replicateID] = &allocation{
		resources:   granted,
		coreTakes:   coreTakes,
		deviceTakes: deviceTakes,
	}

	return granted, nil
}

// Release returns the replicate's core and device shares to the free pool.
// Releasing a replicate id that holds no grant is an idempotent no-op.
func (a *Allocator) Release(replicateID int) {
	assigned, ok := a.assignments[replicateID]
	if !ok {
		return
	}

	// Snap a freed core or device back to exactly one full share if rounding
	// residue would otherwise leave it marginally below capacity.
	for _, t := range assigned.coreTakes {
		a.coreFree[t.index] = utils.TryRoundToDecimal(a.coreFree[t.index].Add(t.share), fullShare)
	}
	for _, t := range assigned.deviceTakes {
		a.deviceFree[t.index] = utils.TryRoundToDecimal(a.deviceFree[t.index].Add(t.share), fullShare)
	}

	delete(a.assignments, replicateID)
}

// Assigned returns the grant currently held by the given replicate id, if any.
func (a *Allocator) Assigned(replicateID int) (ComputeResources, bool) {
	assigned, ok := a.assignments[replicateID]
	if !ok {
		return ComputeResources{}, false
	}

	return assigned.resources, true
}

// CommittedCoreShares returns the sum of all currently-assigned core shares.
func (a *Allocator) CommittedCoreShares() decimal.Decimal {
	return a.committed(func(alloc *allocation) []take { return alloc.coreTakes })
}

// CommittedDeviceShares returns the sum of all currently-assigned device shares.
func (a *Allocator) CommittedDeviceShares() decimal.Decimal {
	return a.committed(func(alloc *allocation) []take { return alloc.deviceTakes })
}

func (a *Allocator) committed(takes func(*allocation) []take) decimal.Decimal {
	sum := decimal.Zero
	for _, assigned := range a.assignments {
		for _, t := range takes(assigned) {
			sum = sum.Add(t.share)
		}
	}

	return sum
}

// firstFit gathers `need` worth of shares from the lowest free indices of
// the pool without mutating it. The caller commits the returned takes only
// once every fit involved in the assignment has succeeded.
func firstFit(pool []decimal.Decimal, need decimal.Decimal) ([]take, error) {
	remaining := need
	var takes []take

	for i, free := range pool {
		if !remaining.IsPositive() {
			break
		}
		if !free.IsPositive() {
			// Exhausted or reserved.
			continue
		}

		share := free
		if remaining.LessThan(share) {
			share = remaining
		}

		takes = append(takes, take{index: i, share: share})
		remaining = remaining.Sub(share)
	}

	if remaining.IsPositive() {
		return nil, ErrInsufficientResources
	}

	return takes, nil
}

func indicesOf(takes []take) []int {
	indices := make([]int, 0, len(takes))
	for _, t := range takes {
		indices = append(indices, t.index)
	}

	return indices
}
