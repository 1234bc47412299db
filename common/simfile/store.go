package simfile

import (
	"errors"
	"time"
)

var (
	// ErrNoReactionModel indicates that the simulation file carries no
	// reaction model even though the configured solver requires one.
	ErrNoReactionModel = errors.New("simulation file contains no reaction model")

	// ErrNoDiffusionModel indicates that the simulation file carries no
	// diffusion model even though the configured solver requires one.
	ErrNoDiffusionModel = errors.New("simulation file contains no diffusion model")

	// ErrStoreClosed indicates that an operation was attempted on a store
	// that has already been closed.
	ErrStoreClosed = errors.New("simulation store is closed")
)

// ReactionModel is the read-only reaction network shared by every replicate.
// The scheduler treats it as opaque; only the solver interprets it.
type ReactionModel struct {
	NumSpecies      int       `json:"num_species"`
	NumReactions    int       `json:"num_reactions"`
	InitialCounts   []int64   `json:"initial_counts"`
	RateConstants   []float64 `json:"rate_constants"`
	StoichiometryCS []int32   `json:"stoichiometry"`
}

// DiffusionModel is the read-only spatial model shared by every replicate.
type DiffusionModel struct {
	LatticeXSize     int `json:"lattice_x_size"`
	LatticeYSize     int `json:"lattice_y_size"`
	LatticeZSize     int `json:"lattice_z_size"`
	ParticlesPerSite int `json:"particles_per_site"`
	BytesPerParticle int `json:"bytes_per_particle"`
}

// LatticeBytes returns the size in bytes of the particle lattice buffer
// described by the model.
func (m *DiffusionModel) LatticeBytes() int {
	return m.LatticeXSize * m.LatticeYSize * m.LatticeZSize * m.ParticlesPerSite * m.BytesPerParticle
}

// SiteBytes returns the size in bytes of the site-type buffer described by
// the model.
func (m *DiffusionModel) SiteBytes() int {
	return m.LatticeXSize * m.LatticeYSize * m.LatticeZSize
}

// Lattice holds the shared, read-only lattice buffers. They are loaded once
// before any replicate starts and released only after every replicate has
// finished; no locking is needed because no writer exists after loading.
type Lattice struct {
	Particles []byte
	Sites     []byte
}

// Record is one unit of replicate output handed to the store by the output
// worker.
type Record struct {
	ReplicateID int       `json:"replicate_id"`
	Type        string    `json:"type"`
	Time        time.Time `json:"time"`
	Payload     []byte    `json:"payload,omitempty"`
}

// Store is the narrow, format-agnostic interface to the simulation file.
//
// Reads happen once, from the scheduler goroutine, before any replicate
// starts. AppendRecord is called only by the single output worker goroutine,
// in record arrival order. Close is called only after every replicate has
// stopped.
type Store interface {
	// Parameters returns the simulation parameters stored in the file.
	Parameters() (map[string]string, error)

	// ReactionModel returns the stored reaction model.
	ReactionModel() (*ReactionModel, error)

	// DiffusionModel returns the stored diffusion model.
	DiffusionModel() (*DiffusionModel, error)

	// Lattice loads the lattice buffers described by the given diffusion model.
	Lattice(model *DiffusionModel) (*Lattice, error)

	// AppendRecord serializes one output record.
	AppendRecord(record *Record) error

	// Close flushes and closes the store.
	Close() error
}
