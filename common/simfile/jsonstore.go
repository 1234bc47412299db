package simfile

import (
	"bufio"
	"encoding/base64"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// jsonFile mirrors the on-disk layout of a JSON simulation file.
type jsonFile struct {
	Parameters     map[string]string `json:"parameters"`
	ReactionModel  *ReactionModel    `json:"reaction_model,omitempty"`
	DiffusionModel *DiffusionModel   `json:"diffusion_model,omitempty"`

	// Lattice buffers are stored base64-encoded.
	Lattice      string `json:"lattice,omitempty"`
	LatticeSites string `json:"lattice_sites,omitempty"`
}

// JSONStore is a Store backed by a JSON simulation file and a JSON-lines
// output file. It exists so that the scheduler can run end to end without a
// heavyweight storage engine; production deployments plug in their own Store.
type JSONStore struct {
	mu sync.Mutex

	contents *jsonFile

	outputFile *os.File
	writer     *bufio.Writer
	encoder    *json.Encoder

	closed bool
}

// OpenJSONStore reads the simulation file at simulationPath and opens (or
// creates) the record output file at outputPath.
func OpenJSONStore(simulationPath string, outputPath string) (*JSONStore, error) {
	raw, err := os.ReadFile(simulationPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read simulation file %s", simulationPath)
	}

	contents := &jsonFile{}
	if err := json.Unmarshal(raw, contents); err != nil {
		return nil, errors.Wrapf(err, "failed to parse simulation file %s", simulationPath)
	}

	outputFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open output file %s", outputPath)
	}

	writer := bufio.NewWriter(outputFile)

	return &JSONStore{
		contents:   contents,
		outputFile: outputFile,
		writer:     writer,
		encoder:    json.NewEncoder(writer),
	}, nil
}

// Parameters returns the simulation parameters stored in the file.
func (s *JSONStore) Parameters() (map[string]string, error) {
	parameters := make(map[string]string, len(s.contents.Parameters))
	for key, value := range s.contents.Parameters {
		parameters[key] = value
	}

	return parameters, nil
}

// ReactionModel returns the stored reaction model.
func (s *JSONStore) ReactionModel() (*ReactionModel, error) {
	if s.contents.ReactionModel == nil {
		return nil, ErrNoReactionModel
	}

	return s.contents.ReactionModel, nil
}

// DiffusionModel returns the stored diffusion model.
func (s *JSONStore) DiffusionModel() (*DiffusionModel, error) {
	if s.contents.DiffusionModel == nil {
		return nil, ErrNoDiffusionModel
	}

	return s.contents.DiffusionModel, nil
}

// Lattice decodes the lattice buffers described by the given diffusion model.
func (s *JSONStore) Lattice(model *DiffusionModel) (*Lattice, error) {
	particles, err := base64.StdEncoding.DecodeString(s.contents.Lattice)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode lattice buffer")
	}

	sites, err := base64.StdEncoding.DecodeString(s.contents.LatticeSites)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode lattice site buffer")
	}

	lattice := &Lattice{
		Particles: make([]byte, model.LatticeBytes()),
		Sites:     make([]byte, model.SiteBytes()),
	}
	copy(lattice.Particles, particles)
	copy(lattice.Sites, sites)

	return lattice, nil
}

// AppendRecord serializes one output record as a JSON line.
func (s *JSONStore) AppendRecord(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	return s.encoder.Encode(record)
}

// Close flushes and closes the output file. Close is idempotent.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Flush(); err != nil {
		_ = s.outputFile.Close()
		return errors.Wrap(err, "failed to flush output records")
	}

	return s.outputFile.Close()
}
