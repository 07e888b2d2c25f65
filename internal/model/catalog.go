package model

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

// CouchType identifies the couch family mounted on a machine. It selects
// how many collision envelopes a couch region carries.
type CouchType int

const (
	CouchUnknown CouchType = iota
	ExactCouch             // single envelope
	IGRTCouch              // inner and outer envelope
)

func (c CouchType) String() string {
	switch c {
	case ExactCouch:
		return "ExactCouch"
	case IGRTCouch:
		return "IGRTCouch"
	default:
		return "Unknown"
	}
}

// EnvelopeCount returns the number of collision envelopes a region of this
// couch type must carry, or 0 for unknown types.
func (c CouchType) EnvelopeCount() int {
	switch c {
	case ExactCouch:
		return 1
	case IGRTCouch:
		return 2
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c CouchType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognised names
// decode to CouchUnknown so the catalog validator can report them.
func (c *CouchType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ExactCouch":
		*c = ExactCouch
	case "IGRTCouch":
		*c = IGRTCouch
	default:
		*c = CouchUnknown
	}
	return nil
}

// CollisionEnvelope is the closed-form couch model used by the distance
// formula: the gantry head clears the couch when the couch corner at
// (B, A+TH) lies outside radius R around the isocenter.
type CollisionEnvelope struct {
	A int `yaml:"a" json:"a"` // couch height, mm
	B int `yaml:"b" json:"b"` // half couch width, mm
	R int `yaml:"r" json:"r"` // collision-free radius, mm
}

// CouchPart is a named couch sub-structure with its expected HU value.
type CouchPart struct {
	Name string  `yaml:"name" json:"name"`
	HU   float64 `yaml:"hu" json:"hu"`
}

// CouchRegion is an insertable couch model. Its name matches the structure
// name the TPS uses for the inserted couch.
type CouchRegion struct {
	Name               string              `yaml:"name" json:"name"`
	VerticalCorrection float64             `yaml:"vertical_correction" json:"vertical_correction"` // mm
	Envelopes          []CollisionEnvelope `yaml:"envelopes" json:"envelopes"`
	Parts              []CouchPart         `yaml:"parts" json:"parts"`
}

// MachineDefinition describes a treatment unit and its couch.
type MachineDefinition struct {
	ID        string        `yaml:"id" json:"id"`
	CouchType CouchType     `yaml:"couch_type" json:"couch_type"`
	Regions   []CouchRegion `yaml:"regions" json:"regions"`
}

// EnvelopeRef locates one envelope inside the catalog.
type EnvelopeRef struct {
	Machine  string `yaml:"machine" json:"machine"`
	Region   int    `yaml:"region" json:"region"`
	Envelope int    `yaml:"envelope" json:"envelope"`
}

type catalogFile struct {
	Version   string              `yaml:"version"`
	Reference EnvelopeRef         `yaml:"reference"`
	Machines  []MachineDefinition `yaml:"machines"`
}

// Catalog is the immutable registry of machine definitions.
type Catalog struct {
	version   string
	reference CollisionEnvelope
	refLoc    EnvelopeRef
	machines  []MachineDefinition
	index     map[string]int
}

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
	defaultCatalogErr  error
)

// DefaultCatalog returns the built-in catalog. It is parsed once per process.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = LoadCatalog(bytes.NewReader(defaultCatalogYAML))
	})
	return defaultCatalog, defaultCatalogErr
}

// DefaultCatalogYAML returns a copy of the embedded catalog document.
func DefaultCatalogYAML() []byte {
	return append([]byte(nil), defaultCatalogYAML...)
}

// LoadCatalog parses and validates a YAML catalog document.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Machines) == 0 {
		return nil, fmt.Errorf("catalog has no machines")
	}

	c := &Catalog{
		version:  f.Version,
		refLoc:   f.Reference,
		machines: f.Machines,
		index:    make(map[string]int, len(f.Machines)),
	}
	for i, m := range f.Machines {
		if err := validateMachine(m); err != nil {
			return nil, err
		}
		if _, dup := c.index[m.ID]; dup {
			return nil, fmt.Errorf("duplicate machine %q in catalog", m.ID)
		}
		c.index[m.ID] = i
	}

	ref, err := c.resolve(f.Reference)
	if err != nil {
		return nil, fmt.Errorf("invalid reference envelope: %w", err)
	}
	c.reference = ref
	return c, nil
}

func validateMachine(m MachineDefinition) error {
	if m.ID == "" {
		return fmt.Errorf("catalog machine without id")
	}
	if len(m.Regions) == 0 {
		return fmt.Errorf("machine %q has no couch regions", m.ID)
	}
	// Unknown couch types load; their beams fail the couch channel with an
	// UnsupportedCouchTypeError at evaluation time.
	want := m.CouchType.EnvelopeCount()
	if want == 0 {
		return nil
	}
	for _, r := range m.Regions {
		if len(r.Envelopes) != want {
			return fmt.Errorf("machine %q region %q: %s needs %d envelopes, got %d",
				m.ID, r.Name, m.CouchType, want, len(r.Envelopes))
		}
	}
	return nil
}

func (c *Catalog) resolve(ref EnvelopeRef) (CollisionEnvelope, error) {
	m, err := c.Lookup(ref.Machine)
	if err != nil {
		return CollisionEnvelope{}, err
	}
	if ref.Region < 0 || ref.Region >= len(m.Regions) {
		return CollisionEnvelope{}, fmt.Errorf("machine %q has no region %d", m.ID, ref.Region)
	}
	envs := m.Regions[ref.Region].Envelopes
	if ref.Envelope < 0 || ref.Envelope >= len(envs) {
		return CollisionEnvelope{}, fmt.Errorf("machine %q region %d has no envelope %d", m.ID, ref.Region, ref.Envelope)
	}
	return envs[ref.Envelope], nil
}

// Version returns the catalog document version.
func (c *Catalog) Version() string { return c.version }

// Lookup returns the machine with the given id.
func (c *Catalog) Lookup(machineID string) (MachineDefinition, error) {
	i, ok := c.index[machineID]
	if !ok {
		return MachineDefinition{}, &NotFoundError{Kind: "machine", Name: machineID}
	}
	return c.machines[i], nil
}

// FindRegion returns the couch region whose name matches regionName exactly.
func (c *Catalog) FindRegion(def MachineDefinition, regionName string) (CouchRegion, error) {
	for _, r := range def.Regions {
		if r.Name == regionName {
			return r, nil
		}
	}
	return CouchRegion{}, &NotFoundError{Kind: "couch region", Name: regionName}
}

// ReferenceEnvelope returns the envelope used for couch limit angles.
func (c *Catalog) ReferenceEnvelope() CollisionEnvelope { return c.reference }

// ReferenceLocation returns where the reference envelope was taken from.
func (c *Catalog) ReferenceLocation() EnvelopeRef { return c.refLoc }

// Machines returns the machine definitions in catalog order.
func (c *Catalog) Machines() []MachineDefinition {
	out := make([]MachineDefinition, len(c.machines))
	copy(out, c.machines)
	return out
}
