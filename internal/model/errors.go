package model

import (
	"errors"
	"fmt"
)

// ErrUndefinedCouchPosition is returned when neither the CT slice metadata
// nor an inserted couch structure yields a couch vertical position.
var ErrUndefinedCouchPosition = errors.New("couch vertical position is undefined")

// NotFoundError reports an unknown machine or couch region.
type NotFoundError struct {
	Kind string // "machine" or "couch region"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// UnsupportedCouchTypeError is returned when a machine carries a couch type
// the margin model does not know.
type UnsupportedCouchTypeError struct {
	MachineID string
	CouchType CouchType
}

func (e *UnsupportedCouchTypeError) Error() string {
	return fmt.Sprintf("machine %q has unsupported couch type %q", e.MachineID, e.CouchType.String())
}

// UnsupportedOrientationError is returned for patient orientations outside
// the eight head-first/feet-first variants.
type UnsupportedOrientationError struct {
	Orientation PatientOrientation
}

func (e *UnsupportedOrientationError) Error() string {
	return fmt.Sprintf("unsupported patient orientation %q", e.Orientation.String())
}
