package shift

import "context"

// Patient is the directory record the proximity gate reads.
type Patient struct {
	ID       PatientID
	Name     string
	Address  string
	Location *LatLng // nil until the address is geocoded
}

// Caregiver is the directory record used to snapshot names onto shifts.
type Caregiver struct {
	ID     ActorID
	Name   string
	Email  string
	Phone  string
	Active bool
}

// Directory resolves ids to people. Both getters return ErrNotFound
// (wrapped) for unknown ids.
type Directory interface {
	GetPatient(ctx context.Context, id PatientID) (*Patient, error)
	GetCaregiver(ctx context.Context, id ActorID) (*Caregiver, error)
}

// DirectoryStore is a Directory that admins can write to.
type DirectoryStore interface {
	Directory
	SavePatient(ctx context.Context, p Patient) error
	SaveCaregiver(ctx context.Context, c Caregiver) error
	ListPatients(ctx context.Context) ([]Patient, error)
	ListCaregivers(ctx context.Context) ([]Caregiver, error)
}
