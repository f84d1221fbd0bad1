package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Directory is an in-memory patient, professional and service directory.
type Directory struct {
	mu            sync.RWMutex
	patients      map[uuid.UUID]struct{}
	professionals map[uuid.UUID]struct{}
	services      map[uuid.UUID]appointment.ServiceInfo
}

func NewDirectory() *Directory {
	return &Directory{
		patients:      map[uuid.UUID]struct{}{},
		professionals: map[uuid.UUID]struct{}{},
		services:      map[uuid.UUID]appointment.ServiceInfo{},
	}
}

func (d *Directory) AddPatient(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[id] = struct{}{}
}

func (d *Directory) AddProfessional(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.professionals[id] = struct{}{}
}

func (d *Directory) AddService(id uuid.UUID, info appointment.ServiceInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services[id] = info
}

func (d *Directory) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.patients[id]
	return ok, nil
}

func (d *Directory) ProfessionalExists(_ context.Context, id uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.professionals[id]
	return ok, nil
}

func (d *Directory) GetServiceByID(_ context.Context, id uuid.UUID) (*appointment.ServiceInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.services[id]
	if !ok {
		return nil, apperr.NotFound("service", id)
	}
	return &info, nil
}

// Notifications records NotifyAppointmentBooked calls.
type Notifications struct {
	mu  sync.Mutex
	ids []uuid.UUID

	// Err, when set, is returned from every call after recording it.
	Err error
}

func (n *Notifications) NotifyAppointmentBooked(_ context.Context, id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return n.Err
}

func (n *Notifications) Sent() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.ids...)
}

var (
	_ appointment.ServiceDirectory      = (*Directory)(nil)
	_ appointment.ProfessionalDirectory = (*Directory)(nil)
	_ appointment.PatientDirectory      = (*Directory)(nil)
	_ appointment.Notifier              = (*Notifications)(nil)
)
