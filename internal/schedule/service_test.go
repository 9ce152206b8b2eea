package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/carespring/clinic-scheduling/internal/redis"
)

type stubRepo struct {
	patient      *Patient
	patientErr   error
	professional *Professional
	profErr      error
	service      *CareService
	serviceErr   error

	windows    []AvailabilityWindow
	windowsErr error

	overlap    bool
	overlapErr error

	appointment *Appointment
	apptErr     error

	created      *Appointment
	createErr    error
	createParams *CreateAppointmentParams

	updated   *Appointment
	updateErr error

	cancelled *Appointment
	cancelErr error

	completed   *Appointment
	completeErr error

	createdWindow *AvailabilityWindow

	events []EventLog
}

func (s *stubRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patient, s.patientErr
}

func (s *stubRepo) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return s.professional, s.profErr
}

func (s *stubRepo) GetCareServiceByID(ctx context.Context, id uuid.UUID) (*CareService, error) {
	return s.service, s.serviceErr
}

func (s *stubRepo) ListWindows(ctx context.Context, professionalID uuid.UUID) ([]AvailabilityWindow, error) {
	return s.windows, s.windowsErr
}

func (s *stubRepo) CreateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	w.ID = uuid.New()
	s.createdWindow = &w
	return &w, nil
}

func (s *stubRepo) DeactivateWindow(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (s *stubRepo) HasOverlap(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	return s.overlap, s.overlapErr
}

func (s *stubRepo) CreateScheduled(ctx context.Context, p CreateAppointmentParams, end, asOf time.Time) (*Appointment, error) {
	s.createParams = &p
	return s.created, s.createErr
}

func (s *stubRepo) UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time, durationMinutes int, notes string, unlink bool) (*Appointment, error) {
	return s.updated, s.updateErr
}

func (s *stubRepo) CancelScheduled(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.cancelled, s.cancelErr
}

func (s *stubRepo) CompleteScheduled(ctx context.Context, id uuid.UUID, asOf time.Time) (*Appointment, error) {
	return s.completed, s.completeErr
}

func (s *stubRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointment, s.apptErr
}

func (s *stubRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	if s.appointment == nil {
		return nil, ErrAppointmentNotFound
	}
	return &AppointmentDetail{Appointment: *s.appointment}, nil
}

func (s *stubRepo) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return nil, nil
}

func (s *stubRepo) ListAppointmentsByProfessional(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return nil, nil
}

func (s *stubRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	s.events = append(s.events, ev)
	return nil
}

// passLocker runs the critical section immediately.
type passLocker struct{}

func (passLocker) WithLock(ctx context.Context, scope string, id uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// busyLocker simulates a lock already held elsewhere.
type busyLocker struct{}

func (busyLocker) WithLock(ctx context.Context, scope string, id uuid.UUID, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func mondayWindows() []AvailabilityWindow {
	return []AvailabilityWindow{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60, Active: true},
	}
}

func newTestService(repo *stubRepo, locker redisclient.Locker) *Service {
	svc := NewService(repo, locker, nil, zap.NewNop())
	return svc
}

func validCreateParams(start time.Time) CreateAppointmentParams {
	return CreateAppointmentParams{
		PatientID:       uuid.New(),
		ProfessionalID:  uuid.New(),
		ServiceID:       uuid.New(),
		Start:           start,
		DurationMinutes: 60,
	}
}

func baseStubRepo(start time.Time) *stubRepo {
	return &stubRepo{
		patient:      &Patient{ID: uuid.New(), Name: "Ana", Active: true},
		professional: &Professional{ID: uuid.New(), Name: "Dr. Silva", Active: true},
		service:      &CareService{ID: uuid.New(), Name: "Physiotherapy", Active: true},
		windows:      mondayWindows(),
		created: &Appointment{
			ID:              uuid.New(),
			Status:          StatusScheduled,
			StartTime:       start,
			EndTime:         start.Add(time.Hour),
			DurationMinutes: 60,
		},
	}
}

func TestCreateAppointment(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	svc := newTestService(repo, passLocker{})

	appt, err := svc.CreateAppointment(context.Background(), validCreateParams(start))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusScheduled {
		t.Errorf("status = %s, want scheduled", appt.Status)
	}
	if repo.createParams == nil {
		t.Fatal("CreateScheduled was not called")
	}
	if len(repo.events) != 1 || repo.events[0].EventType != EventAppointmentScheduled {
		t.Errorf("expected one APPOINTMENT_SCHEDULED event, got %+v", repo.events)
	}
}

func TestCreateAppointmentOutsideAvailability(t *testing.T) {
	start := mondayAt(10, 0)

	tests := []struct {
		name  string
		start time.Time
	}{
		{name: "before window", start: mondayAt(8, 0)},
		{name: "runs past window end", start: mondayAt(11, 30)},
		{name: "wrong weekday", start: mondayAt(10, 0).AddDate(0, 0, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := baseStubRepo(start)
			svc := newTestService(repo, passLocker{})

			_, err := svc.CreateAppointment(context.Background(), validCreateParams(tt.start))
			if !errors.Is(err, ErrOutsideAvailability) {
				t.Fatalf("expected ErrOutsideAvailability, got %v", err)
			}
			if repo.createParams != nil {
				t.Error("CreateScheduled must not run on an availability miss")
			}
		})
	}
}

func TestCreateAppointmentSlotConflict(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.overlap = true
	svc := newTestService(repo, passLocker{})

	_, err := svc.CreateAppointment(context.Background(), validCreateParams(start))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if repo.createParams != nil {
		t.Error("CreateScheduled must not run when the slot is taken")
	}
}

func TestCreateAppointmentInvalidDuration(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	svc := newTestService(repo, passLocker{})

	p := validCreateParams(start)
	p.DurationMinutes = 0

	_, err := svc.CreateAppointment(context.Background(), p)
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestCreateAppointmentUnalignedStart(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	svc := newTestService(repo, passLocker{})

	// 10:00:30 sits inside the 09:00-12:00 window minute-wise, but the real
	// interval ends 30 seconds past where the containment check thinks it does.
	p := validCreateParams(start.Add(30 * time.Second))

	_, err := svc.CreateAppointment(context.Background(), p)
	if !errors.Is(err, ErrUnalignedStart) {
		t.Fatalf("expected ErrUnalignedStart, got %v", err)
	}
	if repo.createParams != nil {
		t.Error("CreateScheduled must not run for an unaligned start")
	}
}

func TestRescheduleUnalignedStart(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.appointment = &Appointment{
		ID:              uuid.New(),
		ProfessionalID:  repo.professional.ID,
		Status:          StatusScheduled,
		StartTime:       start,
		DurationMinutes: 60,
	}
	svc := newTestService(repo, passLocker{})

	newStart := mondayAt(10, 0).Add(45 * time.Second)
	_, err := svc.Reschedule(context.Background(), repo.appointment.ID, ReschedulePatch{Start: &newStart})
	if !errors.Is(err, ErrUnalignedStart) {
		t.Fatalf("expected ErrUnalignedStart, got %v", err)
	}
}

func TestCreateAppointmentUnknownPatient(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.patient = nil
	repo.patientErr = ErrPatientNotFound
	svc := newTestService(repo, passLocker{})

	_, err := svc.CreateAppointment(context.Background(), validCreateParams(start))
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestCreateAppointmentLockBusy(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	svc := newTestService(repo, busyLocker{})

	_, err := svc.CreateAppointment(context.Background(), validCreateParams(start))
	if !errors.Is(err, ErrScheduleBusy) {
		t.Fatalf("expected ErrScheduleBusy, got %v", err)
	}
}

func TestReschedule(t *testing.T) {
	start := mondayAt(10, 0)
	newStart := mondayAt(11, 0)

	repo := baseStubRepo(start)
	repo.appointment = &Appointment{
		ID:              uuid.New(),
		ProfessionalID:  repo.professional.ID,
		Status:          StatusScheduled,
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		DurationMinutes: 60,
	}
	repo.updated = &Appointment{
		ID:              repo.appointment.ID,
		Status:          StatusScheduled,
		StartTime:       newStart,
		EndTime:         newStart.Add(time.Hour),
		DurationMinutes: 60,
	}
	svc := newTestService(repo, passLocker{})

	appt, err := svc.Reschedule(context.Background(), repo.appointment.ID, ReschedulePatch{Start: &newStart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !appt.StartTime.Equal(newStart) {
		t.Errorf("start = %s, want %s", appt.StartTime, newStart)
	}
	if len(repo.events) != 1 || repo.events[0].EventType != EventAppointmentRescheduled {
		t.Errorf("expected one APPOINTMENT_RESCHEDULED event, got %+v", repo.events)
	}
}

func TestRescheduleNotScheduled(t *testing.T) {
	start := mondayAt(10, 0)

	for _, status := range []AppointmentStatus{StatusCompleted, StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			repo := baseStubRepo(start)
			repo.appointment = &Appointment{
				ID:        uuid.New(),
				Status:    status,
				StartTime: start,
			}
			svc := newTestService(repo, passLocker{})

			newStart := mondayAt(11, 0)
			_, err := svc.Reschedule(context.Background(), repo.appointment.ID, ReschedulePatch{Start: &newStart})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestRescheduleOutsideAvailability(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.appointment = &Appointment{
		ID:              uuid.New(),
		ProfessionalID:  repo.professional.ID,
		Status:          StatusScheduled,
		StartTime:       start,
		DurationMinutes: 60,
	}
	svc := newTestService(repo, passLocker{})

	newStart := mondayAt(7, 0)
	_, err := svc.Reschedule(context.Background(), repo.appointment.ID, ReschedulePatch{Start: &newStart})
	if !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("expected ErrOutsideAvailability, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.appointment = &Appointment{
		ID:             uuid.New(),
		ProfessionalID: repo.professional.ID,
		Status:         StatusScheduled,
		StartTime:      start,
	}
	repo.cancelled = &Appointment{
		ID:     repo.appointment.ID,
		Status: StatusCancelled,
	}
	svc := newTestService(repo, passLocker{})

	appt, err := svc.Cancel(context.Background(), repo.appointment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", appt.Status)
	}
}

func TestCancelNotScheduled(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.appointment = &Appointment{
		ID:             uuid.New(),
		ProfessionalID: repo.professional.ID,
		Status:         StatusCompleted,
	}
	repo.cancelErr = ErrInvalidTransition
	svc := newTestService(repo, passLocker{})

	_, err := svc.Cancel(context.Background(), repo.appointment.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.appointment = &Appointment{
		ID:        uuid.New(),
		Status:    StatusScheduled,
		StartTime: start,
	}
	repo.completed = &Appointment{
		ID:     repo.appointment.ID,
		Status: StatusCompleted,
	}
	svc := newTestService(repo, passLocker{})
	svc.now = func() time.Time { return start.Add(time.Hour) }

	appt, err := svc.Complete(context.Background(), repo.appointment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", appt.Status)
	}
	if len(repo.events) != 1 || repo.events[0].EventType != EventAppointmentCompleted {
		t.Errorf("expected one APPOINTMENT_COMPLETED event, got %+v", repo.events)
	}
}

func TestCompleteBeforeStart(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.appointment = &Appointment{
		ID:        uuid.New(),
		Status:    StatusScheduled,
		StartTime: start,
	}
	svc := newTestService(repo, passLocker{})
	svc.now = func() time.Time { return start.Add(-time.Hour) }

	_, err := svc.Complete(context.Background(), repo.appointment.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteAtExactStart(t *testing.T) {
	start := mondayAt(10, 0)
	repo := baseStubRepo(start)
	repo.appointment = &Appointment{
		ID:        uuid.New(),
		Status:    StatusScheduled,
		StartTime: start,
	}
	repo.completed = &Appointment{
		ID:     repo.appointment.ID,
		Status: StatusCompleted,
	}
	svc := newTestService(repo, passLocker{})
	svc.now = func() time.Time { return start }

	if _, err := svc.Complete(context.Background(), repo.appointment.ID); err != nil {
		t.Fatalf("completion at the exact start time must be allowed, got %v", err)
	}
}

func TestCreateAvailabilityWindow(t *testing.T) {
	repo := &stubRepo{
		professional: &Professional{ID: uuid.New(), Name: "Dr. Silva", Active: true},
		windows:      mondayWindows(),
	}
	svc := newTestService(repo, passLocker{})

	w, err := svc.CreateAvailabilityWindow(context.Background(), repo.professional.ID, time.Monday, 13*60, 17*60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.StartMinute != 13*60 || w.EndMinute != 17*60 {
		t.Errorf("window bounds = [%d, %d), want [780, 1020)", w.StartMinute, w.EndMinute)
	}
}

func TestCreateAvailabilityWindowOverlap(t *testing.T) {
	repo := &stubRepo{
		professional: &Professional{ID: uuid.New(), Name: "Dr. Silva", Active: true},
		windows:      mondayWindows(),
	}
	svc := newTestService(repo, passLocker{})

	_, err := svc.CreateAvailabilityWindow(context.Background(), repo.professional.ID, time.Monday, 11*60, 13*60)
	if !errors.Is(err, ErrWindowOverlap) {
		t.Fatalf("expected ErrWindowOverlap, got %v", err)
	}
}

func TestCreateAvailabilityWindowInvalidBounds(t *testing.T) {
	repo := &stubRepo{
		professional: &Professional{ID: uuid.New(), Name: "Dr. Silva", Active: true},
	}
	svc := newTestService(repo, passLocker{})

	tests := []struct {
		name       string
		start, end int
	}{
		{name: "negative start", start: -10, end: 60},
		{name: "end past midnight", start: 23 * 60, end: 25 * 60},
		{name: "start equals end", start: 600, end: 600},
		{name: "start after end", start: 700, end: 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAvailabilityWindow(context.Background(), repo.professional.ID, time.Monday, tt.start, tt.end)
			if !errors.Is(err, ErrInvalidWindow) {
				t.Fatalf("expected ErrInvalidWindow, got %v", err)
			}
		})
	}
}
