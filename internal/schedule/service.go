package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carespring/clinic-scheduling/internal/calendar"
	redisclient "github.com/carespring/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentScheduled   = "APPOINTMENT_SCHEDULED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
)

const lockScopeProfessional = "professional"

var (
	ErrOutsideAvailability = errors.New("requested time is outside the professional's availability")
	ErrSlotConflict        = errors.New("requested time conflicts with another appointment")
	ErrInvalidTransition   = errors.New("invalid appointment status transition")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrUnalignedStart      = errors.New("start time must fall on a whole minute")
	ErrInvalidWindow       = errors.New("window bounds must satisfy 0 <= start < end <= 1440")
	ErrWindowOverlap       = errors.New("window overlaps an existing window on the same weekday")
	ErrScheduleBusy        = errors.New("schedule is being modified, please retry")
)

// Service is the scheduling orchestrator. Each booking, reschedule or cancel
// runs under a per-professional lock so two requests for the same schedule
// cannot both pass the conflict check; ledger mutations ride in the same DB
// transaction as the appointment change.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	calendar calendar.Adapter
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cal calendar.Adapter, log *zap.Logger) *Service {
	if cal == nil {
		cal = calendar.Disabled{}
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		calendar: cal,
		log:      log,
		now:      time.Now,
	}
}

// CreateAppointment books a slot: availability check, conflict check, optional
// session reserve and the insert happen all-or-nothing.
func (s *Service) CreateAppointment(ctx context.Context, p CreateAppointmentParams) (*Appointment, error) {
	if p.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	// Windows are minute-granular; a start with stray seconds would pass the
	// containment check while the real interval runs past the window.
	if !p.Start.Truncate(time.Minute).Equal(p.Start) {
		return nil, ErrUnalignedStart
	}

	if _, err := s.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		return nil, err
	}
	professional, err := s.repo.GetProfessionalByID(ctx, p.ProfessionalID)
	if err != nil {
		return nil, err
	}
	svc, err := s.repo.GetCareServiceByID(ctx, p.ServiceID)
	if err != nil {
		return nil, err
	}

	windows, err := s.repo.ListWindows(ctx, p.ProfessionalID)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	if !WithinAvailability(windows, p.Start, p.DurationMinutes) {
		return nil, ErrOutsideAvailability
	}

	end := p.Start.Add(time.Duration(p.DurationMinutes) * time.Minute)

	var created *Appointment
	err = s.locker.WithLock(ctx, lockScopeProfessional, p.ProfessionalID, func(lockCtx context.Context) error {
		conflict, err := s.repo.HasOverlap(lockCtx, p.ProfessionalID, p.Start, end, nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotConflict
		}

		created, err = s.repo.CreateScheduled(lockCtx, p, end, s.now())
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentScheduled, map[string]any{
		"professional_id": p.ProfessionalID.String(),
		"patient_id":      p.PatientID.String(),
		"start":           created.StartTime,
	})
	s.pushCalendarEvent(ctx, created, professional.Name, svc.Name)

	return created, nil
}

// Reschedule changes time, duration or notes of a scheduled appointment.
// The conflict check excludes the appointment itself. Entitlement is left
// alone unless the patch unlinks the subscription, which releases the
// reservation.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, patch ReschedulePatch) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}

	newStart := appt.StartTime
	if patch.Start != nil {
		newStart = *patch.Start
	}
	newDuration := appt.DurationMinutes
	if patch.DurationMinutes != nil {
		newDuration = *patch.DurationMinutes
	}
	if newDuration <= 0 {
		return nil, ErrInvalidDuration
	}
	if !newStart.Truncate(time.Minute).Equal(newStart) {
		return nil, ErrUnalignedStart
	}
	notes := appt.Notes
	if patch.Notes != nil {
		notes = *patch.Notes
	}

	windows, err := s.repo.ListWindows(ctx, appt.ProfessionalID)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	if !WithinAvailability(windows, newStart, newDuration) {
		return nil, ErrOutsideAvailability
	}

	newEnd := newStart.Add(time.Duration(newDuration) * time.Minute)

	var updated *Appointment
	err = s.locker.WithLock(ctx, lockScopeProfessional, appt.ProfessionalID, func(lockCtx context.Context) error {
		conflict, err := s.repo.HasOverlap(lockCtx, appt.ProfessionalID, newStart, newEnd, &id)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotConflict
		}

		updated, err = s.repo.UpdateSchedule(lockCtx, id, newStart, newEnd, newDuration, notes, patch.Unlink)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentRescheduled, map[string]any{
		"start":    updated.StartTime,
		"unlinked": patch.Unlink,
	})
	s.dropCalendarEvent(ctx, id)
	s.pushCalendarEvent(ctx, updated, "", "")

	return updated, nil
}

// Cancel moves a scheduled appointment to its cancelled terminal state and
// returns the held session to the subscription.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var cancelled *Appointment
	err = s.locker.WithLock(ctx, lockScopeProfessional, appt.ProfessionalID, func(lockCtx context.Context) error {
		cancelled, err = s.repo.CancelScheduled(lockCtx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{})
	s.dropCalendarEvent(ctx, id)

	return cancelled, nil
}

// Complete marks a scheduled appointment completed, allowed on or after the
// scheduled start. The consumed session is not refunded.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}
	if s.now().Before(appt.StartTime) {
		return nil, ErrInvalidTransition
	}

	completed, err := s.repo.CompleteScheduled(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventAppointmentCompleted, map[string]any{})

	return completed, nil
}

// CreateAvailabilityWindow registers a recurring weekly opening. Windows of
// one professional must not overlap on the same weekday.
func (s *Service) CreateAvailabilityWindow(ctx context.Context, professionalID uuid.UUID, weekday time.Weekday, startMinute, endMinute int) (*AvailabilityWindow, error) {
	if startMinute < 0 || endMinute > 24*60 || startMinute >= endMinute {
		return nil, ErrInvalidWindow
	}
	if _, err := s.repo.GetProfessionalByID(ctx, professionalID); err != nil {
		return nil, err
	}

	candidate := AvailabilityWindow{
		ProfessionalID: professionalID,
		Weekday:        weekday,
		StartMinute:    startMinute,
		EndMinute:      endMinute,
		Active:         true,
	}

	existing, err := s.repo.ListWindows(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	for _, w := range existing {
		if windowsClash(candidate, w) {
			return nil, ErrWindowOverlap
		}
	}

	return s.repo.CreateWindow(ctx, candidate)
}

func (s *Service) RemoveAvailabilityWindow(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivateWindow(ctx, id)
}

func (s *Service) ListAvailability(ctx context.Context, professionalID uuid.UUID) ([]AvailabilityWindow, error) {
	if _, err := s.repo.GetProfessionalByID(ctx, professionalID); err != nil {
		return nil, err
	}
	return s.repo.ListWindows(ctx, professionalID)
}

// GetAppointment retrieves a fully hydrated appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

// ListProfessionalAgenda lists a professional's booked appointments in a range.
func (s *Service) ListProfessionalAgenda(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if _, err := s.repo.GetProfessionalByID(ctx, professionalID); err != nil {
		return nil, err
	}
	return s.repo.ListAppointmentsByProfessional(ctx, professionalID, from, to)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload failed", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log failed",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}

// pushCalendarEvent syncs after commit; failures are logged and suppressed.
func (s *Service) pushCalendarEvent(ctx context.Context, appt *Appointment, professionalName, serviceName string) {
	title := serviceName
	if title == "" {
		title = "Appointment"
	}
	if professionalName != "" {
		title = fmt.Sprintf("%s with %s", title, professionalName)
	}
	ev := calendar.Event{
		AppointmentID: appt.ID,
		Title:         title,
		Start:         appt.StartTime,
		End:           appt.EndTime,
	}
	if err := s.calendar.CreateEvent(ctx, ev); err != nil {
		s.log.Warn("calendar event create failed",
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err))
	}
}

func (s *Service) dropCalendarEvent(ctx context.Context, appointmentID uuid.UUID) {
	if err := s.calendar.DeleteEvent(ctx, appointmentID); err != nil {
		s.log.Warn("calendar event delete failed",
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}
