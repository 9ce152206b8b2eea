package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carespring/clinic-scheduling/internal/billing"
	"github.com/carespring/clinic-scheduling/internal/entitlement"
	"github.com/carespring/clinic-scheduling/internal/schedule"
)

type CreateAppointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	ProfessionalID  string    `json:"professional_id"`
	ServiceID       string    `json:"service_id"`
	SubscriptionID  *string   `json:"subscription_id,omitempty"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	Start              *time.Time `json:"start,omitempty"`
	DurationMinutes    *int       `json:"duration_minutes,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	UnlinkSubscription bool       `json:"unlink_subscription,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ProfessionalID  uuid.UUID  `json:"professional_id"`
	ServiceID       uuid.UUID  `json:"service_id"`
	SubscriptionID  *uuid.UUID `json:"subscription_id,omitempty"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProfessionalID:  a.ProfessionalID,
		ServiceID:       a.ServiceID,
		SubscriptionID:  a.SubscriptionID,
		Start:           a.StartTime,
		End:             a.EndTime,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Notes:           a.Notes,
	}
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName      string `json:"patient_name,omitempty"`
	ProfessionalName string `json:"professional_name,omitempty"`
	ServiceName      string `json:"service_name,omitempty"`
}

func toAppointmentDetailResponse(d *schedule.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
	}
	if d.Patient != nil {
		resp.PatientName = d.Patient.Name
	}
	if d.Professional != nil {
		resp.ProfessionalName = d.Professional.Name
	}
	if d.Service != nil {
		resp.ServiceName = d.Service.Name
	}
	return resp
}

type CreateWindowRequest struct {
	Weekday int    `json:"weekday"` // 0 = Sunday
	Start   string `json:"start"`   // "09:00"
	End     string `json:"end"`     // "12:00"
}

type WindowResponse struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	Weekday        int       `json:"weekday"`
	Start          string    `json:"start"`
	End            string    `json:"end"`
}

func toWindowResponse(w *schedule.AvailabilityWindow) WindowResponse {
	return WindowResponse{
		ID:             w.ID,
		ProfessionalID: w.ProfessionalID,
		Weekday:        int(w.Weekday),
		Start:          formatClock(w.StartMinute),
		End:            formatClock(w.EndMinute),
	}
}

type CreateSubscriptionRequest struct {
	PatientID          string `json:"patient_id"`
	ServiceID          string `json:"service_id"`
	StartDate          string `json:"start_date"`  // "2006-01-02"
	ExpiryDate         string `json:"expiry_date"` // "2006-01-02"
	ContractedSessions int    `json:"contracted_sessions"`
}

type SubscriptionResponse struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	ServiceID          uuid.UUID `json:"service_id"`
	StartDate          string    `json:"start_date"`
	ExpiryDate         string    `json:"expiry_date"`
	ContractedSessions int       `json:"contracted_sessions"`
	ConsumedSessions   int       `json:"consumed_sessions"`
	Status             string    `json:"status"`
}

func toSubscriptionResponse(s *entitlement.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                 s.ID,
		PatientID:          s.PatientID,
		ServiceID:          s.ServiceID,
		StartDate:          s.StartDate.Format("2006-01-02"),
		ExpiryDate:         s.ExpiryDate.Format("2006-01-02"),
		ContractedSessions: s.ContractedSessions,
		ConsumedSessions:   s.ConsumedSessions,
		Status:             string(s.Status),
	}
}

type ReservationResponse struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Released       bool       `json:"released"`
}

func toReservationResponse(r *entitlement.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:             r.ID,
		SubscriptionID: r.SubscriptionID,
		AppointmentID:  r.AppointmentID,
		CreatedAt:      r.CreatedAt,
		Released:       r.ReleasedAt != nil,
	}
}

type CreatePaymentRequest struct {
	PatientID        string  `json:"patient_id"`
	SubscriptionID   *string `json:"subscription_id,omitempty"`
	AppointmentID    *string `json:"appointment_id,omitempty"`
	AmountCents      int64   `json:"amount_cents"`
	Method           string  `json:"method"`
	InstallmentCount int     `json:"installment_count"`
	DueDate          string  `json:"due_date"` // "2006-01-02"
	GatewayRef       *string `json:"gateway_ref,omitempty"`
}

type UpdatePaymentStatusRequest struct {
	Status        string  `json:"status"`
	GatewayStatus *string `json:"gateway_status,omitempty"`
}

type PaymentResponse struct {
	ID               uuid.UUID             `json:"id"`
	PatientID        uuid.UUID             `json:"patient_id"`
	SubscriptionID   *uuid.UUID            `json:"subscription_id,omitempty"`
	AppointmentID    *uuid.UUID            `json:"appointment_id,omitempty"`
	AmountCents      int64                 `json:"amount_cents"`
	Method           string                `json:"method"`
	Status           string                `json:"status"`
	InstallmentCount int                   `json:"installment_count"`
	DueDate          string                `json:"due_date"`
	GatewayRef       *string               `json:"gateway_ref,omitempty"`
	GatewayStatus    *string               `json:"gateway_status,omitempty"`
	Installments     []InstallmentResponse `json:"installments,omitempty"`
}

type InstallmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	Sequence    int        `json:"sequence"`
	AmountCents int64      `json:"amount_cents"`
	DueDate     string     `json:"due_date"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	Status      string     `json:"status"`
}

func toPaymentResponse(p *billing.Payment, installments []billing.Installment) PaymentResponse {
	resp := PaymentResponse{
		ID:               p.ID,
		PatientID:        p.PatientID,
		SubscriptionID:   p.SubscriptionID,
		AppointmentID:    p.AppointmentID,
		AmountCents:      p.AmountCents,
		Method:           p.Method,
		Status:           string(p.Status),
		InstallmentCount: p.InstallmentCount,
		DueDate:          p.DueDate.Format("2006-01-02"),
		GatewayRef:       p.GatewayRef,
		GatewayStatus:    p.GatewayStatus,
	}
	for i := range installments {
		resp.Installments = append(resp.Installments, toInstallmentResponse(&installments[i]))
	}
	return resp
}

func toInstallmentResponse(i *billing.Installment) InstallmentResponse {
	return InstallmentResponse{
		ID:          i.ID,
		Sequence:    i.Sequence,
		AmountCents: i.AmountCents,
		DueDate:     i.DueDate.Format("2006-01-02"),
		PaidAt:      i.PaidAt,
		Status:      string(i.Status),
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
