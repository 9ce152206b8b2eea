package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carespring/clinic-scheduling/internal/billing"
	"github.com/carespring/clinic-scheduling/internal/entitlement"
)

func createSubscriptionHandler(ledger *entitlement.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		startDate, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}
		expiryDate, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_expiry_date", "expiry_date must be YYYY-MM-DD")
			return
		}
		if req.ContractedSessions < 1 {
			writeError(w, http.StatusBadRequest, "invalid_contracted_sessions", "contracted_sessions must be at least 1")
			return
		}

		sub, err := ledger.CreateSubscription(r.Context(), patientID, serviceID, startDate, expiryDate, req.ContractedSessions)
		if err != nil {
			handleEntitlementError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
	}
}

func getSubscriptionHandler(ledger *entitlement.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		sub, err := ledger.GetSubscription(r.Context(), id)
		if err != nil {
			handleEntitlementError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
	}
}

func listSubscriptionsHandler(ledger *entitlement.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id query parameter must be a valid UUID")
			return
		}

		subs, err := ledger.ListSubscriptionsByPatient(r.Context(), patientID)
		if err != nil {
			handleEntitlementError(w, err)
			return
		}

		resp := make([]SubscriptionResponse, 0, len(subs))
		for i := range subs {
			resp = append(resp, toSubscriptionResponse(&subs[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelSubscriptionHandler(ledger *entitlement.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		sub, err := ledger.CancelSubscription(r.Context(), id)
		if err != nil {
			handleEntitlementError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
	}
}

// reserveSessionHandler consumes a session outside of appointment booking,
// for manual billing adjustments.
func reserveSessionHandler(ledger *entitlement.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		res, err := ledger.Reserve(r.Context(), id, time.Now())
		if err != nil {
			handleEntitlementError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toReservationResponse(res))
	}
}

func releaseReservationHandler(ledger *entitlement.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		if err := ledger.Release(r.Context(), id); err != nil {
			handleEntitlementError(w, err)
			return
		}

		res, err := ledger.GetReservation(r.Context(), id)
		if err != nil {
			handleEntitlementError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func createPaymentHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		dueDate, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_due_date", "due_date must be YYYY-MM-DD")
			return
		}

		var subscriptionID, appointmentID *uuid.UUID
		if req.SubscriptionID != nil {
			id, err := uuid.Parse(*req.SubscriptionID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_subscription_id", "subscription_id must be a valid UUID")
				return
			}
			subscriptionID = &id
		}
		if req.AppointmentID != nil {
			id, err := uuid.Parse(*req.AppointmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
				return
			}
			appointmentID = &id
		}

		payment, installments, err := svc.CreatePayment(r.Context(), billing.CreatePaymentParams{
			PatientID:      patientID,
			SubscriptionID: subscriptionID,
			AppointmentID:  appointmentID,
			AmountCents:    req.AmountCents,
			Method:         req.Method,
			DueDate:        dueDate,
			GatewayRef:     req.GatewayRef,
		}, req.InstallmentCount)
		if err != nil {
			handleBillingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPaymentResponse(payment, installments))
	}
}

func getPaymentHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		payment, installments, err := svc.GetPayment(r.Context(), id)
		if err != nil {
			handleBillingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(payment, installments))
	}
}

func listPaymentsHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id query parameter must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		payments, err := svc.ListPaymentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleBillingError(w, err)
			return
		}

		resp := make([]PaymentResponse, 0, len(payments))
		for i := range payments {
			resp = append(resp, toPaymentResponse(&payments[i], nil))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updatePaymentStatusHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdatePaymentStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		to := billing.PaymentStatus(req.Status)
		switch to {
		case billing.PaymentPaid, billing.PaymentCancelled, billing.PaymentFailed:
		default:
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be paid, cancelled or failed")
			return
		}

		payment, err := svc.UpdateStatus(r.Context(), id, to, req.GatewayStatus)
		if err != nil {
			handleBillingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(payment, nil))
	}
}

func payInstallmentHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		inst, err := svc.PayInstallment(r.Context(), id, time.Now())
		if err != nil {
			handleBillingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toInstallmentResponse(inst))
	}
}

func handleEntitlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entitlement.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "subscription_not_found", err.Error())
	case errors.Is(err, entitlement.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation_not_found", err.Error())
	case errors.Is(err, entitlement.ErrSubscriptionExpired):
		writeError(w, http.StatusConflict, "subscription_expired", err.Error())
	case errors.Is(err, entitlement.ErrSubscriptionExhausted):
		writeError(w, http.StatusConflict, "subscription_exhausted", err.Error())
	case errors.Is(err, entitlement.ErrSubscriptionInactive):
		writeError(w, http.StatusConflict, "subscription_inactive", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, billing.ErrInstallmentNotFound):
		writeError(w, http.StatusNotFound, "installment_not_found", err.Error())
	case errors.Is(err, billing.ErrInvalidInstallmentCount):
		writeError(w, http.StatusBadRequest, "invalid_installment_count", err.Error())
	case errors.Is(err, billing.ErrInvalidPaymentTransition):
		writeError(w, http.StatusConflict, "invalid_payment_transition", err.Error())
	case errors.Is(err, billing.ErrInvalidInstallmentTransition):
		writeError(w, http.StatusConflict, "invalid_installment_transition", err.Error())
	case errors.Is(err, billing.ErrDuplicatePayment):
		writeError(w, http.StatusConflict, "duplicate_payment", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
