package inbound

import (
	"time"

	"github.com/cashkite/cashkite/internal/merchant/usecase"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/router"
)

const exportDateFormat = "2006-01-02"

// HTTPEndpoint exposes HTTP handlers for merchant onboarding and review.
type HTTPEndpoint struct {
	uc uc
}

// Apply files a new merchant application. An Idempotency-Key header makes
// retries of the same submission safe.
func (h *HTTPEndpoint) Apply(r *router.Request) (any, error) {
	var req ApplyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Apply(r.Context(), usecase.ApplyInput{
		BusinessName:   req.BusinessName,
		Email:          req.Email,
		Phone:          req.Phone,
		Category:       req.Category,
		City:           req.City,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		return nil, err
	}

	return ApplyResponse{
		ApplicationID: resp.ApplicationID,
		Status:        resp.Status.String(),
	}, nil
}

// EmailOTPRequest sends a verification code to the application's contact email.
func (h *HTTPEndpoint) EmailOTPRequest(r *router.Request) (any, error) {
	var req EmailOTPRequestRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	if err := h.uc.EmailOTPRequest(r.Context(), usecase.EmailOTPRequestInput{Email: req.Email}); err != nil {
		return nil, err
	}

	return EmailOTPRequestResponse{}, nil
}

// EmailOTPVerify confirms the contact email and submits the application for
// review.
func (h *HTTPEndpoint) EmailOTPVerify(r *router.Request) (any, error) {
	var req EmailOTPVerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.EmailOTPVerify(r.Context(), usecase.EmailOTPVerifyInput{
		Email: req.Email,
		Code:  req.Code,
	})
	if err != nil {
		return nil, err
	}

	return EmailOTPVerifyResponse{
		ApplicationID: resp.ApplicationID,
		Status:        resp.Status.String(),
	}, nil
}

// Review records a staff decision on a submitted application.
func (h *HTTPEndpoint) Review(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	var req ReviewRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Review(r.Context(), usecase.ReviewInput{
		ID:       id,
		Decision: req.Decision,
		Note:     req.Note,
	})
	if err != nil {
		return nil, err
	}

	return ReviewResponse{
		ApplicationID: resp.ApplicationID,
		MerchantID:    resp.MerchantID,
		Status:        resp.Status.String(),
	}, nil
}

// Export renders matching applications to CSV in blob storage and returns the
// object key with a short-lived download link.
func (h *HTTPEndpoint) Export(r *router.Request) (any, error) {
	var req ExportRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	var dateFrom, dateTo time.Time
	if req.DateFrom != "" {
		t, err := time.Parse(exportDateFormat, req.DateFrom)
		if err != nil {
			return nil, goerror.NewInvalidFormat("Invalid date_from")
		}
		dateFrom = t
	}
	if req.DateTo != "" {
		t, err := time.Parse(exportDateFormat, req.DateTo)
		if err != nil {
			return nil, goerror.NewInvalidFormat("Invalid date_to")
		}
		// date_to is inclusive of the named day.
		dateTo = t.AddDate(0, 0, 1)
	}

	resp, err := h.uc.Export(r.Context(), usecase.ExportInput{
		Statuses: req.Statuses,
		DateFrom: dateFrom,
		DateTo:   dateTo,
	})
	if err != nil {
		return nil, err
	}

	return ExportResponse{
		ObjectKey:   resp.ObjectKey,
		DownloadURL: resp.DownloadURL,
		Count:       resp.Count,
	}, nil
}
