package inbound

import (
	"github.com/cashkite/cashkite/internal/auth/usecase"
	"github.com/cashkite/cashkite/internal/pkg/router"
)

// HTTPEndpoint exposes HTTP handlers for phone OTP login and the profile.
type HTTPEndpoint struct {
	uc uc
}

// OTPRequest sends a login code to the given phone number. The response is
// the same whether or not an account exists for it.
func (h *HTTPEndpoint) OTPRequest(r *router.Request) (any, error) {
	var req OTPRequestRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	if err := h.uc.OTPRequest(r.Context(), usecase.OTPRequestInput{Phone: req.Phone}); err != nil {
		return nil, err
	}

	return OTPRequestResponse{}, nil
}

// OTPLogin exchanges a phone number and code for an access token, creating
// the account on first login.
func (h *HTTPEndpoint) OTPLogin(r *router.Request) (any, error) {
	var req OTPLoginRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.OTPLogin(r.Context(), usecase.OTPLoginInput{
		Phone: req.Phone,
		Code:  req.Code,
		Email: req.Email,
	})
	if err != nil {
		return nil, err
	}

	return OTPLoginResponse{
		AccessToken:     resp.AccessToken,
		UserID:          resp.UserID,
		ProfileComplete: resp.ProfileComplete,
	}, nil
}

// Profile returns the authenticated caller's account.
func (h *HTTPEndpoint) Profile(r *router.Request) (any, error) {
	resp, err := h.uc.Profile(r.Context(), usecase.ProfileInput{})
	if err != nil {
		return nil, err
	}

	return ProfileResponse{
		ID:              resp.ID,
		Phone:           resp.Phone,
		Email:           resp.Email,
		FullName:        resp.FullName,
		Role:            resp.Role,
		Status:          resp.Status,
		PhoneVerified:   resp.PhoneVerified,
		ProfileComplete: resp.ProfileComplete,
	}, nil
}
