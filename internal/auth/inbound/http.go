package inbound

import (
	"context"

	"github.com/cashkite/cashkite/internal/auth/usecase"
	"github.com/cashkite/cashkite/internal/pkg/router"
)

type uc interface {
	OTPRequest(ctx context.Context, in usecase.OTPRequestInput) error
	OTPLogin(ctx context.Context, in usecase.OTPLoginInput) (*usecase.OTPLoginOutput, error)

	Profile(ctx context.Context, in usecase.ProfileInput) (*usecase.ProfileOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Phone OTP login
	r.POST("/api/v1/auth/otp/request", end.OTPRequest)
	r.POST("/api/v1/auth/otp/login", end.OTPLogin)

	// Account (need authenticated)
	r.GET("/api/v1/auth/profile", end.Profile)
}
