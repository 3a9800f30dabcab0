package inbound

import (
	"context"

	"github.com/cashkite/cashkite/internal/merchant/usecase"
	"github.com/cashkite/cashkite/internal/pkg/router"
)

type uc interface {
	Apply(ctx context.Context, in usecase.ApplyInput) (*usecase.ApplyOutput, error)
	EmailOTPRequest(ctx context.Context, in usecase.EmailOTPRequestInput) error
	EmailOTPVerify(ctx context.Context, in usecase.EmailOTPVerifyInput) (*usecase.EmailOTPVerifyOutput, error)

	Review(ctx context.Context, in usecase.ReviewInput) (*usecase.ReviewOutput, error)
	Export(ctx context.Context, in usecase.ExportInput) (*usecase.ExportOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Merchant onboarding
	r.POST("/api/v1/merchant/applications", end.Apply)
	r.POST("/api/v1/merchant/applications/otp/request", end.EmailOTPRequest)
	r.POST("/api/v1/merchant/applications/otp/verify", end.EmailOTPVerify)

	// Staff only (need authenticated)
	r.PATCH("/api/v1/merchant/applications/:id/review", end.Review)
	r.POST("/api/v1/merchant/applications/export", end.Export)
}
