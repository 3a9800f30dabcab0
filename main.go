package main

import (
	"context"
	"time"

	"github.com/cashkite/cashkite/internal/app"
)

const shutdownGrace = 10 * time.Second

// @title           CashKite API
// @version         1.0
// @description     CashKite provides phone-based sign in, merchant onboarding and review APIs for the cashback app.
// @termsOfService  https://cashkite.app/terms
// @contact.name    Contact Support
// @contact.url     https://cashkite.app/contact
// @contact.email   support@cashkite.app
// @license.name    MIT
// @license.url     https://mit-license.org/
// @server          http://localhost:8080
// @server          https://localhost:8080
// @securityDefinitions.apikey  BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT.
func main() {
	service := app.New()

	// Start returns a channel closed on SIGINT/SIGTERM.
	<-service.Start()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	service.Stop(ctx)
}
