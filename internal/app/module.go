package app

import (
	"github.com/cashkite/cashkite/internal/auth"
	"github.com/cashkite/cashkite/internal/merchant"
)

// initModules registers the business modules that are enabled in config.
func (a *App) initModules() {
	if a.config.GetBool("modules.auth.enabled") {
		a.registerAuth()
	}

	if a.config.GetBool("modules.merchant.enabled") {
		a.registerMerchant()
	}
}

func (a *App) registerAuth() {
	err := auth.New(auth.Dependency{
		Ctx:        a.ctx,
		DBConn:     a.dbConn,
		Goroutine:  a.goroutine,
		Router:     a.router,
		Messaging:  a.messaging,
		Config:     a.config,
		Instrument: a.ins,
		UID:        a.uid,
		OID:        a.oid,
		HMAC:       a.hmac,
		Bcrypt:     a.bcrypt,
		Clock:      a.clock,
		Validator:  a.validator,
		JWT:        a.jwt,
	})
	if err != nil {
		fatal("failed to init module auth", err)
	}
}

func (a *App) registerMerchant() {
	err := merchant.New(merchant.Dependency{
		DBConn:      a.dbConn,
		CacheConn:   a.cacheConn,
		Router:      a.router,
		Messaging:   a.messaging,
		Mail:        a.mail,
		Storage:     a.storage,
		Config:      a.config,
		Instrument:  a.ins,
		Idempotency: a.idemp,
		UID:         a.uid,
		UUID:        a.uuid,
		HMAC:        a.hmac,
		Clock:       a.clock,
		Validator:   a.validator,
		Enforcer:    a.casbin,
	})
	if err != nil {
		fatal("failed to init module merchant", err)
	}
}
