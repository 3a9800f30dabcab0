package app

import (
	"context"
	"net/http"

	"github.com/casbin/casbin/v3"
	"github.com/cashkite/cashkite/internal/pkg/clock"
	"github.com/cashkite/cashkite/internal/pkg/config"
	"github.com/cashkite/cashkite/internal/pkg/goroutine"
	"github.com/cashkite/cashkite/internal/pkg/hash"
	"github.com/cashkite/cashkite/internal/pkg/idempotency"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/jwt"
	"github.com/cashkite/cashkite/internal/pkg/mail"
	"github.com/cashkite/cashkite/internal/pkg/messaging"
	"github.com/cashkite/cashkite/internal/pkg/pgxcasbin"
	"github.com/cashkite/cashkite/internal/pkg/router"
	"github.com/cashkite/cashkite/internal/pkg/storage"
	"github.com/cashkite/cashkite/internal/pkg/uid"
	"github.com/cashkite/cashkite/internal/pkg/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// closer is a named teardown step executed during Stop.
type closer struct {
	name string
	fn   func(context.Context) error
}

// App owns every process-wide dependency and manages the service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// config and observability
	config config.Config
	ins    instrument.Instrumentation

	// stateless helpers
	goroutine *goroutine.Runner
	validator validator.Validator
	clock     clock.Clocker
	hmac      hash.Hash
	bcrypt    hash.Hash
	uid       uid.NumberID
	oid       uid.StringID
	uuid      uid.StringID
	jwt       jwt.JWT

	// external connections
	dbConn        *pgxpool.Pool
	cacheConn     *redis.Client
	idemp         idempotency.Idempotency
	mail          mail.Mail
	messaging     messaging.Messaging
	storage       storage.Storage
	casbin        *casbin.Enforcer
	casbinWatcher *pgxcasbin.Watcher

	// http surface
	router     *router.Router
	httpServer *http.Server

	closers []closer
}

// New builds a fully wired application. Any failure during wiring logs the
// cause and terminates the process.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{ctx: ctx, cancel: cancel}

	a.initConfig()
	a.initInstrument()
	a.initLibraries()
	a.initJWT()
	a.initDatabase()
	a.initCache()
	a.initMail()
	a.initStorage()
	a.initMessaging()
	a.initCasbin()
	a.initHTTPServer()
	a.initModules()
	a.initClosers()

	return a
}
