package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
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
	"github.com/nats-io/nats.go"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// startupPingTimeout bounds connectivity checks against backing stores.
const startupPingTimeout = 5 * time.Second

// accessModel is the RBAC model. Policies may use "*" as a wildcard for the
// object or the action.
const accessModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// fatal logs a startup failure and terminates the process.
func fatal(msg string, err error, attrs ...any) {
	slog.Error(msg, append([]any{"error", err}, attrs...)...)
	os.Exit(1)
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}

	if os.Getenv("LOCAL") == "true" {
		return "./config/config.yaml"
	}

	return "/config/config.yaml"
}

func (a *App) initConfig() {
	cfg, err := config.NewViper(configPath())
	if err != nil {
		fatal("failed to init config", err)
	}

	//nolint:errcheck,gosec // ignore error
	os.Setenv("TZ", cfg.GetString("app.tz"))

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(context.Background(), &instrument.Config{
		Enabled:          true,
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
	})
	if err != nil {
		fatal("failed to init instrumentation", err)
	}

	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewRunner(a.config.GetInt("app.server.max_goroutine"))
	a.hmac = hash.NewHMACSHA256(a.config.GetString("hash.hmac.secret"))
	a.bcrypt = hash.NewBcrypt(a.config.GetInt("hash.bcrypt.cost"), a.config.GetString("hash.bcrypt.pepper"))

	v10, err := validator.NewV10Validator()
	if err != nil {
		fatal("failed to init validation v10 validator", err)
	}
	a.validator = v10

	snow, err := uid.NewSnowflake()
	if err != nil {
		fatal("failed to init uid number snowflake", err)
	}
	a.uid = snow

	oid, err := uid.NewObjectIDGenerator()
	if err != nil {
		fatal("failed to init uid string object_id", err)
	}
	a.oid = oid
}

func (a *App) initJWT() {
	signer, err := jwt.NewHS512(jwt.Config{
		Secret:     []byte(a.config.GetString("jwt.secret")),
		Issuer:     a.config.GetString("jwt.issuer"),
		Audiences:  a.config.GetArray("jwt.audiences"),
		TTLMinutes: a.config.GetMinute("jwt.ttl_minutes"),
		Clock:      a.clock,
		UUID:       a.uuid,
	})
	if err != nil {
		fatal("failed to init jwt token", err)
	}

	a.jwt = signer
}

func (a *App) initDatabase() {
	pc, err := pgxpool.ParseConfig(a.config.GetString("database.url"))
	if err != nil {
		fatal("failed to parse DB connection string.", err)
	}

	pc.MaxConns = a.config.GetInt32("database.pool.max_conns")
	pc.MinConns = a.config.GetInt32("database.pool.min_conns")
	pc.MaxConnLifetime = a.config.GetSecond("database.pool.max_conn_lifetime_seconds")
	pc.MaxConnIdleTime = a.config.GetSecond("database.pool.max_conn_idle_seconds")
	pc.HealthCheckPeriod = a.config.GetSecond("database.pool.health_check_period_seconds")

	pool, err := pgxpool.NewWithConfig(a.ctx, pc)
	if err != nil {
		fatal("failed to create DB connection pool", err)
	}

	pingCtx, cancel := context.WithTimeout(a.ctx, startupPingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		fatal("failed to ping DB", err)
	}

	a.dbConn = pool
}

func (a *App) initCache() {
	opt, err := redis.ParseURL(a.config.GetString("redis.url"))
	if err != nil {
		fatal("failed to parse redis url", err)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(a.ctx, startupPingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		fatal("failed to init redis", err)
	}

	a.cacheConn = rdb
	a.idemp = idempotency.New(rdb)
}

func (a *App) initMail() {
	m, err := mail.NewSMTP(mail.SMTPConfig{
		Host:     a.config.GetString("mail.host"),
		Port:     a.config.GetInt("mail.port"),
		Username: a.config.GetString("mail.username"),
		Password: a.config.GetString("mail.password"),
		From:     a.config.GetString("mail.from"),
	})
	if err != nil {
		fatal("failed to init mail", err)
	}

	a.mail = m
}

func (a *App) initStorage() {
	driver := strings.TrimSpace(a.config.GetString("storage.driver"))

	var gcsClient *gcs.Client
	if driver == storage.DriverGCS {
		gcsClient = a.newGCSClient()
	}

	stg, err := storage.NewFromDriver(a.ctx, driver, storage.FactoryOptions{
		S3: storage.S3Options{
			Region:       strings.TrimSpace(a.config.GetString("storage.s3.region")),
			Endpoint:     strings.TrimSpace(a.config.GetString("storage.s3.endpoint")),
			AccessKey:    strings.TrimSpace(a.config.GetString("storage.s3.access_key")),
			SecretKey:    strings.TrimSpace(a.config.GetString("storage.s3.secret_key")),
			SessionToken: strings.TrimSpace(a.config.GetString("storage.s3.session_token")),
			UsePathStyle: a.config.GetBool("storage.s3.use_path_style"),
		},
		GCS: storage.GCSOptions{
			Client:         gcsClient,
			GoogleAccessID: strings.TrimSpace(a.config.GetString("storage.gcs.signer_access_id")),
			PrivateKey:     a.config.GetBinary("storage.gcs.signer_private_key"),
		},
		MinIO: storage.MinIOOptions{
			Region:       strings.TrimSpace(a.config.GetString("storage.minio.region")),
			Endpoint:     strings.TrimSpace(a.config.GetString("storage.minio.endpoint")),
			AccessKey:    strings.TrimSpace(a.config.GetString("storage.minio.access_key")),
			SecretKey:    strings.TrimSpace(a.config.GetString("storage.minio.secret_key")),
			SessionToken: strings.TrimSpace(a.config.GetString("storage.minio.session_token")),
			UseSSL:       a.config.GetBool("storage.minio.use_ssl"),
		},
	})
	if err != nil {
		fatal("failed to init storage", err)
	}

	a.storage = stg
}

// newGCSClient builds a GCS client from the optional settings under
// storage.gcs. It returns nil when no setting is present so the driver can
// fall back to ambient credentials.
func (a *App) newGCSClient() *gcs.Client {
	opts := []option.ClientOption{}

	if a.config.GetBool("storage.gcs.without_auth") {
		opts = append(opts, option.WithoutAuthentication())
	}

	if file := strings.TrimSpace(a.config.GetString("storage.gcs.credentials_file")); file != "" {
		// #nosec G304 -- path is from trusted config file.
		raw, err := os.ReadFile(file)
		if err != nil {
			fatal("failed to read gcs credentials file", err)
		}

		opts = append(opts, a.gcsCredentialOption(raw))
	}

	if raw := a.config.GetBinary("storage.gcs.credentials_json"); len(raw) > 0 {
		opts = append(opts, a.gcsCredentialOption(raw))
	}

	if v := strings.TrimSpace(a.config.GetString("storage.gcs.endpoint")); v != "" {
		opts = append(opts, option.WithEndpoint(v))
	}

	if v := strings.TrimSpace(a.config.GetString("storage.gcs.user_agent")); v != "" {
		opts = append(opts, option.WithUserAgent(v))
	}

	if len(opts) == 0 {
		return nil
	}

	client, err := gcs.NewClient(a.ctx, opts...)
	if err != nil {
		fatal("failed to init gcs client", err)
	}

	return client
}

func (a *App) gcsCredentialOption(raw []byte) option.ClientOption {
	creds, err := google.CredentialsFromJSON(a.ctx, raw, gcs.ScopeFullControl)
	if err != nil {
		fatal("failed to parse gcs credentials", err)
	}

	return option.WithCredentials(creds)
}

func (a *App) initMessaging() {
	driver := a.config.GetString("messaging.driver")

	client, err := messaging.NewFromDriver(a.ctx, driver, messaging.FactoryOptions{
		NSQ: messaging.NSQConfig{
			ProducerAddr:   a.config.GetString("messaging.nsq.producer_addr"),
			ProducerConfig: a.nsqProducerConfig(),
		},
		NATS: messaging.NATSConfig{
			URL:     a.config.GetString("messaging.nats.url"),
			Options: a.natsOptions(),
		},
	})
	if err != nil {
		fatal("failed to init messaging", err, "driver", driver)
	}

	a.messaging = client
}

func (a *App) nsqProducerConfig() *nsq.Config {
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = a.config.GetInt("messaging.nsq.producer_config.max_in_flight")
	cfg.DialTimeout = a.config.GetSecond("messaging.nsq.producer_config.dial_timeout_seconds")
	cfg.ReadTimeout = a.config.GetSecond("messaging.nsq.producer_config.read_timeout_seconds")
	cfg.WriteTimeout = a.config.GetSecond("messaging.nsq.producer_config.write_timeout_seconds")

	return cfg
}

func (a *App) natsOptions() []nats.Option {
	return []nats.Option{
		nats.Name(a.config.GetString("messaging.nats.name")),
		nats.MaxReconnects(a.config.GetInt("messaging.nats.max_reconnects")),
		nats.Timeout(a.config.GetSecond("messaging.nats.timeout_seconds")),
		nats.ReconnectWait(a.config.GetSecond("messaging.nats.reconnect_wait_seconds")),
		nats.PingInterval(a.config.GetSecond("messaging.nats.ping_interval_seconds")),
		nats.MaxPingsOutstanding(a.config.GetInt("messaging.nats.max_pings_outstanding")),
		nats.RetryOnFailedConnect(a.config.GetBool("messaging.nats.retry_on_failed_connect")),
	}
}

func (a *App) initCasbin() {
	m, err := model.NewModelFromString(accessModel)
	if err != nil {
		fatal("failed to create model casbin", err)
	}

	adapter, err := pgxcasbin.NewAdapter(a.ctx, a.dbConn, pgxcasbin.WithTableName("access_rules"))
	if err != nil {
		fatal("failed to create adapter casbin", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		fatal("failed to init casbin", err)
	}

	watcher, err := pgxcasbin.NewWatcherWithPool(a.ctx, a.dbConn, pgxcasbin.OptionWatcher{
		NotifySelf: true,
		Channel:    "access_rules_watcher",
		LocalID:    a.uuid.Generate(),
	})
	if err != nil {
		fatal("failed to create watcher casbin", err)
	}

	if err := watcher.SetUpdateCallback(pgxcasbin.DefaultCallback(enforcer)); err != nil {
		fatal("failed to create watcher fallback casbin", err)
	}

	if err := enforcer.SetWatcher(watcher); err != nil {
		fatal("failed to set watcher casbin", err)
	}

	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoNotifyWatcher(true)

	a.casbin = enforcer
	a.casbinWatcher = watcher
}

func (a *App) initHTTPServer() {
	a.router = router.NewRouter(router.Config{
		Config:     a.config,
		UUID:       a.uuid,
		JWT:        a.jwt,
		Instrument: a.ins,
		Enforcer:   a.casbin,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           handler,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
}

func (a *App) initClosers() {
	a.closers = []closer{
		{"Instrument", func(ctx context.Context) error { return a.ins.Shutdown(ctx) }},
		{"Messaging", func(context.Context) error { return a.messaging.Close() }},
		{"CasbinWatcher", func(context.Context) error {
			if a.casbinWatcher != nil {
				a.casbinWatcher.Close()
			}

			return nil
		}},
		{"Redis", func(context.Context) error { return a.cacheConn.Close() }},
		{"Database", func(context.Context) error {
			a.dbConn.Close()

			return nil
		}},
		{"Storage", func(context.Context) error { return a.storage.Close() }},
		{"Config", func(context.Context) error { return a.config.Close() }},
	}
}
