package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/config"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/idempotency"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/jwt"
	"github.com/cashkite/cashkite/internal/pkg/otp"
	"github.com/cashkite/cashkite/internal/pkg/storage"
	"github.com/cashkite/cashkite/internal/pkg/validator"
	"github.com/cashkite/cashkite/internal/shared/constant"
)

type fakeRepo struct {
	mu   sync.Mutex
	apps map[int64]*entity.Application

	created   []entity.NewApplication
	submitted []int64
	profiles  map[int64]entity.Profile
	notes     map[int64]string

	pages      [][]entity.Application
	totalCount int64
	listCalls  int
	lastFilter entity.ApplicationListFilterData
	offsets    []int32

	getErr    error
	createErr error
	listErr   error
	submitErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		apps:     map[int64]*entity.Application{},
		profiles: map[int64]entity.Profile{},
		notes:    map[int64]string{},
	}
}

func (f *fakeRepo) GetLiveApplicationByEmail(_ context.Context, email string) (*entity.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	for _, app := range f.apps {
		if app.Email == email && !app.IsDecided() {
			cp := *app
			return &cp, nil
		}
	}

	return nil, goerror.ErrNotFound
}

func (f *fakeRepo) GetApplicationByID(_ context.Context, id int64) (*entity.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	app, ok := f.apps[id]
	if !ok {
		return nil, goerror.ErrNotFound
	}

	cp := *app
	return &cp, nil
}

func (f *fakeRepo) GetApplicationList(_ context.Context, filter entity.ApplicationListFilterData) ([]entity.Application, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, 0, f.listErr
	}

	f.lastFilter = filter
	f.offsets = append(f.offsets, filter.Page)

	var page []entity.Application
	if f.listCalls < len(f.pages) {
		page = f.pages[f.listCalls]
	}
	f.listCalls++

	return page, f.totalCount, nil
}

func (f *fakeRepo) CreateApplication(_ context.Context, app entity.NewApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}

	for _, existing := range f.apps {
		if existing.Email == app.Email && !existing.IsDecided() {
			return goerror.ErrConflict
		}
	}

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	f.apps[app.ID] = &entity.Application{
		ID:           app.ID,
		BusinessName: app.BusinessName,
		Email:        app.Email,
		Phone:        app.Phone,
		Category:     app.Category,
		City:         app.City,
		Status:       app.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.created = append(f.created, app)

	return nil
}

func (f *fakeRepo) MarkApplicationSubmitted(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return f.submitErr
	}

	app, ok := f.apps[id]
	if !ok || app.Status != entity.ApplicationStatusPendingVerification {
		return goerror.ErrNotFound
	}

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	app.Status = entity.ApplicationStatusSubmitted
	app.EmailVerifiedAt = &now
	f.submitted = append(f.submitted, id)

	return nil
}

func (f *fakeRepo) ApproveApplication(_ context.Context, id int64, note string, profile entity.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	app, ok := f.apps[id]
	if !ok || app.Status != entity.ApplicationStatusSubmitted {
		return goerror.ErrNotFound
	}

	app.Status = entity.ApplicationStatusApproved
	f.profiles[id] = profile
	f.notes[id] = note

	return nil
}

func (f *fakeRepo) RejectApplication(_ context.Context, id int64, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	app, ok := f.apps[id]
	if !ok || app.Status != entity.ApplicationStatusSubmitted {
		return goerror.ErrNotFound
	}

	app.Status = entity.ApplicationStatusRejected
	f.notes[id] = note

	return nil
}

type fakeEngine struct {
	requestErr error
	verifyErr  error

	requested []string
	verified  []string
}

func (f *fakeEngine) RequestCode(_ context.Context, identifier string) error {
	if f.requestErr != nil {
		return f.requestErr
	}

	f.requested = append(f.requested, identifier)
	return nil
}

func (f *fakeEngine) VerifyCode(_ context.Context, identifier, _ string) error {
	if f.verifyErr != nil {
		return f.verifyErr
	}

	f.verified = append(f.verified, identifier)
	return nil
}

type fakeMQ struct {
	err       error
	published []ApplicationDecidedEvent
}

func (f *fakeMQ) PublishApplicationDecided(_ context.Context, msg ApplicationDecidedEvent) error {
	if f.err != nil {
		return f.err
	}

	f.published = append(f.published, msg)
	return nil
}

type fakeIdemp struct {
	mu     sync.Mutex
	states map[string]idempotency.State
}

func newFakeIdemp() *fakeIdemp {
	return &fakeIdemp{states: map[string]idempotency.State{}}
}

func (f *fakeIdemp) Acquire(_ context.Context, key string, _ time.Duration) (idempotency.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.states[key]; ok {
		return st, nil
	}

	f.states[key] = idempotency.StateInProgress
	return idempotency.StateNone, nil
}

func (f *fakeIdemp) MarkCompleted(_ context.Context, key string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.states[key] = idempotency.StateCompleted
	return nil
}

func (f *fakeIdemp) MarkFailed(_ context.Context, key string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.states[key] = idempotency.StateFailed
	return nil
}

func (f *fakeIdemp) Exec(ctx context.Context, key string, fn func(context.Context) error, _ ...idempotency.Option) error {
	state, err := f.Acquire(ctx, key, time.Minute)
	if err != nil {
		return err
	}

	switch state {
	case idempotency.StateInProgress:
		return idempotency.ErrAlreadyInProgress
	case idempotency.StateCompleted:
		return idempotency.ErrAlreadyCompleted
	case idempotency.StateFailed:
		return idempotency.ErrAlreadyFailed
	}

	if err := fn(ctx); err != nil {
		_ = f.MarkFailed(ctx, key, time.Minute)
		return err
	}

	return f.MarkCompleted(ctx, key, time.Minute)
}

type fakeStorage struct {
	putErr     error
	presignErr error

	bucket      string
	key         string
	contentType string
	metadata    map[string]string
	body        []byte
}

func (f *fakeStorage) Close() error { return nil }

func (f *fakeStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if f.putErr != nil {
		return storage.ObjectInfo{}, f.putErr
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	f.bucket = bucket
	f.key = key
	f.contentType = opts.ContentType
	f.metadata = opts.Metadata
	f.body = body

	return storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(body))}, nil
}

func (f *fakeStorage) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}

	return "https://signed.example/" + bucket + "/" + key, nil
}

type fakeConfig struct {
	config.Config

	strings map[string]string
	minutes map[string]time.Duration
}

func (f fakeConfig) GetString(key string) string { return f.strings[key] }

func (f fakeConfig) GetMinute(key string) time.Duration { return f.minutes[key] }

type seqNumberID struct {
	n int64
}

func (s *seqNumberID) Generate() int64 {
	s.n++
	return s.n
}

type staticStringID struct {
	v string
}

func (s *staticStringID) Generate() string {
	return s.v
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func newTestEnforcer(t *testing.T) *casbin.Enforcer {
	t.Helper()

	const rbacModel = `
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

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		t.Fatalf("new casbin model: %v", err)
	}

	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		t.Fatalf("new casbin enforcer: %v", err)
	}

	if _, err := enf.AddPolicy("staff", constant.PermMerchantApplications, "*"); err != nil {
		t.Fatalf("add casbin policy: %v", err)
	}

	return enf
}

type fixture struct {
	repo   *fakeRepo
	engine *fakeEngine
	mq     *fakeMQ
	idemp  *fakeIdemp
	store  *fakeStorage
	uc     *Usecase
}

func newTestUsecase(t *testing.T) *fixture {
	t.Helper()

	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	fx := &fixture{
		repo:   newFakeRepo(),
		engine: &fakeEngine{},
		mq:     &fakeMQ{},
		idemp:  newFakeIdemp(),
		store:  &fakeStorage{},
	}

	fx.uc = New(Dependency{
		RepoDB:        fx.repo,
		RepoMessaging: fx.mq,
		OTP:           fx.engine,
		Idempotency:   fx.idemp,
		Validator:     v,
		Config: fakeConfig{
			strings: map[string]string{"modules.merchant.export_bucket": "cashkite-exports"},
			minutes: map[string]time.Duration{"modules.merchant.export_url_ttl_minutes": 15 * time.Minute},
		},
		Storage:    fx.store,
		UID:        &seqNumberID{n: 500},
		UUID:       &staticStringID{v: "0f2a7d2e"},
		Clock:      &fixedClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		Instrument: instrument.NewNoop(),
		Enforcer:   newTestEnforcer(t),
	})

	return fx
}

func staffContext() context.Context {
	return jwt.SetAuth(context.Background(), jwt.Claims{UserID: 42, UserPhone: "+6281200000042", UserRole: "staff"})
}

func seedApplication(id int64, email string, status entity.ApplicationStatus) *entity.Application {
	created := time.Date(2025, 5, 19, 7, 0, 0, 0, time.UTC)
	app := &entity.Application{
		ID:           id,
		BusinessName: "Warung Kopi Kite",
		Email:        email,
		Phone:        "+6281234567890",
		Category:     "Food and Beverage",
		City:         "Bandung",
		Status:       status,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	if status != entity.ApplicationStatusPendingVerification {
		verified := created.Add(30 * time.Minute)
		app.EmailVerifiedAt = &verified
	}

	return app
}

func validApply() ApplyInput {
	return ApplyInput{
		BusinessName: "Warung Kopi Kite",
		Email:        "owner@example.com",
		Phone:        "+6281234567890",
		Category:     "Food and Beverage",
		City:         "Bandung",
	}
}

func assertCode(t *testing.T, err error, want goerror.Code) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want.String())
	}

	var gerr *goerror.Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected structured error, got %T: %v", err, err)
	}

	if gerr.Code() != want {
		t.Fatalf("error code = %s, want %s", gerr.Code().String(), want.String())
	}
}

func TestApplyCreatesPendingApplication(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	in := validApply()
	in.BusinessName = " Warung Kopi Kite "
	in.Email = " Owner@Example.COM "
	in.Phone = "+62 812-3456-7890"

	// Act
	out, err := fx.uc.Apply(context.Background(), in)

	// Assert
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if out.ApplicationID != 501 {
		t.Fatalf("application id = %d, want 501", out.ApplicationID)
	}

	if out.Status != entity.ApplicationStatusPendingVerification {
		t.Fatalf("status = %s, want %s", out.Status, entity.ApplicationStatusPendingVerification)
	}

	if len(fx.repo.created) != 1 {
		t.Fatalf("created applications = %d, want 1", len(fx.repo.created))
	}

	got := fx.repo.created[0]
	if got.Email != "owner@example.com" {
		t.Fatalf("stored email = %q, want %q", got.Email, "owner@example.com")
	}
	if got.Phone != "+6281234567890" {
		t.Fatalf("stored phone = %q, want %q", got.Phone, "+6281234567890")
	}
	if got.BusinessName != "Warung Kopi Kite" {
		t.Fatalf("stored business name = %q, want %q", got.BusinessName, "Warung Kopi Kite")
	}
}

func TestApplyRejectsMalformedInput(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	in := validApply()
	in.Email = "not-an-email"

	// Act
	_, err := fx.uc.Apply(context.Background(), in)

	// Assert
	assertCode(t, err, goerror.CodeInvalidInput)

	if len(fx.repo.created) != 0 {
		t.Fatalf("no application should be created for malformed input, got %d", len(fx.repo.created))
	}
}

func TestApplyDuplicateEmailConflict(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[7] = seedApplication(7, "owner@example.com", entity.ApplicationStatusPendingVerification)

	// Act
	_, err := fx.uc.Apply(context.Background(), validApply())

	// Assert
	assertCode(t, err, goerror.CodeConflict)

	if len(fx.repo.created) != 0 {
		t.Fatalf("no second application should be created, got %d", len(fx.repo.created))
	}
}

func TestApplyDecidedEmailCanApplyAgain(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[7] = seedApplication(7, "owner@example.com", entity.ApplicationStatusRejected)

	// Act
	out, err := fx.uc.Apply(context.Background(), validApply())

	// Assert
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if out.ApplicationID != 501 {
		t.Fatalf("application id = %d, want 501", out.ApplicationID)
	}
}

func TestApplyHonorsIdempotencyKey(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	in := validApply()
	in.IdempotencyKey = "ord-7f3a"

	// Act
	first, err := fx.uc.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	_, err = fx.uc.Apply(context.Background(), in)

	// Assert
	assertCode(t, err, goerror.CodeConflict)

	if first.ApplicationID != 501 {
		t.Fatalf("application id = %d, want 501", first.ApplicationID)
	}

	if len(fx.repo.created) != 1 {
		t.Fatalf("replay must not create a second application, got %d", len(fx.repo.created))
	}

	if st := fx.idemp.states["merchant:apply:ord-7f3a"]; st != idempotency.StateCompleted {
		t.Fatalf("idempotency state = %s, want %s", st, idempotency.StateCompleted)
	}
}

func TestApplyFailedKeyRejectsRetry(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.createErr = errors.New("connection refused")
	in := validApply()
	in.IdempotencyKey = "ord-9c1d"

	// Act
	_, err := fx.uc.Apply(context.Background(), in)
	assertCode(t, err, goerror.CodeInternal)

	fx.repo.createErr = nil
	_, err = fx.uc.Apply(context.Background(), in)

	// Assert
	assertCode(t, err, goerror.CodeConflict)

	if st := fx.idemp.states["merchant:apply:ord-9c1d"]; st != idempotency.StateFailed {
		t.Fatalf("idempotency state = %s, want %s", st, idempotency.StateFailed)
	}

	if len(fx.repo.created) != 0 {
		t.Fatalf("a burned key must not create an application, got %d", len(fx.repo.created))
	}
}

func TestEmailOTPRequestIssuesCode(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[7] = seedApplication(7, "owner@example.com", entity.ApplicationStatusPendingVerification)

	// Act
	err := fx.uc.EmailOTPRequest(context.Background(), EmailOTPRequestInput{Email: " Owner@Example.com "})

	// Assert
	if err != nil {
		t.Fatalf("EmailOTPRequest: %v", err)
	}

	if len(fx.engine.requested) != 1 || fx.engine.requested[0] != "owner@example.com" {
		t.Fatalf("requested identifiers = %v, want [owner@example.com]", fx.engine.requested)
	}
}

func TestEmailOTPRequestUnknownEmail(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)

	// Act
	err := fx.uc.EmailOTPRequest(context.Background(), EmailOTPRequestInput{Email: "ghost@example.com"})

	// Assert
	assertCode(t, err, goerror.CodeNotFound)

	if len(fx.engine.requested) != 0 {
		t.Fatalf("no code should be issued without an application, got %v", fx.engine.requested)
	}
}

func TestEmailOTPRequestAlreadyVerified(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[7] = seedApplication(7, "owner@example.com", entity.ApplicationStatusSubmitted)

	// Act
	err := fx.uc.EmailOTPRequest(context.Background(), EmailOTPRequestInput{Email: "owner@example.com"})

	// Assert
	assertCode(t, err, goerror.CodeConflict)

	if len(fx.engine.requested) != 0 {
		t.Fatalf("no code should be issued for a verified email, got %v", fx.engine.requested)
	}
}

func TestEmailOTPRequestMapsEngineErrors(t *testing.T) {
	cases := []struct {
		name      string
		engineErr error
		wantCode  goerror.Code
	}{
		{name: "cooldown", engineErr: otp.ErrCooldown, wantCode: goerror.CodeTooManyRequest},
		{name: "resend limit", engineErr: otp.ErrResendLimit, wantCode: goerror.CodeTooManyRequest},
		{name: "delivery down", engineErr: fmt.Errorf("%w: smtp gone", otp.ErrDelivery), wantCode: goerror.CodeUnavailable},
		{name: "store failure", engineErr: errors.New("connection refused"), wantCode: goerror.CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			fx := newTestUsecase(t)
			fx.repo.apps[7] = seedApplication(7, "owner@example.com", entity.ApplicationStatusPendingVerification)
			fx.engine.requestErr = tc.engineErr

			// Act
			err := fx.uc.EmailOTPRequest(context.Background(), EmailOTPRequestInput{Email: "owner@example.com"})

			// Assert
			assertCode(t, err, tc.wantCode)
		})
	}
}

func TestEmailOTPVerifySubmitsApplication(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[7] = seedApplication(7, "owner@example.com", entity.ApplicationStatusPendingVerification)

	// Act
	out, err := fx.uc.EmailOTPVerify(context.Background(), EmailOTPVerifyInput{Email: "Owner@example.com", Code: "482913"})

	// Assert
	if err != nil {
		t.Fatalf("EmailOTPVerify: %v", err)
	}

	if out.ApplicationID != 7 {
		t.Fatalf("application id = %d, want 7", out.ApplicationID)
	}

	if out.Status != entity.ApplicationStatusSubmitted {
		t.Fatalf("status = %s, want %s", out.Status, entity.ApplicationStatusSubmitted)
	}

	if len(fx.engine.verified) != 1 || fx.engine.verified[0] != "owner@example.com" {
		t.Fatalf("verified identifiers = %v, want [owner@example.com]", fx.engine.verified)
	}

	app := fx.repo.apps[7]
	if app.Status != entity.ApplicationStatusSubmitted || app.EmailVerifiedAt == nil {
		t.Fatalf("application = %+v, want submitted with verified email", app)
	}
}

func TestEmailOTPVerifyMapsEngineErrors(t *testing.T) {
	cases := []struct {
		name      string
		engineErr error
		wantCode  goerror.Code
	}{
		{name: "no pending code", engineErr: otp.ErrNotFound, wantCode: goerror.CodeNotFound},
		{name: "expired", engineErr: otp.ErrExpired, wantCode: goerror.CodeInvalidInput},
		{name: "mismatch", engineErr: otp.ErrMismatch, wantCode: goerror.CodeInvalidInput},
		{name: "locked out", engineErr: otp.ErrLockedOut, wantCode: goerror.CodeTooManyRequest},
		{name: "store failure", engineErr: errors.New("connection refused"), wantCode: goerror.CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			fx := newTestUsecase(t)
			fx.repo.apps[7] = seedApplication(7, "owner@example.com", entity.ApplicationStatusPendingVerification)
			fx.engine.verifyErr = tc.engineErr

			// Act
			_, err := fx.uc.EmailOTPVerify(context.Background(), EmailOTPVerifyInput{Email: "owner@example.com", Code: "000000"})

			// Assert
			assertCode(t, err, tc.wantCode)

			if len(fx.repo.submitted) != 0 {
				t.Fatalf("application must stay unsubmitted, got %v", fx.repo.submitted)
			}
		})
	}
}

func TestEmailOTPVerifyApplicationMovedOn(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[7] = seedApplication(7, "owner@example.com", entity.ApplicationStatusPendingVerification)
	fx.repo.submitErr = goerror.ErrNotFound

	// Act
	_, err := fx.uc.EmailOTPVerify(context.Background(), EmailOTPVerifyInput{Email: "owner@example.com", Code: "482913"})

	// Assert
	assertCode(t, err, goerror.CodeConflict)
}

func TestReviewRequiresStaff(t *testing.T) {
	cases := []struct {
		name     string
		ctx      context.Context
		wantCode goerror.Code
	}{
		{name: "anonymous", ctx: context.Background(), wantCode: goerror.CodeUnauthorized},
		{
			name:     "member",
			ctx:      jwt.SetAuth(context.Background(), jwt.Claims{UserID: 7, UserRole: "member"}),
			wantCode: goerror.CodeForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			fx := newTestUsecase(t)
			fx.repo.apps[9] = seedApplication(9, "owner@example.com", entity.ApplicationStatusSubmitted)

			// Act
			_, err := fx.uc.Review(tc.ctx, ReviewInput{ID: 9, Decision: "approved"})

			// Assert
			assertCode(t, err, tc.wantCode)

			if len(fx.repo.profiles) != 0 {
				t.Fatalf("no profile should be created, got %v", fx.repo.profiles)
			}
		})
	}
}

func TestReviewApproveCreatesProfileAndPublishes(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[9] = seedApplication(9, "owner@example.com", entity.ApplicationStatusSubmitted)

	// Act
	out, err := fx.uc.Review(staffContext(), ReviewInput{ID: 9, Decision: "approved", Note: "  docs verified  "})

	// Assert
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	if out.ApplicationID != 9 || out.MerchantID != 501 {
		t.Fatalf("output = %+v, want application 9 and merchant 501", out)
	}

	if out.Status != entity.ApplicationStatusApproved {
		t.Fatalf("status = %s, want %s", out.Status, entity.ApplicationStatusApproved)
	}

	profile := fx.repo.profiles[9]
	if profile.ID != 501 || profile.ApplicationID != 9 {
		t.Fatalf("profile = %+v, want id 501 for application 9", profile)
	}
	if profile.Status != entity.ProfileStatusActive {
		t.Fatalf("profile status = %s, want %s", profile.Status, entity.ProfileStatusActive)
	}
	if profile.Email != "owner@example.com" || profile.BusinessName != "Warung Kopi Kite" {
		t.Fatalf("profile = %+v, want application contact fields copied", profile)
	}

	if fx.repo.notes[9] != "docs verified" {
		t.Fatalf("review note = %q, want %q", fx.repo.notes[9], "docs verified")
	}

	if len(fx.mq.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(fx.mq.published))
	}

	evt := fx.mq.published[0]
	if evt.ApplicationID != 9 || evt.MerchantID != 501 || evt.Decision != "approved" || evt.Reason != "docs verified" {
		t.Fatalf("event = %+v, want approved decision for application 9", evt)
	}
}

func TestReviewRejectRecordsNote(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[9] = seedApplication(9, "owner@example.com", entity.ApplicationStatusSubmitted)

	// Act
	out, err := fx.uc.Review(staffContext(), ReviewInput{ID: 9, Decision: "rejected", Note: "missing permit"})

	// Assert
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	if out.MerchantID != 0 {
		t.Fatalf("merchant id = %d, want 0 for a rejection", out.MerchantID)
	}

	if out.Status != entity.ApplicationStatusRejected {
		t.Fatalf("status = %s, want %s", out.Status, entity.ApplicationStatusRejected)
	}

	if fx.repo.notes[9] != "missing permit" {
		t.Fatalf("review note = %q, want %q", fx.repo.notes[9], "missing permit")
	}

	if len(fx.repo.profiles) != 0 {
		t.Fatalf("no profile should be created on rejection, got %v", fx.repo.profiles)
	}

	if len(fx.mq.published) != 1 || fx.mq.published[0].Decision != "rejected" {
		t.Fatalf("published events = %+v, want one rejected decision", fx.mq.published)
	}
}

func TestReviewUnknownApplication(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)

	// Act
	_, err := fx.uc.Review(staffContext(), ReviewInput{ID: 404, Decision: "approved"})

	// Assert
	assertCode(t, err, goerror.CodeNotFound)
}

func TestReviewAlreadyDecidedConflict(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[9] = seedApplication(9, "owner@example.com", entity.ApplicationStatusApproved)

	// Act
	_, err := fx.uc.Review(staffContext(), ReviewInput{ID: 9, Decision: "rejected"})

	// Assert
	assertCode(t, err, goerror.CodeConflict)

	if len(fx.mq.published) != 0 {
		t.Fatalf("no event should be published, got %+v", fx.mq.published)
	}
}

func TestReviewUnverifiedEmailConflict(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[9] = seedApplication(9, "owner@example.com", entity.ApplicationStatusPendingVerification)

	// Act
	_, err := fx.uc.Review(staffContext(), ReviewInput{ID: 9, Decision: "approved"})

	// Assert
	assertCode(t, err, goerror.CodeConflict)

	if len(fx.repo.profiles) != 0 {
		t.Fatalf("no profile should be created, got %v", fx.repo.profiles)
	}
}

func TestReviewPublishFailureStillDecides(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.apps[9] = seedApplication(9, "owner@example.com", entity.ApplicationStatusSubmitted)
	fx.mq.err = errors.New("broker down")

	// Act
	out, err := fx.uc.Review(staffContext(), ReviewInput{ID: 9, Decision: "approved"})

	// Assert
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	if out.Status != entity.ApplicationStatusApproved {
		t.Fatalf("status = %s, want %s", out.Status, entity.ApplicationStatusApproved)
	}

	if fx.repo.apps[9].Status != entity.ApplicationStatusApproved {
		t.Fatalf("application status = %s, want %s", fx.repo.apps[9].Status, entity.ApplicationStatusApproved)
	}
}

func TestExportUploadsSignedCSV(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)

	verifiedAt := time.Date(2025, 5, 20, 8, 30, 0, 0, time.UTC)
	decidedAt := time.Date(2025, 5, 21, 10, 0, 0, 0, time.UTC)
	createdAt := time.Date(2025, 5, 19, 7, 0, 0, 0, time.UTC)

	appA := entity.Application{
		ID: 11, BusinessName: "Warung Kopi Kite", Email: "a@example.com", Phone: "+6281200000011",
		Category: "Food and Beverage", City: "Bandung", Status: entity.ApplicationStatusApproved,
		EmailVerifiedAt: &verifiedAt, DecidedAt: &decidedAt, ReviewNote: "ok", CreatedAt: createdAt,
	}
	appB := entity.Application{
		ID: 12, BusinessName: "Toko Roti Sejahtera", Email: "b@example.com", Phone: "+6281200000012",
		Category: "Bakery", City: "Jakarta", Status: entity.ApplicationStatusApproved,
		EmailVerifiedAt: &verifiedAt, DecidedAt: &decidedAt, CreatedAt: createdAt,
	}
	appC := entity.Application{
		ID: 13, BusinessName: "Laundry Bersih", Email: "c@example.com", Phone: "+6281200000013",
		Category: "Services", City: "Surabaya", Status: entity.ApplicationStatusApproved,
		EmailVerifiedAt: &verifiedAt, DecidedAt: &decidedAt, CreatedAt: createdAt,
	}

	fx.repo.pages = [][]entity.Application{{appA, appB}, {appC}}
	fx.repo.totalCount = 3

	// Act
	out, err := fx.uc.Export(staffContext(), ExportInput{Statuses: []string{"Approved", "3", "bogus"}})

	// Assert
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if out.Count != 3 {
		t.Fatalf("count = %d, want 3", out.Count)
	}

	wantKey := "exports/applications/20250601-090000-0f2a7d2e.csv"
	if out.ObjectKey != wantKey {
		t.Fatalf("object key = %q, want %q", out.ObjectKey, wantKey)
	}
	if out.DownloadURL != "https://signed.example/cashkite-exports/"+wantKey {
		t.Fatalf("download url = %q, want signed url for %q", out.DownloadURL, wantKey)
	}

	filter := fx.repo.lastFilter
	if !filter.IsFilterByStatus || len(filter.Statuses) != 1 || filter.Statuses[0] != 3 {
		t.Fatalf("status filter = %+v, want approved only", filter)
	}

	if len(fx.repo.offsets) != 2 || fx.repo.offsets[0] != 0 || fx.repo.offsets[1] != 1000 {
		t.Fatalf("page offsets = %v, want [0 1000]", fx.repo.offsets)
	}

	if fx.store.bucket != "cashkite-exports" {
		t.Fatalf("bucket = %q, want %q", fx.store.bucket, "cashkite-exports")
	}
	if fx.store.contentType != "text/csv" {
		t.Fatalf("content type = %q, want %q", fx.store.contentType, "text/csv")
	}
	if fx.store.metadata["exported_by"] != "42" {
		t.Fatalf("exported_by = %q, want %q", fx.store.metadata["exported_by"], "42")
	}

	lines := strings.Split(strings.TrimSuffix(string(fx.store.body), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("csv lines = %d, want header plus 3 rows", len(lines))
	}

	wantHeader := "id,business_name,email,phone,category,city,status,email_verified_at,decided_at,review_note,created_at"
	if lines[0] != wantHeader {
		t.Fatalf("csv header = %q, want %q", lines[0], wantHeader)
	}

	wantRow := "11,Warung Kopi Kite,a@example.com,+6281200000011,Food and Beverage,Bandung,Approved," +
		"2025-05-20T08:30:00Z,2025-05-21T10:00:00Z,ok,2025-05-19T07:00:00Z"
	if lines[1] != wantRow {
		t.Fatalf("csv row = %q, want %q", lines[1], wantRow)
	}
}

func TestExportEmptyRangeStillUploads(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)

	// Act
	out, err := fx.uc.Export(staffContext(), ExportInput{})

	// Assert
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if out.Count != 0 {
		t.Fatalf("count = %d, want 0", out.Count)
	}

	if len(fx.repo.offsets) != 1 {
		t.Fatalf("list calls = %d, want 1", len(fx.repo.offsets))
	}

	if fx.repo.lastFilter.IsFilterByStatus {
		t.Fatalf("status filter should be off when no statuses are given")
	}

	wantBody := "id,business_name,email,phone,category,city,status,email_verified_at,decided_at,review_note,created_at\n"
	if string(fx.store.body) != wantBody {
		t.Fatalf("csv body = %q, want header only", string(fx.store.body))
	}
}

func TestEmailOTPRequestRepoFailure(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.getErr = errors.New("connection reset")

	// Act
	err := fx.uc.EmailOTPRequest(context.Background(), EmailOTPRequestInput{Email: "owner@example.com"})

	// Assert
	assertCode(t, err, goerror.CodeInternal)
}

func TestExportListFailure(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	fx.repo.listErr = errors.New("connection reset")

	// Act
	_, err := fx.uc.Export(staffContext(), ExportInput{})

	// Assert
	assertCode(t, err, goerror.CodeInternal)

	if fx.store.key != "" {
		t.Fatalf("nothing should be uploaded, got key %q", fx.store.key)
	}
}

func TestExportStorageFailures(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*fakeStorage)
	}{
		{name: "upload fails", setup: func(s *fakeStorage) { s.putErr = errors.New("bucket gone") }},
		{name: "presign fails", setup: func(s *fakeStorage) { s.presignErr = errors.New("bucket gone") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			fx := newTestUsecase(t)
			tc.setup(fx.store)

			// Act
			_, err := fx.uc.Export(staffContext(), ExportInput{})

			// Assert
			assertCode(t, err, goerror.CodeInternal)
		})
	}
}

func TestExportRequiresStaff(t *testing.T) {
	// Arrange
	fx := newTestUsecase(t)
	ctx := jwt.SetAuth(context.Background(), jwt.Claims{UserID: 7, UserRole: "member"})

	// Act
	_, err := fx.uc.Export(ctx, ExportInput{})

	// Assert
	assertCode(t, err, goerror.CodeForbidden)

	if fx.store.key != "" {
		t.Fatalf("nothing should be uploaded, got key %q", fx.store.key)
	}
}
