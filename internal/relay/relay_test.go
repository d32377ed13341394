package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sendmessage/internal/models"
	"github.com/eldtechnologies/sendmessage/internal/settings"
	"github.com/eldtechnologies/sendmessage/internal/store"
)

// recordingTransport collects dispatched messages.
type recordingTransport struct {
	mu   sync.Mutex
	msgs []*models.Message
	err  error
}

func (t *recordingTransport) Dispatch(ctx context.Context, msg *models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.msgs = append(t.msgs, msg)
	return nil
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// countingResolver records lookups before delegating.
type countingResolver struct {
	UserResolver
	mu      sync.Mutex
	lookups []string
}

func (r *countingResolver) GetUser(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	r.lookups = append(r.lookups, username)
	r.mu.Unlock()
	return r.UserResolver.GetUser(ctx, username)
}

type fixture struct {
	svc       *Service
	settings  *settings.Settings
	store     *store.MemoryStore
	users     *countingResolver
	transport *recordingTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	ms := store.NewMemoryStore()
	ms.SetProperty(ctx, settings.SecretKey, "s1")
	ms.SetProperty(ctx, settings.EnabledKey, "true")
	for _, name := range []string{"alice", "bob"} {
		if _, err := ms.CreateUser(ctx, name, "", true); err != nil {
			t.Fatal(err)
		}
	}

	st := settings.Load(ctx, ms, zerolog.Nop())
	t.Cleanup(st.Close)

	users := &countingResolver{UserResolver: ms}
	tr := &recordingTransport{}
	return &fixture{
		svc:       NewService(st, users, tr, "example.com", zerolog.Nop()),
		settings:  st,
		store:     ms,
		users:     users,
		transport: tr,
	}
}

func validValues() url.Values {
	return url.Values{
		ParamSecret:       {"s1"},
		ParamFromUser:     {"alice"},
		ParamFromResource: {"mobile"},
		ParamToUser:       {"bob"},
		ParamContent:      {"hi"},
	}
}

func (f *fixture) handle(v url.Values) Result {
	return f.svc.Handle(context.Background(), "10.0.0.1", RequestFromValues(v))
}

func TestSendSuccess(t *testing.T) {
	f := newFixture(t)

	res := f.handle(validValues())
	if res != (Result{Message: "OK", Code: CodeOK}) {
		t.Fatalf("expected OK, got %+v", res)
	}
	if f.transport.count() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", f.transport.count())
	}

	msg := f.transport.msgs[0]
	if msg.From.String() != "alice@example.com/mobile" {
		t.Fatalf("unexpected from %q", msg.From)
	}
	if msg.To.String() != "bob@example.com" {
		t.Fatalf("unexpected to %q", msg.To)
	}
	if msg.Body != "hi" || msg.ID == "" || msg.Timestamp == 0 {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestWrongSecret(t *testing.T) {
	f := newFixture(t)

	v := validValues()
	v.Set(ParamSecret, "wrong")
	res := f.handle(v)
	if res != (Result{Message: "unauthorised", Code: CodeNotAuthorized}) {
		t.Fatalf("expected unauthorised, got %+v", res)
	}

	v.Del(ParamSecret)
	if res := f.handle(v); res.Code != CodeNotAuthorized {
		t.Fatalf("missing secret: expected %d, got %+v", CodeNotAuthorized, res)
	}
	if f.transport.count() != 0 {
		t.Fatal("no message should be dispatched")
	}
}

func TestSecretRotationInvalidatesOldSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if res := f.handle(validValues()); !res.OK() {
		t.Fatalf("expected OK, got %+v", res)
	}
	if err := f.settings.SetSecret(ctx, "s2"); err != nil {
		t.Fatal(err)
	}
	if res := f.handle(validValues()); res.Code != CodeNotAuthorized {
		t.Fatalf("old secret should be rejected, got %+v", res)
	}

	// External delete blanks the secret; nothing matches it.
	f.store.DeleteProperty(ctx, settings.SecretKey)
	v := validValues()
	v.Set(ParamSecret, "")
	if res := f.handle(v); res.Code != CodeNotAuthorized {
		t.Fatalf("blank secret should be rejected, got %+v", res)
	}
}

func TestDisabledWinsOverSecret(t *testing.T) {
	f := newFixture(t)
	f.settings.SetEnabled(context.Background(), false)

	for _, secret := range []string{"s1", "wrong", ""} {
		v := validValues()
		v.Set(ParamSecret, secret)
		res := f.handle(v)
		if res != (Result{Message: "disabled", Code: CodeSendMessageDisabled}) {
			t.Fatalf("secret %q: expected disabled, got %+v", secret, res)
		}
	}
	if f.transport.count() != 0 {
		t.Fatal("no message should be dispatched while disabled")
	}
}

func TestIPGateCheckedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settings.SetEnabled(ctx, false)
	f.settings.SetAllowedIPs(ctx, []string{"192.168.1.10"})

	v := validValues()
	v.Set(ParamSecret, "wrong")
	res := f.handle(v)
	if res != (Result{Message: "forbidden", Code: CodeNotAllowedIPAddress}) {
		t.Fatalf("expected forbidden, got %+v", res)
	}

	// An allowlisted caller reaches the next gate.
	res = f.svc.Handle(ctx, "192.168.1.10", RequestFromValues(v))
	if res.Code != CodeSendMessageDisabled {
		t.Fatalf("expected disabled for allowlisted IP, got %+v", res)
	}

	// Deleting the allowlist opens the gate for every caller.
	f.settings.SetEnabled(ctx, true)
	f.store.DeleteProperty(ctx, settings.AllowedIPsKey)
	if res := f.handle(validValues()); !res.OK() {
		t.Fatalf("expected OK after allowlist delete, got %+v", res)
	}
}

func TestMissingParameterOrder(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		missing []string
		want    string
	}{
		{[]string{ParamFromUser, ParamFromResource, ParamToUser, ParamContent}, ParamFromUser},
		{[]string{ParamFromResource, ParamToUser, ParamContent}, ParamFromResource},
		{[]string{ParamToUser, ParamContent}, ParamToUser},
		{[]string{ParamContent}, ParamContent},
		{[]string{ParamFromResource, ParamContent}, ParamFromResource},
	}
	for _, tt := range tests {
		v := validValues()
		for _, name := range tt.missing {
			v.Del(name)
		}
		res := f.handle(v)
		if res.Code != CodeInvalidArgument {
			t.Fatalf("missing %v: expected %d, got %+v", tt.missing, CodeInvalidArgument, res)
		}
		if res.Message != "invalid argument: "+tt.want {
			t.Fatalf("missing %v: expected field %s, got %q", tt.missing, tt.want, res.Message)
		}
	}
	if f.transport.count() != 0 || len(f.users.lookups) != 0 {
		t.Fatal("validation failures must not resolve users or dispatch")
	}
}

func TestEmptyContentIsNoOp(t *testing.T) {
	f := newFixture(t)

	v := validValues()
	v.Set(ParamContent, "")
	v.Set(ParamFromUser, "nobody")
	for i := 0; i < 3; i++ {
		if res := f.handle(v); !res.OK() {
			t.Fatalf("expected OK, got %+v", res)
		}
	}
	if f.transport.count() != 0 {
		t.Fatalf("expected no dispatch, got %d", f.transport.count())
	}
	if len(f.users.lookups) != 0 {
		t.Fatalf("expected no lookups, got %v", f.users.lookups)
	}
}

func TestUserNotFound(t *testing.T) {
	f := newFixture(t)

	v := validValues()
	v.Set(ParamFromUser, "mallory")
	res := f.handle(v)
	if res.Code != CodeUserNotFound || !strings.HasPrefix(res.Message, "user not found, ") {
		t.Fatalf("expected user not found, got %+v", res)
	}
	if !strings.Contains(res.Message, "mallory") {
		t.Fatalf("expected detail to name the user, got %q", res.Message)
	}
	// toUserName is not looked up once fromUserName fails
	if len(f.users.lookups) != 1 || f.users.lookups[0] != "mallory" {
		t.Fatalf("expected a single lookup, got %v", f.users.lookups)
	}

	v = validValues()
	v.Set(ParamToUser, "")
	if res := f.handle(v); res.Code != CodeUserNotFound {
		t.Fatalf("expected user not found for blank recipient, got %+v", res)
	}
	if f.transport.count() != 0 {
		t.Fatal("no message should be dispatched")
	}
}

func TestDispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("connection refused by 10.1.2.3")

	res := f.handle(validValues())
	if res != (Result{Message: "SendMessageFailed", Code: CodeSendMessageFailed}) {
		t.Fatalf("expected SendMessageFailed without details, got %+v", res)
	}
}

type brokenResolver struct{}

func (brokenResolver) GetUser(ctx context.Context, username string) (*models.User, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestDirectoryFailure(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.settings, brokenResolver{}, f.transport, "example.com", zerolog.Nop())

	res := svc.Handle(context.Background(), "10.0.0.1", RequestFromValues(validValues()))
	if res != (Result{Message: "user not found, directory unavailable", Code: CodeUserNotFound}) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSendReportsDisabled(t *testing.T) {
	f := newFixture(t)
	f.settings.SetEnabled(context.Background(), false)

	if err := f.svc.Send(context.Background(), "alice", "r", "bob", "hi"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestConcurrentRequests(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := f.handle(validValues()); !res.OK() {
				t.Errorf("expected OK, got %+v", res)
			}
		}()
	}
	wg.Wait()

	if f.transport.count() != 20 {
		t.Fatalf("expected 20 dispatches, got %d", f.transport.count())
	}
}

func TestMalformedBodyAfterSecret(t *testing.T) {
	f := newFixture(t)

	req := RequestFromValues(validValues())
	req.Malformed = true
	res := f.svc.Handle(context.Background(), "10.0.0.1", req)
	if res != (Result{Message: "invalid argument: request body", Code: CodeInvalidArgument}) {
		t.Fatalf("unexpected result %+v", res)
	}

	// The secret is still checked first
	v := validValues()
	v.Set(ParamSecret, "wrong")
	req = RequestFromValues(v)
	req.Malformed = true
	if res := f.svc.Handle(context.Background(), "10.0.0.1", req); res.Code != CodeNotAuthorized {
		t.Fatalf("expected %d, got %+v", CodeNotAuthorized, res)
	}
	if f.transport.count() != 0 {
		t.Fatal("no message should be dispatched")
	}
}

func TestResultOf(t *testing.T) {
	tests := []struct {
		err  error
		want Result
	}{
		{nil, Result{Message: "OK", Code: CodeOK}},
		{ErrDisabled, Result{Message: "disabled", Code: CodeSendMessageDisabled}},
		{fmt.Errorf("%w: %w", ErrDispatch, errors.New("no route")), Result{Message: "SendMessageFailed", Code: CodeSendMessageFailed}},
		{&store.UserNotFoundError{Username: "x", Reason: "no confirmed user named x"}, Result{Message: "user not found, no confirmed user named x", Code: CodeUserNotFound}},
		{errors.New("timeout"), Result{Message: "user not found, directory unavailable", Code: CodeUserNotFound}},
	}
	for _, tt := range tests {
		if got := ResultOf(tt.err); got != tt.want {
			t.Errorf("ResultOf(%v) = %+v, want %+v", tt.err, got, tt.want)
		}
	}
}
