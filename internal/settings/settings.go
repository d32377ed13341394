// Package settings mirrors the relay's runtime configuration (shared secret,
// enabled flag and IP allowlist) from the property store and keeps the mirror
// current as the store changes.
package settings

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sendmessage/internal/crypto"
	"github.com/eldtechnologies/sendmessage/internal/store"
)

// Property keys.
const (
	SecretKey     = "plugin.sendmessage.secret"
	EnabledKey    = "plugin.sendmessage.enabled"
	AllowedIPsKey = "plugin.sendmessage.allowedIPs"
)

// ipSet is an immutable set of allowed addresses. It is replaced, never mutated.
type ipSet map[string]struct{}

// keys are the properties Settings mirrors.
var keys = []string{SecretKey, EnabledKey, AllowedIPsKey}

// eventReadTimeout bounds the store read made for each change notification.
const eventReadTimeout = 5 * time.Second

// Settings holds the live relay configuration. Each field is read atomically
// on its own; there is no cross-field consistency.
//
// Every update, whether from a setter or a change notification, re-reads the
// key from the store under applyMu and applies what it finds. The last apply
// therefore always follows the last write, so the mirror converges on the
// store whatever order writes and notifications interleave in.
type Settings struct {
	store  store.PropertyStore
	logger zerolog.Logger

	applyMu sync.Mutex

	secret     atomic.Pointer[string]
	enabled    atomic.Bool
	allowedIPs atomic.Pointer[ipSet]
}

// New returns Settings at their safe defaults (blank secret, disabled, empty
// allowlist), already subscribed to change notifications from ps. Call
// Initialize to read the stored values.
func New(ps store.PropertyStore, logger zerolog.Logger) *Settings {
	s := &Settings{store: ps, logger: logger}
	s.secret.Store(new(string))
	s.allowedIPs.Store(&ipSet{})
	ps.AddListener(s)
	return s
}

// Load is New followed by Initialize.
func Load(ctx context.Context, ps store.PropertyStore, logger zerolog.Logger) *Settings {
	s := New(ps, logger)
	s.Initialize(ctx)
	return s
}

// Initialize reads the three properties, generating and persisting a secret
// when none is stored. Store failures are logged and leave the affected field
// at its safe default.
func (s *Settings) Initialize(ctx context.Context) {
	for _, key := range keys {
		if err := s.refresh(ctx, key, nil); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("failed to load property")
			continue
		}
		if key == SecretKey && s.Secret() == "" {
			if _, err := s.RegenerateSecret(ctx); err != nil {
				s.logger.Error().Err(err).Msg("failed to persist generated secret")
			} else {
				s.logger.Info().Msg("generated new shared secret")
			}
		}
	}
}

// Reload re-reads the three properties. It catches up on changes whose
// notifications were missed, such as while a change feed was reconnecting.
// A blank secret is left blank.
func (s *Settings) Reload(ctx context.Context) {
	for _, key := range keys {
		if err := s.refresh(ctx, key, nil); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to reload property")
		}
	}
}

// refresh applies key's current stored value. When the read fails, fallback
// is applied instead if given; otherwise the field is left alone.
func (s *Settings) refresh(ctx context.Context, key string, fallback *string) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	v, _, err := s.store.GetProperty(ctx, key)
	if err != nil {
		if fallback != nil {
			s.apply(key, *fallback)
		}
		return err
	}
	s.apply(key, v)
	return nil
}

// apply sets the field for key from its stored form. A missing property is
// the empty string, which maps to each field's default.
func (s *Settings) apply(key, v string) {
	switch key {
	case SecretKey:
		s.secret.Store(&v)
	case EnabledKey:
		s.enabled.Store(parseBool(v))
	case AllowedIPsKey:
		s.allowedIPs.Store(parseIPs(v))
	}
}

func (s *Settings) write(ctx context.Context, key, value string) error {
	if err := s.store.SetProperty(ctx, key, value); err != nil {
		return err
	}
	if err := s.refresh(ctx, key, &value); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to re-read property after write")
	}
	return nil
}

// Close stops listening to property changes.
func (s *Settings) Close() {
	s.store.RemoveListener(s)
}

// Secret returns the shared secret.
func (s *Settings) Secret() string {
	return *s.secret.Load()
}

// SetSecret persists the shared secret, then applies the stored value.
func (s *Settings) SetSecret(ctx context.Context, secret string) error {
	return s.write(ctx, SecretKey, secret)
}

// RegenerateSecret replaces the shared secret with a random one.
func (s *Settings) RegenerateSecret(ctx context.Context) (string, error) {
	secret, err := crypto.RandomSecret(crypto.DefaultSecretLength)
	if err != nil {
		return "", err
	}
	if err := s.SetSecret(ctx, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// Enabled reports whether the relay accepts requests.
func (s *Settings) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled persists the enabled flag, then applies the stored value.
func (s *Settings) SetEnabled(ctx context.Context, enabled bool) error {
	return s.write(ctx, EnabledKey, formatBool(enabled))
}

// AllowedIPs returns the allowlist in sorted order. Empty means every address
// is allowed.
func (s *Settings) AllowedIPs() []string {
	set := *s.allowedIPs.Load()
	ips := make([]string, 0, len(set))
	for ip := range set {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// IPAllowed reports whether ip passes the allowlist.
func (s *Settings) IPAllowed(ip string) bool {
	set := *s.allowedIPs.Load()
	if len(set) == 0 {
		return true
	}
	_, ok := set[ip]
	return ok
}

// SetAllowedIPs persists the allowlist, then applies the stored value.
func (s *Settings) SetAllowedIPs(ctx context.Context, ips []string) error {
	return s.write(ctx, AllowedIPsKey, formatIPs(newIPSet(ips)))
}

// PropertySet applies a change made to the store, by this process or any
// other. The stored value wins over the one carried by the notification.
func (s *Settings) PropertySet(key, value string) {
	if !isKey(key) {
		return
	}
	s.onChange(key, &value)
	s.logger.Debug().Str("key", key).Msg("property updated")
}

// PropertyDeleted resets a field to its default. Deleting the secret leaves
// it blank, which no request can match until a new secret is set.
func (s *Settings) PropertyDeleted(key string) {
	if !isKey(key) {
		return
	}
	empty := ""
	s.onChange(key, &empty)
	if key == SecretKey && s.Secret() == "" {
		s.logger.Warn().Msg("shared secret deleted; relay requests will be rejected until a new secret is set")
	}
	s.logger.Debug().Str("key", key).Msg("property deleted")
}

func (s *Settings) onChange(key string, hint *string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventReadTimeout)
	defer cancel()
	if err := s.refresh(ctx, key, hint); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to re-read changed property; applying notified value")
	}
}

func isKey(key string) bool {
	return key == SecretKey || key == EnabledKey || key == AllowedIPsKey
}

func parseBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func parseIPs(v string) *ipSet {
	return newIPSet(strings.Split(v, ","))
}

func newIPSet(ips []string) *ipSet {
	set := make(ipSet, len(ips))
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			set[ip] = struct{}{}
		}
	}
	return &set
}

func formatIPs(set *ipSet) string {
	ips := make([]string, 0, len(*set))
	for ip := range *set {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return strings.Join(ips, ",")
}
