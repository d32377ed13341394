// Package relay implements the authorization gate and dispatch path for
// administrative send-message requests.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sendmessage/internal/crypto"
	"github.com/eldtechnologies/sendmessage/internal/metrics"
	"github.com/eldtechnologies/sendmessage/internal/models"
	"github.com/eldtechnologies/sendmessage/internal/store"
	"github.com/eldtechnologies/sendmessage/internal/transport"
)

var (
	ErrDisabled = errors.New("send message relay is disabled")
	ErrDispatch = errors.New("transport rejected message")
)

// Request form parameter names.
const (
	ParamSecret       = "secret"
	ParamFromUser     = "fromUserName"
	ParamFromResource = "fromResource"
	ParamToUser       = "toUserName"
	ParamContent      = "content"
)

// Settings is the live configuration the gate consults on every request.
type Settings interface {
	IPAllowed(ip string) bool
	Enabled() bool
	Secret() string
}

// UserResolver looks up confirmed local users.
type UserResolver interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
}

// Request carries the caller-supplied parameters. A nil field was not sent.
type Request struct {
	Secret       *string
	FromUser     *string
	FromResource *string
	ToUser       *string
	Content      *string

	// Malformed is set when the request body could not be read in full, so
	// parameters it carried may be missing.
	Malformed bool
}

// RequestFromValues builds a Request from form values. A parameter present
// with an empty value is kept as an empty string.
func RequestFromValues(v url.Values) Request {
	return Request{
		Secret:       param(v, ParamSecret),
		FromUser:     param(v, ParamFromUser),
		FromResource: param(v, ParamFromResource),
		ToUser:       param(v, ParamToUser),
		Content:      param(v, ParamContent),
	}
}

func param(v url.Values, name string) *string {
	vals, ok := v[name]
	if !ok || len(vals) == 0 {
		return nil
	}
	s := vals[0]
	return &s
}

// Service validates relay requests and hands messages to the transport.
type Service struct {
	settings  Settings
	users     UserResolver
	transport transport.Transport
	domain    string
	logger    zerolog.Logger
}

// NewService creates a relay service for users of domain.
func NewService(settings Settings, users UserResolver, tr transport.Transport, domain string, logger zerolog.Logger) *Service {
	return &Service{
		settings:  settings,
		users:     users,
		transport: tr,
		domain:    domain,
		logger:    logger,
	}
}

// Handle runs the gate sequence for one request from remoteIP. The first
// failing step determines the result.
func (s *Service) Handle(ctx context.Context, remoteIP string, req Request) Result {
	res := s.handle(ctx, remoteIP, req)
	metrics.RelayResults.WithLabelValues(res.Code.String()).Inc()
	return res
}

func (s *Service) handle(ctx context.Context, remoteIP string, req Request) Result {
	if !s.settings.IPAllowed(remoteIP) {
		s.logger.Warn().
			Str("type", "security").
			Str("event", "ip_rejected").
			Str("ip", remoteIP).
			Msg("relay rejected request from IP address")
		return resultError(CodeNotAllowedIPAddress, "forbidden")
	}

	if !s.settings.Enabled() {
		s.logger.Warn().
			Str("ip", remoteIP).
			Msg("relay is disabled")
		return resultError(CodeSendMessageDisabled, "disabled")
	}

	if req.Secret == nil || !crypto.SecretsEqual(*req.Secret, s.settings.Secret()) {
		s.logger.Warn().
			Str("type", "security").
			Str("event", "unauthorised").
			Str("ip", remoteIP).
			Msg("an unauthorised request was received")
		return resultError(CodeNotAuthorized, "unauthorised")
	}

	if req.Malformed {
		return resultError(CodeInvalidArgument, "invalid argument: request body")
	}

	required := []struct {
		name  string
		value *string
	}{
		{ParamFromUser, req.FromUser},
		{ParamFromResource, req.FromResource},
		{ParamToUser, req.ToUser},
		{ParamContent, req.Content},
	}
	for _, p := range required {
		if p.value == nil {
			return resultError(CodeInvalidArgument, "invalid argument: "+p.name)
		}
	}

	return ResultOf(s.Send(ctx, *req.FromUser, *req.FromResource, *req.ToUser, *req.Content))
}

// ResultOf maps an error returned by Send to the result reported to callers.
func ResultOf(err error) Result {
	var notFound *store.UserNotFoundError
	switch {
	case err == nil:
		return resultOK()
	case errors.As(err, &notFound):
		return resultError(CodeUserNotFound, "user not found, "+notFound.Reason)
	case errors.Is(err, store.ErrUserNotFound):
		return resultError(CodeUserNotFound, "user not found, "+err.Error())
	case errors.Is(err, ErrDisabled):
		return resultError(CodeSendMessageDisabled, "disabled")
	case errors.Is(err, ErrDispatch):
		return resultError(CodeSendMessageFailed, "SendMessageFailed")
	default:
		// Directory failures other than a missing user
		return resultError(CodeUserNotFound, "user not found, directory unavailable")
	}
}

// Send delivers content from fromUser/fromResource to toUser. Empty content
// is accepted and dropped without resolving either user.
func (s *Service) Send(ctx context.Context, fromUser, fromResource, toUser, content string) error {
	if !s.settings.Enabled() {
		return ErrDisabled
	}
	if content == "" {
		return nil
	}

	from, err := s.resolve(ctx, fromUser)
	if err != nil {
		return err
	}
	to, err := s.resolve(ctx, toUser)
	if err != nil {
		return err
	}

	msg := &models.Message{
		ID:        ulid.Make().String(),
		From:      models.NewAddress(from.Username, s.domain, fromResource),
		To:        models.NewAddress(to.Username, s.domain, ""),
		Body:      content,
		Timestamp: time.Now().UnixMilli(),
	}

	if err := s.transport.Dispatch(ctx, msg); err != nil {
		s.logger.Error().
			Err(err).
			Str("from", msg.From.String()).
			Str("to", msg.To.String()).
			Str("message_id", msg.ID).
			Msg("failed to dispatch message")
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	s.logger.Info().
		Str("from", msg.From.String()).
		Str("to", msg.To.String()).
		Str("message_id", msg.ID).
		Msg("message dispatched")
	return nil
}

func (s *Service) resolve(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			s.logger.Error().Err(err).Str("username", username).Msg("directory lookup failed")
		}
		return nil, err
	}
	return user, nil
}
