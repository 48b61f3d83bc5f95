// Package delivery sends verification invites and validates numbers
// through Twilio. All outbound calls run under the shared retry
// executor so transient carrier failures never surface to callers.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-callpass/core"
	"github.com/goliatone/go-callpass/retry"
	twilio "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	lookupsv2 "github.com/twilio/twilio-go/rest/lookups/v2"
)

const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"

	whatsappPrefix = "whatsapp:"
)

// messageAPI is the slice of the Twilio REST client the sender needs.
// *twilio.RestClient's Api service satisfies it.
type messageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// lookupAPI is the slice of the Twilio Lookups V2 service the validator
// needs.
type lookupAPI interface {
	FetchPhoneNumber(number string, params *lookupsv2.FetchPhoneNumberParams) (*lookupsv2.LookupsV2PhoneNumber, error)
}

type Config struct {
	AccountSID string `koanf:"account_sid" mapstructure:"account_sid"`
	AuthToken  string `koanf:"auth_token" mapstructure:"auth_token"`
	FromNumber string `koanf:"from_number" mapstructure:"from_number"`
	Channel    string `koanf:"channel" mapstructure:"channel"`
	Retry      retry.Config
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.AccountSID) == "" {
		return fmt.Errorf("delivery: twilio account sid is required")
	}
	if strings.TrimSpace(c.AuthToken) == "" {
		return fmt.Errorf("delivery: twilio auth token is required")
	}
	if strings.TrimSpace(c.FromNumber) == "" {
		return fmt.Errorf("delivery: twilio from number is required")
	}
	switch strings.TrimSpace(c.Channel) {
	case "", ChannelSMS, ChannelWhatsApp:
		return nil
	default:
		return fmt.Errorf("delivery: unsupported channel %q", c.Channel)
	}
}

// TwilioSender delivers verification invites over SMS or WhatsApp.
type TwilioSender struct {
	api      messageAPI
	from     string
	channel  string
	executor *retry.Executor
	logger   core.Logger
}

type SenderOption func(*TwilioSender)

func WithSenderLogger(logger core.Logger) SenderOption {
	return func(s *TwilioSender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMessageAPI swaps the Twilio message client. Test hook.
func WithMessageAPI(api messageAPI) SenderOption {
	return func(s *TwilioSender) {
		if api != nil {
			s.api = api
		}
	}
}

func NewTwilioSender(cfg Config, opts ...SenderOption) (*TwilioSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = ChannelSMS
	}
	sender := &TwilioSender{
		from:     strings.TrimSpace(cfg.FromNumber),
		channel:  channel,
		executor: retry.New(cfg.Retry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sender)
		}
	}
	if sender.api == nil {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: strings.TrimSpace(cfg.AccountSID),
			Password: strings.TrimSpace(cfg.AuthToken),
		})
		sender.api = client.Api
	}
	return sender, nil
}

func (s *TwilioSender) SendVerificationInvite(ctx context.Context, invite core.VerificationInvite) error {
	if s == nil || s.api == nil {
		return fmt.Errorf("delivery: twilio sender is not configured")
	}
	to := strings.TrimSpace(invite.To)
	if to == "" {
		return fmt.Errorf("delivery: invite recipient is required")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(s.addressFor(to))
	params.SetFrom(s.addressFor(s.from))
	params.SetBody(inviteBody(invite))

	err := s.executor.Execute(ctx, func(attempt int) error {
		if attempt > 1 && s.logger != nil {
			s.logger.Debug("retrying verification invite", "to", core.MaskNumber(to), "attempt", attempt)
		}
		_, sendErr := s.api.CreateMessage(params)
		return classifyTwilioError("create message", sendErr)
	})
	if err != nil {
		return fmt.Errorf("delivery: send verification invite: %w", err)
	}
	return nil
}

func (s *TwilioSender) addressFor(number string) string {
	if s.channel == ChannelWhatsApp && !strings.HasPrefix(number, whatsappPrefix) {
		return whatsappPrefix + number
	}
	return number
}

func inviteBody(invite core.VerificationInvite) string {
	var b strings.Builder
	name := strings.TrimSpace(invite.CallerName)
	if name == "" {
		name = "Someone"
	}
	b.WriteString(name)
	b.WriteString(" wants to call you")
	if reason := strings.TrimSpace(invite.Reason); reason != "" {
		b.WriteString(" about ")
		b.WriteString(reason)
	}
	b.WriteString(". Approve the call here: ")
	b.WriteString(strings.TrimSpace(invite.VanityURL))
	return b.String()
}

// TwilioPhoneValidator checks numbers against Twilio Lookups V2. A 404
// means the number does not exist; anything else is a lookup failure.
type TwilioPhoneValidator struct {
	api      lookupAPI
	executor *retry.Executor
}

type ValidatorOption func(*TwilioPhoneValidator)

// WithLookupAPI swaps the Twilio lookup client. Test hook.
func WithLookupAPI(api lookupAPI) ValidatorOption {
	return func(v *TwilioPhoneValidator) {
		if api != nil {
			v.api = api
		}
	}
}

func NewTwilioPhoneValidator(cfg Config, opts ...ValidatorOption) (*TwilioPhoneValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	validator := &TwilioPhoneValidator{
		executor: retry.New(cfg.Retry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	if validator.api == nil {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: strings.TrimSpace(cfg.AccountSID),
			Password: strings.TrimSpace(cfg.AuthToken),
		})
		validator.api = client.LookupsV2
	}
	return validator, nil
}

func (v *TwilioPhoneValidator) ValidateNumber(ctx context.Context, number string) (bool, error) {
	if v == nil || v.api == nil {
		return false, fmt.Errorf("delivery: twilio phone validator is not configured")
	}
	if !core.IsE164(number) {
		return false, nil
	}

	valid := true
	err := v.executor.Execute(ctx, func(int) error {
		_, lookupErr := v.api.FetchPhoneNumber(number, nil)
		if lookupErr == nil {
			valid = true
			return nil
		}
		classified := classifyTwilioError("lookup phone number", lookupErr)
		var statusErr *retry.StatusError
		if errors.As(classified, &statusErr) && statusErr.StatusCode == 404 {
			valid = false
			return nil
		}
		return classified
	})
	if err != nil {
		return false, fmt.Errorf("delivery: validate number: %w", err)
	}
	return valid, nil
}

// classifyTwilioError translates Twilio failures into the retry
// package's taxonomy so the executor can decide what to do with them.
func classifyTwilioError(op string, err error) error {
	if err == nil {
		return nil
	}
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return &retry.StatusError{
			StatusCode: restErr.Status,
			Message:    restErr.Message,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &retry.TransportError{Op: op, Err: err}
}

var (
	_ core.MessageSender  = (*TwilioSender)(nil)
	_ core.PhoneValidator = (*TwilioPhoneValidator)(nil)
)
