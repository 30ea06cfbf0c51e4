package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"kennel-assistant/internal/domain"
	"kennel-assistant/internal/integrations/web3forms"
)

const (
	maxNameLen      = 100
	maxPhoneLen     = 32
	maxLeadMessage  = 2000
	minPhoneDigits  = 5
	MessageSuccess  = "Спасибо! Мы свяжемся с вами в ближайшее время."
	MessageFailure  = "Что-то пошло не так"
	MessageNetwork  = "Ошибка сети. Попробуйте снова."
	relayErrorLimit = 256
)

type LeadStore interface {
	CreateLead(ctx context.Context, leadID string, lead domain.Lead) error
	UpdateLeadStatus(ctx context.Context, leadID, status, detail string) error
}

type LeadRelay interface {
	Submit(ctx context.Context, lead domain.Lead) error
}

type PuppyFinder interface {
	FindAvailable(name string) (domain.Puppy, bool)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type LeadService struct {
	store   LeadStore
	relay   LeadRelay
	puppies PuppyFinder
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type LeadInput struct {
	Name    string
	Phone   string
	Puppy   string
	Message string
}

type LeadOutput struct {
	LeadID  string
	Message string
}

func NewLeadService(store LeadStore, relay LeadRelay, puppies PuppyFinder, logger *slog.Logger) (*LeadService, error) {
	if store == nil {
		return nil, errors.New("usecase: lead store must not be nil")
	}
	if relay == nil {
		return nil, errors.New("usecase: lead relay must not be nil")
	}
	if puppies == nil {
		return nil, errors.New("usecase: puppy finder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadService{
		store:    store,
		relay:    relay,
		puppies:  puppies,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Submit validates a contact form, stores it as pending and forwards it to
// the relay. The stored status follows the relay outcome.
func (s *LeadService) Submit(ctx context.Context, in LeadInput) (LeadOutput, error) {
	lead, err := s.validate(in)
	if err != nil {
		return LeadOutput{}, err
	}

	phoneKey := digits(lead.Phone)
	if !s.acquire(phoneKey) {
		return LeadOutput{}, newErrorWithMessage(ErrorConflict, "submission_in_flight", MessageFailure, nil)
	}
	defer s.release(phoneKey)

	leadID := newUUID()
	if err := s.store.CreateLead(ctx, leadID, lead); err != nil {
		return LeadOutput{}, newErrorWithMessage(ErrorInternal, "dynamodb_write_error", MessageFailure, err)
	}

	if relayErr := s.relay.Submit(ctx, lead); relayErr != nil {
		classified := classifyRelayError(relayErr)
		detail := truncateRunes(relayErr.Error(), relayErrorLimit)
		if err := s.store.UpdateLeadStatus(ctx, leadID, domain.LeadStatusFailed, detail); err != nil {
			s.logger.Warn("failed to mark lead as failed", "lead_id", leadID, "err", err)
		}
		return LeadOutput{}, classified
	}

	if err := s.store.UpdateLeadStatus(ctx, leadID, domain.LeadStatusSent, ""); err != nil {
		// The relay already accepted the lead; the visitor should not resubmit.
		s.logger.Warn("failed to mark lead as sent", "lead_id", leadID, "err", err)
	}
	return LeadOutput{LeadID: leadID, Message: MessageSuccess}, nil
}

func (s *LeadService) validate(in LeadInput) (domain.Lead, error) {
	lead := domain.Lead{
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		Puppy:   strings.TrimSpace(in.Puppy),
		Message: strings.TrimSpace(in.Message),
	}
	switch {
	case lead.Name == "":
		return domain.Lead{}, newErrorWithMessage(ErrorInvalidInput, "empty_name", MessageFailure, nil)
	case utf8.RuneCountInString(lead.Name) > maxNameLen:
		return domain.Lead{}, newErrorWithMessage(ErrorInvalidInput, "name_too_long", MessageFailure, nil)
	case lead.Phone == "":
		return domain.Lead{}, newErrorWithMessage(ErrorInvalidInput, "empty_phone", MessageFailure, nil)
	case utf8.RuneCountInString(lead.Phone) > maxPhoneLen:
		return domain.Lead{}, newErrorWithMessage(ErrorInvalidInput, "phone_too_long", MessageFailure, nil)
	case len(digits(lead.Phone)) < minPhoneDigits:
		return domain.Lead{}, newErrorWithMessage(ErrorInvalidInput, "invalid_phone", MessageFailure, nil)
	case utf8.RuneCountInString(lead.Message) > maxLeadMessage:
		return domain.Lead{}, newErrorWithMessage(ErrorInvalidInput, "message_too_long", MessageFailure, nil)
	}
	// An empty puppy is a general enquiry.
	if lead.Puppy != "" {
		p, ok := s.puppies.FindAvailable(lead.Puppy)
		if !ok {
			return domain.Lead{}, newErrorWithMessage(ErrorInvalidInput, "puppy_unavailable", MessageFailure, nil)
		}
		lead.Puppy = p.Name
	}
	return lead, nil
}

func (s *LeadService) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *LeadService) release(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

func classifyRelayError(err error) *Error {
	var netErr *web3forms.NetworkError
	if errors.As(err, &netErr) {
		return newErrorWithMessage(ErrorUpstream, "relay_network_error", MessageNetwork, err)
	}
	var svcErr *web3forms.ServiceError
	if errors.As(err, &svcErr) {
		msg := strings.TrimSpace(svcErr.Message)
		if msg == "" {
			msg = MessageFailure
		}
		return newErrorWithMessage(ErrorUpstream, "relay_rejected", msg, err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		msg := MessageFailure
		var statusErr *web3forms.HTTPStatusError
		if errors.As(err, &statusErr) && strings.TrimSpace(statusErr.Message) != "" {
			msg = strings.TrimSpace(statusErr.Message)
		}
		return newErrorWithMessage(ErrorRateLimited, "relay_rate_limited", msg, err)
	}
	return newErrorWithMessage(ErrorUpstream, "relay_error", MessageFailure, err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
