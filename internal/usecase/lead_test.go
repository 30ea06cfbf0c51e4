package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"kennel-assistant/internal/catalog"
	"kennel-assistant/internal/domain"
	"kennel-assistant/internal/integrations/web3forms"
)

type statusUpdate struct {
	leadID string
	status string
	detail string
}

type mockLeadStore struct {
	mu        sync.Mutex
	created   []domain.Lead
	createdID []string
	updates   []statusUpdate
	createErr error
	updateErr error
}

func (m *mockLeadStore) CreateLead(_ context.Context, leadID string, lead domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.createdID = append(m.createdID, leadID)
	m.created = append(m.created, lead)
	return nil
}

func (m *mockLeadStore) UpdateLeadStatus(_ context.Context, leadID, status, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, statusUpdate{leadID: leadID, status: status, detail: detail})
	return m.updateErr
}

type mockRelay struct {
	err   error
	calls int
	last  domain.Lead
	block chan struct{}
	enter chan struct{}
}

func (m *mockRelay) Submit(_ context.Context, lead domain.Lead) error {
	m.calls++
	m.last = lead
	if m.enter != nil {
		m.enter <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	return m.err
}

func newLeadService(t *testing.T, store *mockLeadStore, relay *mockRelay) *LeadService {
	t.Helper()
	svc, err := NewLeadService(store, relay, catalog.Default(), nil)
	require.NoError(t, err)
	return svc
}

func validLead() LeadInput {
	return LeadInput{Name: " Анна ", Phone: "+7 (900) 123-45-67", Puppy: "белла", Message: "Хочу щенка"}
}

func TestNewLeadService_ValidatesDependencies(t *testing.T) {
	_, err := NewLeadService(nil, &mockRelay{}, catalog.Default(), nil)
	require.Error(t, err)
	_, err = NewLeadService(&mockLeadStore{}, nil, catalog.Default(), nil)
	require.Error(t, err)
	_, err = NewLeadService(&mockLeadStore{}, &mockRelay{}, nil, nil)
	require.Error(t, err)
}

func TestSubmitLead_HappyPath(t *testing.T) {
	prev := newUUID
	newUUID = func() string { return "lead-1" }
	t.Cleanup(func() { newUUID = prev })

	store := &mockLeadStore{}
	relay := &mockRelay{}
	svc := newLeadService(t, store, relay)

	out, err := svc.Submit(context.Background(), validLead())
	require.NoError(t, err)
	require.Equal(t, LeadOutput{LeadID: "lead-1", Message: MessageSuccess}, out)

	want := domain.Lead{Name: "Анна", Phone: "+7 (900) 123-45-67", Puppy: "Белла", Message: "Хочу щенка"}
	require.Equal(t, []domain.Lead{want}, store.created)
	require.Equal(t, want, relay.last)
	require.Equal(t, []statusUpdate{{leadID: "lead-1", status: domain.LeadStatusSent}}, store.updates)
}

func TestSubmitLead_EmptyPuppyIsGeneralEnquiry(t *testing.T) {
	store := &mockLeadStore{}
	svc := newLeadService(t, store, &mockRelay{})

	in := validLead()
	in.Puppy = ""
	_, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "", store.created[0].Puppy)
}

func TestSubmitLead_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*LeadInput)
		reason string
	}{
		{name: "empty name", mutate: func(in *LeadInput) { in.Name = "  " }, reason: "empty_name"},
		{name: "long name", mutate: func(in *LeadInput) { in.Name = strings.Repeat("я", maxNameLen+1) }, reason: "name_too_long"},
		{name: "empty phone", mutate: func(in *LeadInput) { in.Phone = "" }, reason: "empty_phone"},
		{name: "long phone", mutate: func(in *LeadInput) { in.Phone = strings.Repeat("1", maxPhoneLen+1) }, reason: "phone_too_long"},
		{name: "few digits", mutate: func(in *LeadInput) { in.Phone = "+7-12" }, reason: "invalid_phone"},
		{name: "long message", mutate: func(in *LeadInput) { in.Message = strings.Repeat("щ", maxLeadMessage+1) }, reason: "message_too_long"},
		{name: "reserved puppy", mutate: func(in *LeadInput) { in.Puppy = "Лайка" }, reason: "puppy_unavailable"},
		{name: "unknown puppy", mutate: func(in *LeadInput) { in.Puppy = "Шарик" }, reason: "puppy_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &mockLeadStore{}
			relay := &mockRelay{}
			svc := newLeadService(t, store, relay)

			in := validLead()
			tc.mutate(&in)
			_, err := svc.Submit(context.Background(), in)
			requireUseCaseError(t, err, ErrorInvalidInput, tc.reason)
			require.Empty(t, store.created)
			require.Zero(t, relay.calls)
		})
	}
}

func TestSubmitLead_RelayErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    ErrorCode
		reason  string
		message string
	}{
		{
			name:    "rejected",
			err:     &web3forms.ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid access key"},
			code:    ErrorUpstream,
			reason:  "relay_rejected",
			message: "Invalid access key",
		},
		{
			name:    "rejected without message",
			err:     &web3forms.ServiceError{StatusCode: http.StatusOK},
			code:    ErrorUpstream,
			reason:  "relay_rejected",
			message: MessageFailure,
		},
		{
			name:    "rate limited",
			err:     &web3forms.HTTPStatusError{StatusCode: http.StatusTooManyRequests},
			code:    ErrorRateLimited,
			reason:  "relay_rate_limited",
			message: MessageFailure,
		},
		{
			name:    "rate limited with relay text",
			err:     &web3forms.HTTPStatusError{StatusCode: http.StatusTooManyRequests, Message: "Too many requests"},
			code:    ErrorRateLimited,
			reason:  "relay_rate_limited",
			message: "Too many requests",
		},
		{
			name:    "unreadable relay body",
			err:     &web3forms.NetworkError{Err: &web3forms.HTTPStatusError{StatusCode: http.StatusBadGateway, Body: "<html>"}},
			code:    ErrorUpstream,
			reason:  "relay_network_error",
			message: MessageNetwork,
		},
		{
			name:    "network",
			err:     &web3forms.NetworkError{Err: errors.New("connection reset")},
			code:    ErrorUpstream,
			reason:  "relay_network_error",
			message: MessageNetwork,
		},
		{
			name:    "other",
			err:     errors.New("web3forms: decode response: EOF"),
			code:    ErrorUpstream,
			reason:  "relay_error",
			message: MessageFailure,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &mockLeadStore{}
			svc := newLeadService(t, store, &mockRelay{err: tc.err})

			_, err := svc.Submit(context.Background(), validLead())
			var ucErr *Error
			require.ErrorAs(t, err, &ucErr)
			require.Equal(t, tc.code, ucErr.Code)
			require.Equal(t, tc.reason, ucErr.Reason)
			require.Equal(t, tc.message, ucErr.Message)

			require.Len(t, store.updates, 1)
			require.Equal(t, domain.LeadStatusFailed, store.updates[0].status)
			require.Equal(t, tc.err.Error(), store.updates[0].detail)
		})
	}
}

func TestSubmitLead_StoreErrors(t *testing.T) {
	relay := &mockRelay{}
	svc := newLeadService(t, &mockLeadStore{createErr: errors.New("ConditionalCheckFailed")}, relay)
	_, err := svc.Submit(context.Background(), validLead())
	requireUseCaseError(t, err, ErrorInternal, "dynamodb_write_error")
	require.Zero(t, relay.calls)

	svc = newLeadService(t, &mockLeadStore{updateErr: errors.New("throttled")}, &mockRelay{})
	out, err := svc.Submit(context.Background(), validLead())
	require.NoError(t, err)
	require.Equal(t, MessageSuccess, out.Message)
}

func TestSubmitLead_SingleInFlightPerPhone(t *testing.T) {
	relay := &mockRelay{block: make(chan struct{}), enter: make(chan struct{})}
	svc := newLeadService(t, &mockLeadStore{}, relay)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), validLead())
		done <- err
	}()
	<-relay.enter

	dup := validLead()
	dup.Phone = "+79001234567"
	_, err := svc.Submit(context.Background(), dup)
	requireUseCaseError(t, err, ErrorConflict, "submission_in_flight")

	close(relay.block)
	require.NoError(t, <-done)

	relay.block = nil
	relay.enter = nil
	_, err = svc.Submit(context.Background(), dup)
	require.NoError(t, err)
}
