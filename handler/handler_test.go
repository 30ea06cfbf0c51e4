package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"kennel-assistant/internal/catalog"
	"kennel-assistant/internal/domain"
	"kennel-assistant/internal/usecase"
)

type stubChat struct {
	askOut  usecase.AskOutput
	histOut usecase.HistoryOutput
	err     error
	in      usecase.AskInput
	histID  string
}

func (s *stubChat) StartSession(_ context.Context) (usecase.HistoryOutput, error) {
	return s.histOut, s.err
}

func (s *stubChat) Ask(_ context.Context, in usecase.AskInput) (usecase.AskOutput, error) {
	s.in = in
	return s.askOut, s.err
}

func (s *stubChat) History(_ context.Context, sessionID string) (usecase.HistoryOutput, error) {
	s.histID = sessionID
	return s.histOut, s.err
}

type stubLeads struct {
	out usecase.LeadOutput
	err error
	in  usecase.LeadInput
}

func (s *stubLeads) Submit(_ context.Context, in usecase.LeadInput) (usecase.LeadOutput, error) {
	s.in = in
	return s.out, s.err
}

type stubStats struct {
	out     usecase.StatsOutput
	err     error
	outcome string
}

func (s *stubStats) Lookups(_ context.Context, outcome string) (usecase.StatsOutput, error) {
	s.outcome = outcome
	return s.out, s.err
}

type fixture struct {
	chat  *stubChat
	leads *stubLeads
	stats *stubStats
	h     *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{chat: &stubChat{}, leads: &stubLeads{}, stats: &stubStats{}}
	h, err := NewHandler(f.chat, f.leads, f.stats, catalog.Default())
	require.NoError(t, err)
	f.h = h
	return f
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubLeads{}, &stubStats{}, catalog.Default())
	require.Error(t, err)
	_, err = NewHandler(&stubChat{}, nil, &stubStats{}, catalog.Default())
	require.Error(t, err)
	_, err = NewHandler(&stubChat{}, &stubLeads{}, nil, catalog.Default())
	require.Error(t, err)
	_, err = NewHandler(&stubChat{}, &stubLeads{}, &stubStats{}, nil)
	require.Error(t, err)
}

func TestHandle_Ask(t *testing.T) {
	f := newFixture(t)
	reply := domain.Message{Role: domain.RoleBot, Text: "Цена щенка..."}
	f.chat.askOut = usecase.AskOutput{SessionID: "sess-1", Reply: reply, Matched: true, History: []domain.Message{reply}}

	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `{"message":"цена?","sessionId":"sess-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.AskInput{Message: "цена?", SessionID: "sess-1"}, f.chat.in)

	out := parseBody[askResponse](t, resp.Body)
	require.Equal(t, "sess-1", out.SessionID)
	require.Equal(t, reply, out.Reply)
	require.True(t, out.Matched)
	require.Len(t, out.Messages, 1)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_StartSessionAndHistory(t *testing.T) {
	f := newFixture(t)
	f.chat.histOut = usecase.HistoryOutput{SessionID: "sess-1", Messages: []domain.Message{{Role: domain.RoleBot, Text: "Здравствуйте!"}}}

	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat/sessions", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "sess-1", parseBody[historyResponse](t, resp.Body).SessionID)

	event := makeEvent(http.MethodGet, "/chat/history/", "")
	event.QueryStringParameters = map[string]string{"sessionId": "sess-1"}
	resp, err = f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "sess-1", f.chat.histID)
	require.Len(t, parseBody[historyResponse](t, resp.Body).Messages, 1)
}

func TestHandle_InvalidBody(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/chat", "/leads"} {
		resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, path, `not-json`))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		out := parseBody[errorResponse](t, resp.Body)
		require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
		require.Equal(t, "invalid_body", out.Reason)
		require.Equal(t, usecase.MessageFailure, out.Message)
	}
}

func TestHandle_LeadJSON(t *testing.T) {
	f := newFixture(t)
	f.leads.out = usecase.LeadOutput{LeadID: "lead-1", Message: usecase.MessageSuccess}

	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/leads", `{"name":"Анна","phone":"+79001234567","puppy":"Белла","message":"Здравствуйте"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, usecase.LeadInput{Name: "Анна", Phone: "+79001234567", Puppy: "Белла", Message: "Здравствуйте"}, f.leads.in)

	out := parseBody[leadResponse](t, resp.Body)
	require.Equal(t, leadResponse{LeadID: "lead-1", Message: usecase.MessageSuccess}, out)
}

func TestHandle_LeadForm(t *testing.T) {
	f := newFixture(t)

	event := makeEvent(http.MethodPost, "/leads", "")
	event.Headers = map[string]string{"content-type": "application/x-www-form-urlencoded; charset=UTF-8"}
	event.Body = base64.StdEncoding.EncodeToString([]byte("name=%D0%90%D0%BD%D0%BD%D0%B0&phone=%2B79001234567&puppy=&message=hi"))
	event.IsBase64Encoded = true

	resp, err := f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, usecase.LeadInput{Name: "Анна", Phone: "+79001234567", Message: "hi"}, f.leads.in)
}

func TestHandle_LeadErrorSurfacesMessage(t *testing.T) {
	f := newFixture(t)
	f.leads.err = &usecase.Error{Code: usecase.ErrorUpstream, Reason: "relay_network_error", Message: usecase.MessageNetwork}

	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/leads", `{"name":"Анна","phone":"+79001234567"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, errorResponse{Error: "UPSTREAM_ERROR", Reason: "relay_network_error", Message: usecase.MessageNetwork}, out)
}

func TestHandle_Puppies(t *testing.T) {
	f := newFixture(t)

	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodGet, "/puppies", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, parseBody[puppiesResponse](t, resp.Body).Puppies, 4)

	event := makeEvent(http.MethodGet, "/puppies", "")
	event.QueryStringParameters = map[string]string{"available": "true"}
	resp, err = f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	for _, p := range parseBody[puppiesResponse](t, resp.Body).Puppies {
		require.Equal(t, domain.PuppyAvailable, p.Status)
	}
}

func TestHandle_Stats(t *testing.T) {
	f := newFixture(t)
	f.stats.out = usecase.StatsOutput{Outcome: "fallback", Lookups: []domain.KeywordLookup{{Keyword: "", Outcome: "fallback", Count: 7}}}

	event := makeEvent(http.MethodGet, "/stats/lookups", "")
	event.QueryStringParameters = map[string]string{"outcome": "fallback"}
	resp, err := f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "fallback", f.stats.outcome)

	out := parseBody[statsResponse](t, resp.Body)
	require.Equal(t, "fallback", out.Outcome)
	require.Equal(t, int64(7), out.Lookups[0].Count)
}

func TestHandle_Routing(t *testing.T) {
	f := newFixture(t)

	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = f.h.Handle(context.Background(), makeEvent(http.MethodDelete, "/chat", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = f.h.Handle(context.Background(), makeEvent(http.MethodOptions, "/leads", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_message"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "session_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "conflict", err: &usecase.Error{Code: usecase.ErrorConflict, Reason: "submission_in_flight"}, status: http.StatusConflict, code: string(usecase.ErrorConflict)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "relay_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "relay_rejected"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "dynamodb_write_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.chat.err = tc.err

			resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `{"message":"цена"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, usecase.MessageFailure, out.Message)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	f := newFixture(t)

	event := makeEvent(http.MethodPost, "/chat", `{"message":"цена"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
