package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"kennel-assistant/internal/domain"
	"kennel-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type ChatUseCase interface {
	StartSession(ctx context.Context) (usecase.HistoryOutput, error)
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
	History(ctx context.Context, sessionID string) (usecase.HistoryOutput, error)
}

type LeadUseCase interface {
	Submit(ctx context.Context, in usecase.LeadInput) (usecase.LeadOutput, error)
}

type StatsUseCase interface {
	Lookups(ctx context.Context, outcome string) (usecase.StatsOutput, error)
}

type PuppyLister interface {
	All() []domain.Puppy
	Available() []domain.Puppy
}

type Handler struct {
	chat    ChatUseCase
	leads   LeadUseCase
	stats   StatsUseCase
	puppies PuppyLister
	logger  *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

type askRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type askResponse struct {
	SessionID string           `json:"sessionId"`
	Reply     domain.Message   `json:"reply"`
	Matched   bool             `json:"matched"`
	Messages  []domain.Message `json:"messages"`
}

type historyResponse struct {
	SessionID string           `json:"sessionId"`
	Messages  []domain.Message `json:"messages"`
	IsTyping  bool             `json:"isTyping"`
}

type leadRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Puppy   string `json:"puppy"`
	Message string `json:"message"`
}

type leadResponse struct {
	LeadID  string `json:"leadId"`
	Message string `json:"message"`
}

type puppiesResponse struct {
	Puppies []domain.Puppy `json:"puppies"`
}

type statsResponse struct {
	Outcome string                 `json:"outcome"`
	Lookups []domain.KeywordLookup `json:"lookups"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func NewHandler(chat ChatUseCase, leads LeadUseCase, stats StatsUseCase, puppies PuppyLister, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if leads == nil {
		return nil, errors.New("handler: lead use case must not be nil")
	}
	if stats == nil {
		return nil, errors.New("handler: stats use case must not be nil")
	}
	if puppies == nil {
		return nil, errors.New("handler: puppy lister must not be nil")
	}
	h := &Handler{chat: chat, leads: leads, stats: stats, puppies: puppies, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", corrID)

	path := strings.TrimRight(req.Path, "/")
	if path == "" {
		path = "/"
	}

	resp := h.route(ctx, logger, req, path)
	resp.Headers[correlationHeader] = corrID
	logger.Info("request handled", "method", req.HTTPMethod, "path", path, "status", resp.StatusCode)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, logger *slog.Logger, req events.APIGatewayProxyRequest, path string) events.APIGatewayProxyResponse {
	if req.HTTPMethod == http.MethodOptions {
		return response(http.StatusNoContent, "")
	}

	switch {
	case path == "/chat/sessions" && req.HTTPMethod == http.MethodPost:
		out, err := h.chat.StartSession(ctx)
		if err != nil {
			return errorResponseFrom(logger, err)
		}
		return jsonResponse(http.StatusCreated, historyResponse{SessionID: out.SessionID, Messages: out.Messages, IsTyping: out.IsTyping})

	case path == "/chat" && req.HTTPMethod == http.MethodPost:
		var in askRequest
		if err := json.Unmarshal([]byte(body(req)), &in); err != nil {
			return invalidBody()
		}
		out, err := h.chat.Ask(ctx, usecase.AskInput{Message: in.Message, SessionID: in.SessionID})
		if err != nil {
			return errorResponseFrom(logger.With("session_id", in.SessionID), err)
		}
		return jsonResponse(http.StatusOK, askResponse{SessionID: out.SessionID, Reply: out.Reply, Matched: out.Matched, Messages: out.History})

	case path == "/chat/history" && req.HTTPMethod == http.MethodGet:
		sessionID := req.QueryStringParameters["sessionId"]
		out, err := h.chat.History(ctx, sessionID)
		if err != nil {
			return errorResponseFrom(logger.With("session_id", sessionID), err)
		}
		return jsonResponse(http.StatusOK, historyResponse{SessionID: out.SessionID, Messages: out.Messages, IsTyping: out.IsTyping})

	case path == "/leads" && req.HTTPMethod == http.MethodPost:
		in, ok := decodeLead(req)
		if !ok {
			return invalidBody()
		}
		out, err := h.leads.Submit(ctx, usecase.LeadInput{Name: in.Name, Phone: in.Phone, Puppy: in.Puppy, Message: in.Message})
		if err != nil {
			return errorResponseFrom(logger, err)
		}
		logger.Info("lead submitted", "lead_id", out.LeadID)
		return jsonResponse(http.StatusCreated, leadResponse{LeadID: out.LeadID, Message: out.Message})

	case path == "/puppies" && req.HTTPMethod == http.MethodGet:
		list := h.puppies.All()
		if strings.EqualFold(req.QueryStringParameters["available"], "true") {
			list = h.puppies.Available()
		}
		return jsonResponse(http.StatusOK, puppiesResponse{Puppies: list})

	case path == "/stats/lookups" && req.HTTPMethod == http.MethodGet:
		out, err := h.stats.Lookups(ctx, req.QueryStringParameters["outcome"])
		if err != nil {
			return errorResponseFrom(logger, err)
		}
		return jsonResponse(http.StatusOK, statsResponse{Outcome: out.Outcome, Lookups: out.Lookups})
	}

	if knownPath(path) {
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed", Message: usecase.MessageFailure})
	}
	return jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found", Message: usecase.MessageFailure})
}

func knownPath(path string) bool {
	switch path {
	case "/chat/sessions", "/chat", "/chat/history", "/leads", "/puppies", "/stats/lookups":
		return true
	}
	return false
}

// decodeLead accepts the JSON body or the form-encoded fields the site's
// contact form posts.
func decodeLead(req events.APIGatewayProxyRequest) (leadRequest, bool) {
	raw := body(req)
	mediaType, _, _ := mime.ParseMediaType(headerValue(req.Headers, "Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(raw)
		if err != nil {
			return leadRequest{}, false
		}
		return leadRequest{
			Name:    form.Get("name"),
			Phone:   form.Get("phone"),
			Puppy:   form.Get("puppy"),
			Message: form.Get("message"),
		}, true
	}
	var in leadRequest
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return leadRequest{}, false
	}
	return in, true
}

func body(req events.APIGatewayProxyRequest) string {
	if !req.IsBase64Encoded {
		return req.Body
	}
	decoded, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func invalidBody() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, errorResponse{
		Error:   string(usecase.ErrorInvalidInput),
		Reason:  "invalid_body",
		Message: usecase.MessageFailure,
	})
}

func errorResponseFrom(logger *slog.Logger, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logger.Error("unclassified error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{
			Error:   string(usecase.ErrorInternal),
			Message: usecase.MessageFailure,
		})
	}

	status := statusFor(ucErr.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		logger.Warn("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
	}

	msg := ucErr.Message
	if msg == "" {
		msg = usecase.MessageFailure
	}
	return jsonResponse(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason, Message: msg})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(v)
	if err != nil {
		return response(http.StatusInternalServerError, `{"error":"INTERNAL_ERROR","message":"Что-то пошло не так"}`)
	}
	return response(status, string(raw))
}

func response(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                 "application/json; charset=utf-8",
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Headers": "Content-Type, X-Correlation-Id",
			"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		},
		Body: body,
	}
}
