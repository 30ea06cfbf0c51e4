// Package web serves the chat backend over plain HTTP for local and
// container runs. API routes are answered by the same handler the Lambda
// uses; /ws adds a live chat socket.
package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// APIHandler is the API Gateway proxy handler mounted under every non-socket
// route.
type APIHandler interface {
	Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

type Server struct {
	echo   *echo.Echo
	api    APIHandler
	socket *ChatSocket
	logger *slog.Logger
}

func NewServer(api APIHandler, socket *ChatSocket, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))

	s := &Server{echo: e, api: api, socket: socket, logger: logger}

	e.GET("/healthz", s.handleHealth)
	if socket != nil {
		e.GET("/ws", socket.HandleWebSocket)
	}
	e.Any("/*", s.handleAPI)
	return s
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and closes open chat sockets.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.socket != nil {
		s.socket.CloseAll()
	}
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) handleHealth(c echo.Context) error {
	conns := 0
	if s.socket != nil {
		conns = s.socket.Connections()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "healthy",
		"connections": conns,
	})
}

func (s *Server) handleAPI(c echo.Context) error {
	req, err := toProxyRequest(c.Request())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	resp, err := s.api.Handle(c.Request().Context(), req)
	if err != nil {
		s.logger.Error("api handler failed", "path", req.Path, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	for k, v := range resp.Headers {
		c.Response().Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			c.Response().Header().Add(k, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err = io.WriteString(c.Response(), resp.Body)
	return err
}

// toProxyRequest converts a plain HTTP request into the event API Gateway
// would deliver for it.
func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return events.APIGatewayProxyRequest{}, err
		}
	}

	headers := make(map[string]string, len(r.Header))
	multiHeaders := make(map[string][]string, len(r.Header))
	for k, vs := range r.Header {
		headers[k] = strings.Join(vs, ",")
		multiHeaders[k] = append([]string(nil), vs...)
	}

	query := r.URL.Query()
	params := make(map[string]string, len(query))
	multiParams := make(map[string][]string, len(query))
	for k, vs := range query {
		if len(vs) > 0 {
			params[k] = vs[len(vs)-1]
		}
		multiParams[k] = append([]string(nil), vs...)
	}

	return events.APIGatewayProxyRequest{
		HTTPMethod:                      r.Method,
		Path:                            r.URL.Path,
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           params,
		MultiValueQueryStringParameters: multiParams,
		Body:                            string(body),
	}, nil
}
