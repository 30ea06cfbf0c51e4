// Package app wires the chat backend from configuration. Both entrypoints
// build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"kennel-assistant/handler"
	"kennel-assistant/internal/catalog"
	"kennel-assistant/internal/config"
	"kennel-assistant/internal/conversation"
	"kennel-assistant/internal/integrations/paramstore"
	"kennel-assistant/internal/integrations/web3forms"
	"kennel-assistant/internal/knowledge"
	"kennel-assistant/internal/repository"
	"kennel-assistant/internal/usecase"
)

type App struct {
	Handler *handler.Handler
	Matcher knowledge.Matcher
	Lookups *repository.Client
	cfg     *config.Config
}

// New builds every dependency of the API handler. The knowledge base comes
// from KNOWLEDGE_PARAM when set, otherwise the built-in table is used.
func New(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}

	dynamo := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
	store, err := repository.New(dynamo, cfg.TableName)
	if err != nil {
		return nil, fmt.Errorf("app: create store: %w", err)
	}

	base := knowledge.Default()
	if cfg.KnowledgeParam != "" {
		base, err = knowledge.Load(ctx, params, cfg.KnowledgeParam)
		if err != nil {
			return nil, fmt.Errorf("app: load knowledge base: %w", err)
		}
	}
	matcher, err := knowledge.NewMatcher(cfg.MatchPolicy, base)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	logger.Info("knowledge base ready", "entries", base.Len(), "policy", cfg.MatchPolicy)

	relay, err := web3forms.NewClient(params, cfg.AccessKeyParam(), web3forms.WithEndpoint(cfg.RelayEndpoint))
	if err != nil {
		return nil, fmt.Errorf("app: create relay client: %w", err)
	}

	a := &App{Matcher: matcher, Lookups: store, cfg: cfg}

	chat, err := usecase.NewChatService(func() (*conversation.Engine, error) {
		return a.NewEngine(nil)
	}, store, usecase.ChatConfig{
		MaxMessageLen: cfg.MaxMessageLen,
		SessionTTL:    cfg.SessionTTL,
		MaxSessions:   cfg.MaxSessions,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}

	puppies := catalog.Default()
	leads, err := usecase.NewLeadService(store, relay, puppies, logger)
	if err != nil {
		return nil, fmt.Errorf("app: create lead service: %w", err)
	}
	stats, err := usecase.NewStatsService(store)
	if err != nil {
		return nil, fmt.Errorf("app: create stats service: %w", err)
	}

	a.Handler, err = handler.NewHandler(chat, leads, stats, puppies, handler.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: create handler: %w", err)
	}
	return a, nil
}

// NewEngine starts a conversation with the configured matcher and delays.
func (a *App) NewEngine(onChange func(conversation.Snapshot)) (*conversation.Engine, error) {
	return conversation.NewEngine(a.Matcher, conversation.Options{
		MatchDelay:    a.cfg.MatchDelay,
		FallbackDelay: a.cfg.FallbackDelay,
		OnChange:      onChange,
	})
}
