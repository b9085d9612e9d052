package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Logger *logger.Logger
	DB     pinger
	Redis  pinger
	Worker *tasks.Worker
}

// Service checks dependencies once and then runs the task worker pool until
// the context ends.
type Service struct {
	logg   *logger.Logger
	db     pinger
	redis  pinger
	worker *tasks.Worker
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Worker == nil {
		return nil, errors.New("task worker is required")
	}
	return &Service{
		logg:   params.Logger,
		db:     params.DB,
		redis:  params.Redis,
		worker: params.Worker,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	err := s.worker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "task worker stopped unexpectedly", err)
		return err
	}
	s.logg.Info(ctx, "task worker context canceled")
	return nil
}
