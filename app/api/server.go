package api

import (
	"context"
	"errors"
	"log/slog"

	"carscout/app/config"
	"carscout/app/service/store"
	"carscout/app/service/turn"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

type Server struct {
	cfg      *config.Config
	appCtx   context.Context
	app      *fiber.App
	turnSvc  *turn.Service
	storeSvc *store.Service
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:      do.MustInvoke[*config.Config](di),
		appCtx:   do.MustInvoke[context.Context](di),
		turnSvc:  do.MustInvoke[*turn.Service](di),
		storeSvc: do.MustInvoke[*store.Service](di),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	api := s.app.Group("/api")
	api.Post("/chats/:id/messages", s.handleSendMessage)
	api.Get("/chats/:id/messages", s.handleListMessages)
	api.Get("/chats/:id/intent", s.handleGetIntent)

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		if err := s.app.Shutdown(); err != nil {
			slog.Error("Failed to shut down HTTP server", "error", err)
		}
	}()

	slog.Info("HTTP server listening", "addr", s.cfg.Server.Addr)

	if err := s.app.Listen(s.cfg.Server.Addr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
