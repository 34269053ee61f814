package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"carscout/app/api"
	"carscout/app/client/llm"
	"carscout/app/client/pg"
	"carscout/app/config"
	"carscout/app/service/inventory"
	"carscout/app/service/mcptool"
	"carscout/app/service/store"
	"carscout/app/service/turn"
	"carscout/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, pg.NewDB)
	do.Provide(di, llm.NewExtractionAgent)
	do.Provide(di, llm.NewReplyComposer)
	do.Provide(di, inventory.New)
	do.Provide(di, store.New)
	do.Provide(di, turn.New)
	do.Provide(di, mcptool.New)
	do.Provide(di, api.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	if cfg.MCP.Enabled {
		go func() {
			if err := do.MustInvoke[*mcptool.Service](di).Run(appCtx); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	if err = do.MustInvoke[*api.Server](di).Run(appCtx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
