package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	infra "github.com/pot-code/go-signin/internal/infrastructure"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
	"github.com/pot-code/go-signin/internal/infrastructure/logging"
	"github.com/pot-code/go-signin/internal/infrastructure/uuid"
	ihttp "github.com/pot-code/go-signin/internal/interfaces/http"
	"github.com/pot-code/go-signin/internal/interfaces/web"
	"github.com/pot-code/go-signin/internal/session"
	"github.com/pot-code/go-signin/internal/signin"
	"go.elastic.co/apm/module/apmhttp"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitWebConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)
	defer rdb.Close()

	// requests are bounded by the request context only
	httpClient := new(http.Client)
	if option.DevOP.APM {
		httpClient = apmhttp.WrapClient(httpClient)
	}
	client, err := signin.NewClient(option.APIBaseURL,
		signin.WithHTTPClient(httpClient),
		signin.WithClientLogger(logger),
	)
	if err != nil {
		logger.Fatal("Failed to create login client", zap.Error(err))
	}
	store := session.NewStore(rdb, rdb, uuid.NewNanoIDGenerator(option.Session.IDLength), option.Session.Lifetime, logger)

	app, err := web.NewServer(rdb, option, client, store, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}
	if err := ihttp.Serve(ctx, app, fmt.Sprintf("%s:%d", option.Host, option.Port), logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
