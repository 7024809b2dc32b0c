package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	infra "github.com/pot-code/go-signin/internal/infrastructure"
	"github.com/pot-code/go-signin/internal/infrastructure/auth"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
	"github.com/pot-code/go-signin/internal/infrastructure/logging"
	"github.com/pot-code/go-signin/internal/infrastructure/uuid"
	ihttp "github.com/pot-code/go-signin/internal/interfaces/http"
	"github.com/pot-code/go-signin/internal/user"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitServerConfig(os.Args[1:])
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

	dbConn, err := driver.GetDBConnection(ctx, &driver.DBConfig{
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Driver:   option.Database.Driver,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		logger.Fatal("Failed to create DB connection", zap.Error(err))
	}
	defer dbConn.Close(context.Background())
	logger.Debug("Create DB connection instance", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.String("db.host", option.Database.Host),
	)

	rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)
	defer rdb.Close()

	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)
	UserRepo := user.NewUserRepository(dbConn)
	LoginLimiter := user.NewLoginLimiter(rdb, option.Security.MaxLoginAttempts, option.Security.RetryTimeout)
	UserUseCase := user.NewUserUseCase(UserRepo, UUIDGenerator, LoginLimiter)
	jwtUtil := auth.NewJWTUtil(option.Security.JWTMethod,
		option.Security.JWTSecret,
		option.Security.AccessTimeout,
		option.Security.RefreshTimeout)

	app := ihttp.NewServer(dbConn, rdb, option, UserUseCase, jwtUtil, logger)
	if err := ihttp.Serve(ctx, app, fmt.Sprintf("%s:%d", option.Host, option.Port), logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
