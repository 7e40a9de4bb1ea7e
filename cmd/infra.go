package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eaglebank/transactions-svc/internal/config"
	"github.com/eaglebank/transactions-svc/internal/repository"
	"github.com/eaglebank/transactions-svc/shared/logging"
	redisClient "github.com/eaglebank/transactions-svc/shared/redis"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// infra holds the store connections shared by every subcommand.
type infra struct {
	cfg    config.Config
	logger *zap.Logger

	mongo *mongo.Client
	db    *mongo.Database
	pg    *sql.DB
	redis *redisClient.Client
}

func setup(ctx context.Context) (*infra, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	in := &infra{cfg: cfg, logger: logger}
	if err := in.connect(ctx); err != nil {
		in.close()
		return nil, err
	}
	return in, nil
}

func (in *infra) connect(ctx context.Context) error {
	var err error
	in.mongo, in.db, err = repository.ConnectMongo(ctx, in.cfg.MongoURI, in.cfg.MongoDatabase)
	if err != nil {
		return err
	}
	if err := repository.EnsureIndexes(ctx, in.db); err != nil {
		return err
	}
	in.logger.Info("connected to mongodb", zap.String("database", in.cfg.MongoDatabase))

	in.pg, err = repository.OpenPostgres(ctx, in.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := repository.NewRiskRuleRepository(in.pg).EnsureSchema(ctx); err != nil {
		return err
	}
	in.logger.Info("connected to postgres")

	in.redis, err = redisClient.NewClient(ctx, redisClient.Options{
		Addr:     in.cfg.RedisAddr,
		Password: in.cfg.RedisPassword,
		DB:       in.cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	in.logger.Info("connected to redis", zap.String("addr", in.cfg.RedisAddr))
	return nil
}

func (in *infra) transactor() repository.Transactor {
	if in.cfg.MongoTransactions {
		return repository.NewMongoTransactor(in.mongo)
	}
	in.logger.Warn("MONGO_TRANSACTIONS is off, account and transaction writes are not atomic")
	return repository.SequentialTransactor{}
}

func (in *infra) close() {
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.pg != nil {
		_ = in.pg.Close()
	}
	if in.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = in.mongo.Disconnect(ctx)
	}
	_ = in.logger.Sync()
}
