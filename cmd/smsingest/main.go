// Command smsingest records one forwarded SMS alert against an SMS-only account.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"cctracker/internal/app"
	"cctracker/internal/config"
	"cctracker/internal/domain"
	"cctracker/internal/parser"
	"cctracker/internal/publisher"
	"cctracker/internal/service"
	"cctracker/internal/storage/sqlstore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	address := flag.String("account", "", "address of the SMS-only account")
	sender := flag.String("sender", "", "SMS sender id, e.g. LM-Citibk")
	body := flag.String("body", "", "SMS text")
	smsID := flag.String("id", "", "unique id of the SMS on the device")
	at := flag.String("at", "", "receive time, RFC 3339 (default now)")
	flag.Parse()

	logger := app.SetupLogger("info")

	if *address == "" || *sender == "" || *body == "" || *smsID == "" {
		flag.Usage()
		os.Exit(2)
	}

	received := time.Now()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			logger.Error("invalid -at", "error", err)
			os.Exit(2)
		}
		received = t
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	logger = app.SetupLogger(cfg.LogLevel)

	ctx := context.Background()

	db, err := app.OpenDB(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	parsers, err := parser.Builtin(parser.Options{Location: loc}, cfg.Parsers.Enabled...)
	if err != nil {
		logger.Error("failed to build parsers", "error", err)
		os.Exit(1)
	}
	registry := parser.NewRegistry(sqlstore.NewGateway(db), sqlstore.NewTransactionManager(db), logger)
	for _, p := range parsers {
		registry.Register(p)
	}

	account, err := sqlstore.NewAccountStore(db).GetByAddress(ctx, *address)
	if err != nil {
		logger.Error("failed to load account", "account", *address, "error", err)
		os.Exit(1)
	}

	sms := service.NewSMSService(sqlstore.NewTransactionStore(db), registry, pub, logger)
	res, err := sms.Ingest(ctx, *account, *sender, *body, received, *smsID)
	switch {
	case errors.Is(err, domain.ErrAlreadyIngested):
		logger.Info("sms already ingested", "id", *smsID)
	case err != nil:
		logger.Error("sms ingest failed", "error", err)
	case res.Outcome == parser.OutcomeFailed:
		logger.Error("sms parse failed",
			"id", *smsID,
			"parser", res.Parser,
			"code", res.Err.Code,
			"error", res.Err.Message,
		)
	default:
		logger.Info("sms ingested", "id", *smsID, "outcome", res.Outcome.String(), "parser", res.Parser)
	}
	os.Exit(exitCode(res, err))
}

// exitCode is non-zero when the SMS could not be stored or parsed. A repeat
// of an already stored SMS is a success.
func exitCode(res parser.Result, err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyIngested):
		return 0
	case err != nil, res.Outcome == parser.OutcomeFailed:
		return 1
	default:
		return 0
	}
}
