package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"cctracker/internal/app"
	"cctracker/internal/breaker"
	"cctracker/internal/config"
	"cctracker/internal/mailbox"
	"cctracker/internal/notify"
	"cctracker/internal/parser"
	"cctracker/internal/publisher"
	"cctracker/internal/scheduler"
	"cctracker/internal/service"
	"cctracker/internal/storage/sqlstore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	logger := app.SetupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = app.SetupLogger(cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	db, err := app.OpenDB(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

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

	accountStore := sqlstore.NewAccountStore(db)
	transactionStore := sqlstore.NewTransactionStore(db)
	txManager := sqlstore.NewTransactionManager(db)

	parsers, err := parser.Builtin(parser.Options{Location: loc}, cfg.Parsers.Enabled...)
	if err != nil {
		logger.Error("failed to build parsers", "error", err)
		os.Exit(1)
	}
	registry := parser.NewRegistry(sqlstore.NewGateway(db), txManager, logger)
	for _, p := range parsers {
		registry.Register(p)
	}

	pool := mailbox.NewPool(mailbox.ClientFactory(mailbox.Options{
		Timeout:       cfg.IMAP.Timeout,
		RetryAttempts: cfg.IMAP.RetryAttempts,
		RetryDelay:    cfg.IMAP.RetryDelay(),
	}, logger), cfg.Poll.MaxPooledClients, logger)
	defer pool.Close()

	notifier := notify.NewSMTP(notify.Config{
		Host:      cfg.Notify.SMTP.Host,
		Port:      cfg.Notify.SMTP.Port,
		TLS:       cfg.Notify.SMTP.TLS,
		Username:  cfg.Notify.SMTP.Username,
		Password:  cfg.Notify.SMTP.Password,
		From:      cfg.Notify.SMTP.From,
		Operators: cfg.Notify.SMTP.Operators,
	}, logger)

	brk := breaker.New(cfg.Poll.ConsecutiveErrThreshold, cfg.Poll.BreakerWindow())

	pollService := service.NewPollService(
		accountStore,
		transactionStore,
		pool,
		registry,
		notifier,
		pub,
		brk,
		logger,
	)

	sched := scheduler.NewScheduler(pollService, cfg.Poll.Interval(), brk, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting poller",
		"parsers", registry.ParserNames(),
		"interval", cfg.Poll.Interval(),
		"error_threshold", cfg.Poll.ConsecutiveErrThreshold,
		"max_pooled_clients", cfg.Poll.MaxPooledClients,
	)

	if *once {
		err = sched.RunOnce(ctx)
	} else {
		err = sched.Start(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poller stopped", "error", err)
		os.Exit(1)
	}
}
