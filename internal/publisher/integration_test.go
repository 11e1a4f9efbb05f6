//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"cctracker/internal/domain"
	"cctracker/internal/testutil"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "test-routing-key-" + name,
		QueueName:  "test-queue-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("connect"), s.logger)
	s.NoError(err)
	s.NotNil(pub)

	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishCreated() {
	cfg := s.config("created")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	event := &domain.TransactionEvent{
		Action:     domain.EventCreated,
		Parser:     "Citi Bank",
		AccountID:  7,
		ExternalID: "abc1",
		Transaction: &domain.Transaction{
			ID:             1,
			AccountID:      7,
			ExternalID:     "abc1",
			CardNo:         "1234",
			Currency:       "USD",
			Amount:         decimal.RequireFromString("45.00"),
			OccurredAt:     time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC),
			Place:          domain.Place{ID: 3, Name: "AMAZON.COM", Kind: domain.PlaceKindUnknown},
			CorrelationTag: testutil.Ptr("REF-1"),
			CreatedBy:      "Citi Bank",
		},
	}
	s.Require().NoError(pub.Publish(s.ctx, event))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal("transaction.created", msg.Type)
	s.NotEmpty(msg.MessageId)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received domain.TransactionEvent
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(domain.EventCreated, received.Action)
	s.Equal("abc1", received.ExternalID)
	s.Require().NotNil(received.Transaction)
	s.True(decimal.RequireFromString("45").Equal(received.Transaction.Amount))
	s.Equal("AMAZON.COM", received.Transaction.Place.Name)
	s.Equal("REF-1", *received.Transaction.CorrelationTag)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishCancelled() {
	cfg := s.config("cancelled")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	s.Require().NoError(pub.Publish(s.ctx, &domain.TransactionEvent{
		Action:     domain.EventCancelled,
		Parser:     "CitiIndia",
		AccountID:  7,
		ExternalID: "99",
	}))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received domain.TransactionEvent
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(domain.EventCancelled, received.Action)
	s.Nil(received.Transaction)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
