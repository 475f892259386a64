package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"chat-client/internal/api"
	"chat-client/internal/config"
	"chat-client/internal/db"
	"chat-client/internal/directory"
	"chat-client/internal/identity"
	"chat-client/internal/observability"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/realtime"
	"chat-client/internal/repositories"
	"chat-client/internal/room"
	"chat-client/internal/telemetry"
)

// app holds every long-lived component of a chat session.
type app struct {
	client    *api.Client
	directory *directory.Directory
	consumer  *realtime.Consumer
	engine    *room.Engine
	identity  *identity.Store
	publisher rabbitmq.Publisher
	archiveDB *sqlx.DB

	shutdownTracing telemetry.ShutdownFunc
}

func newBackend(cfg config.Config) (*api.Client, *directory.Directory, error) {
	client, err := api.NewClient(cfg.APIURL, api.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}))
	if err != nil {
		return nil, nil, err
	}
	return client, directory.New(client, directory.DefaultStaleAfter), nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	shutdown, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.AppEnv)
	if err != nil {
		log.Warn().Err(err).Msg("[tracing] disabled")
		shutdown = func(context.Context) error { return nil }
	}
	a.shutdownTracing = shutdown

	a.publisher = rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	observability.SetPublisher(a.publisher)
	log.Debug().Str("mode", rabbitmq.PublisherMode(a.publisher)).Str("reason", rabbitmq.PublisherNoopReason(a.publisher)).Msg("[events] publisher ready")

	a.client, a.directory, err = newBackend(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.identity, err = identity.Open(cfg.DataDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	var opts []room.Option
	if cfg.ArchiveDSN != "" {
		database, err := db.Connect(cfg.ArchiveDSN)
		if err != nil {
			log.Warn().Err(err).Msg("[archive] disabled")
		} else {
			a.archiveDB = database
			opts = append(opts, room.WithArchiver(repositories.NewTranscriptRepo(database)))
		}
	}

	a.consumer = realtime.NewConsumer(cfg.WSURL, realtime.WithHeader(http.Header{"Origin": []string{cfg.APIURL}}))
	a.engine = room.New(a.client, a.consumer, opts...)
	return a, nil
}

// Close tears components down in reverse dependency order.
func (a *app) Close() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.identity != nil {
		if err := a.identity.Close(); err != nil {
			log.Warn().Err(err).Msg("[identity] close failed")
		}
	}
	if a.archiveDB != nil {
		_ = a.archiveDB.Close()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			log.Warn().Err(err).Msg("[tracing] shutdown failed")
		}
	}
}

func requireArchive(cfg config.Config) (*sqlx.DB, error) {
	if cfg.ArchiveDSN == "" {
		return nil, fmt.Errorf("ARCHIVE_DSN is not set")
	}
	return db.Connect(cfg.ArchiveDSN)
}
