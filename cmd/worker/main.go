package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/kiwi/graphmerge/internal/queue"
	"github.com/OFFIS-RIT/kiwi/graphmerge/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/ai"
	oai "github.com/OFFIS-RIT/kiwi/graphmerge/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/kiwi/graphmerge/pkg/ai/openai"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/expand"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/extract"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger/console"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/segment"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/store"
	pgxstore "github.com/OFFIS-RIT/kiwi/graphmerge/pkg/store/pgx"
	s3store "github.com/OFFIS-RIT/kiwi/graphmerge/pkg/store/s3"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/web"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/workspace"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// merge engine
	policy := graph.DefaultPolicy()
	policy.Threshold = util.GetEnvNumeric("MERGE_THRESHOLD", policy.Threshold)
	policy.TypeMatchWeight = util.GetEnvNumeric("MERGE_WEIGHT_TYPE", policy.TypeMatchWeight)
	policy.ExactNameWeight = util.GetEnvNumeric("MERGE_WEIGHT_EXACT_NAME", policy.ExactNameWeight)
	policy.PartialNameWeight = util.GetEnvNumeric("MERGE_WEIGHT_PARTIAL_NAME", policy.PartialNameWeight)
	policy.PropertyMatchWeight = util.GetEnvNumeric("MERGE_WEIGHT_PROPERTY", policy.PropertyMatchWeight)
	policy.PropertyMatchCap = util.GetEnvNumeric("MERGE_WEIGHT_PROPERTY_CAP", policy.PropertyMatchCap)
	policy.NameKeys = util.GetEnvList("MERGE_NAME_KEYS", policy.NameKeys)

	engine, err := graph.NewEngine(graph.EngineParams{
		Policy:    &policy,
		Allocator: graph.NewNanoidAllocator(int(util.GetEnvNumeric("MERGE_ID_SIZE", 12))),
	})
	if err != nil {
		logger.Fatal("Invalid merge policy", "err", err)
	}

	// Init pgx client
	databaseURL := util.GetEnv("DATABASE_URL")
	var pgConn *pgxpool.Pool
	if databaseURL != "" {
		if err := pgxstore.Migrate(databaseURL); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
		pgConn, err = pgxpool.New(ctx, databaseURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pgConn.Close()
	}

	// snapshot store
	var graphStore store.GraphStore
	switch backend := util.GetEnvString("SNAPSHOT_BACKEND", "postgres"); backend {
	case "s3":
		s3Client, err := s3store.NewClient(ctx, s3store.ClientParams{
			Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT_URL"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY_ID"),
			SecretKey: util.GetEnv("AWS_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create S3 client", "err", err)
		}
		graphStore = s3store.NewSnapshotStore(s3Client, util.GetEnv("AWS_BUCKET"), util.GetEnv("AWS_PREFIX"))
	case "postgres":
		if pgConn == nil {
			logger.Fatal("SNAPSHOT_BACKEND=postgres requires DATABASE_URL")
		}
		graphStore = pgxstore.NewSnapshotStore(pgConn)
	case "memory":
		logger.Warn("Using in-memory snapshot store, graphs are lost on exit")
		graphStore = store.NewMemoryStore()
	default:
		logger.Fatal("Unknown snapshot backend", "backend", backend)
	}

	// per-graph lease
	var locker leaselock.Locker = leaselock.NewLocal()
	if pgConn != nil {
		locker = leaselock.New(pgConn)
	}
	hostname, _ := os.Hostname()

	ws, err := workspace.New(workspace.Params{
		Engine: engine,
		Store:  graphStore,
		Locker: locker,
		LockOptions: &leaselock.Options{
			TTL:          util.GetEnvDuration("MERGE_LEASE_TTL", 2*time.Minute),
			Wait:         true,
			WaitInterval: 250 * time.Millisecond,
			WaitJitter:   250 * time.Millisecond,
			TokenPrefix:  fmt.Sprintf("worker/%s/", hostname),
		},
	})
	if err != nil {
		logger.Fatal("Could not create workspace", "err", err)
	}

	// GraphAiClient
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.GraphAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 1)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		})
	}

	var extractOpts []ai.GenerateOption
	if thinking := util.GetEnv("EXTRACT_THINKING"); thinking != "" {
		extractOpts = append(extractOpts, ai.WithThinking(thinking))
	}
	extractor := extract.NewLLMExtractor(extract.NewLLMExtractorParams{
		Client:   aiClient,
		MaxTries: int(util.GetEnvNumeric("EXTRACT_MAX_TRIES", 3)),
		Backoff: util.Backoff{
			Base: util.GetEnvDuration("EXTRACT_BACKOFF", 2*time.Second),
			Max:  30 * time.Second,
		},
		GenerateOpts: extractOpts,
	})
	entityTypes := util.GetEnvList("EXTRACT_ENTITY_TYPES", nil)

	var expander *expand.Expander
	if searchURL := util.GetEnv("SEARCH_URL"); searchURL != "" {
		var queryOpts []ai.GenerateOption
		if model := util.GetEnv("SEARCH_QUERY_MODEL"); model != "" {
			queryOpts = append(queryOpts, ai.WithModel(model))
		}
		expander = expand.NewExpander(expand.NewExpanderParams{
			Searcher:      expand.NewSearxSearcher(searchURL, nil),
			Fetcher:       web.NewFetcher(web.NewFetcherParams{}),
			Extractor:     extractor,
			AI:            aiClient,
			QueryOpts:     queryOpts,
			NameKeys:      policy.NameKeys,
			MaxResults:    int(util.GetEnvNumeric("SEARCH_MAX_RESULTS", 3)),
			MaxPageTokens: int(util.GetEnvNumeric("SEARCH_MAX_PAGE_TOKENS", 3000)),
			EntityTypes:   entityTypes,
		})
	} else {
		logger.Warn("SEARCH_URL not set, expand_queue messages will be dead-lettered")
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := queue.Queues
	if err := queue.SetupQueues(ch, queues, util.GetEnvDuration("QUEUE_RETRY_DELAY", 10*time.Second)); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	handler := queue.NewHandler(queue.NewHandlerParams{
		Workspace:    ws,
		Orchestrator: segment.NewOrchestrator(extractor),
		Expander:     expander,
		Events:       ch,
		MaxTokens:    int(util.GetEnvNumeric("SEGMENT_MAX_TOKENS", 1500)),
	})

	logger.Info("Listening for messages")

	// Create a single consumer channel with prefetch=1
	// This ensures only ONE message is delivered at a time across all queues
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				processingErr := handler.Process(ctx, qm.queueName, qm.msg.Body)

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName, processingErr)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", formatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
				)
				logger.Info(
					"Processing time",
					"duration", formatDuration(time.Since(startTime)),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
