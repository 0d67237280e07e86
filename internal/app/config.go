package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/polisight/backend/internal/util"
	"github.com/polisight/backend/pkg/ai"
	oai "github.com/polisight/backend/pkg/ai/ollama"
	gai "github.com/polisight/backend/pkg/ai/openai"
	"github.com/polisight/backend/pkg/analysis"
	"github.com/polisight/backend/pkg/analysis/heuristic"
	"github.com/polisight/backend/pkg/analysis/model"
	"github.com/polisight/backend/pkg/cascade"
	"github.com/polisight/backend/pkg/conversation"
	convredis "github.com/polisight/backend/pkg/conversation/redis"
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/graphstore/memory"
	"github.com/polisight/backend/pkg/graphstore/neo4j"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/pipeline"
	"github.com/polisight/backend/pkg/schema"
	"github.com/polisight/backend/pkg/source"
	pgsource "github.com/polisight/backend/pkg/source/pgx"
	s3source "github.com/polisight/backend/pkg/source/s3"
	"github.com/polisight/backend/pkg/source/web"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config selects the collaborators of a Service.
type Config struct {
	AIAdapter       string
	ChatURL         string
	ChatKey         string
	ChatModel       string
	ExtractModel    string
	ParallelReq     int
	MaxInputTokens  int
	TokenEncoder    string
	MinConfidence   float64
	StageTimeout    time.Duration
	BatchSize       int
	GraphBackend    string
	GraphSnapshot   string
	GraphMaxRetries int
	Neo4jURI        string
	Neo4jUser       string
	Neo4jPassword   string
	Neo4jDatabase   string

	ConversationBackend string
	RedisAddr           string
	RedisPrefix         string
	MaxMessages         int
	ConversationTTL     time.Duration

	DocumentSource string
	DatabaseURL    string
	MigrationsDir  string
	S3Bucket       string
	S3Prefix       string
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
}

// ConfigFromEnv reads the configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		AIAdapter:       util.GetEnvString("AI_ADAPTER", "heuristic"),
		ChatURL:         util.GetEnv("AI_CHAT_URL"),
		ChatKey:         util.GetEnv("AI_CHAT_KEY"),
		ChatModel:       util.GetEnv("AI_CHAT_MODEL"),
		ExtractModel:    util.GetEnv("AI_EXTRACT_MODEL"),
		ParallelReq:     util.GetEnvInt("AI_PARALLEL_REQ", 15),
		MaxInputTokens:  util.GetEnvInt("AI_MAX_INPUT_TOKENS", 8000),
		TokenEncoder:    util.GetEnvString("TOKEN_ENCODER", "o200k_base"),
		MinConfidence:   util.GetEnvNumeric("INTENT_MIN_CONFIDENCE", 0),
		StageTimeout:    util.GetEnvSeconds("STAGE_TIMEOUT_SECONDS", analysis.DefaultStageTimeout),
		BatchSize:       util.GetEnvInt("BATCH_SIZE", 0),
		GraphBackend:    util.GetEnvString("GRAPH_BACKEND", "memory"),
		GraphSnapshot:   util.GetEnv("GRAPH_SNAPSHOT"),
		GraphMaxRetries: util.GetEnvInt("GRAPH_MAX_RETRIES", 3),
		Neo4jURI:        util.GetEnv("NEO4J_URI"),
		Neo4jUser:       util.GetEnv("NEO4J_USER"),
		Neo4jPassword:   util.GetEnv("NEO4J_PASSWORD"),
		Neo4jDatabase:   util.GetEnv("NEO4J_DATABASE"),

		ConversationBackend: util.GetEnvString("CONVERSATION_BACKEND", "memory"),
		RedisAddr:           util.GetEnv("REDIS_ADDR"),
		RedisPrefix:         util.GetEnv("REDIS_PREFIX"),
		MaxMessages:         util.GetEnvInt("CONVERSATION_MAX_MESSAGES", 0),
		ConversationTTL:     util.GetEnvSeconds("CONVERSATION_TTL_SECONDS", 0),

		DocumentSource: util.GetEnv("DOCUMENT_SOURCE"),
		DatabaseURL:    util.GetEnv("DATABASE_URL"),
		MigrationsDir:  util.GetEnvString("MIGRATIONS_DIR", "migrations"),
		S3Bucket:       util.GetEnv("AWS_BUCKET"),
		S3Prefix:       util.GetEnv("AWS_PREFIX"),
		S3Endpoint:     util.GetEnv("AWS_ENDPOINT"),
		S3Region:       util.GetEnv("AWS_REGION"),
		S3AccessKey:    util.GetEnv("AWS_ACCESS_KEY"),
		S3SecretKey:    util.GetEnv("AWS_SECRET_KEY"),
	}
}

// Build wires a Service from cfg. On error every connection opened so far
// is closed.
func Build(ctx context.Context, cfg Config) (svc *Service, err error) {
	var closers []func(context.Context) error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i](ctx)
			}
		}
	}()

	m, aiClient, err := newModel(cfg)
	if err != nil {
		return nil, err
	}

	backend, closer, err := newGraphBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, closer)

	registry := schema.Default()
	graph, err := graphstore.NewClient(graphstore.NewClientParams{
		Backend:    backend,
		Registry:   registry,
		MaxRetries: cfg.GraphMaxRetries,
	})
	if err != nil {
		return nil, err
	}

	catalogue, err := analysis.NewDefaultCatalogue(m, graph, registry)
	if err != nil {
		return nil, err
	}
	runner := analysis.NewRunner(catalogue, cfg.StageTimeout)

	p, err := pipeline.New(pipeline.NewParams{
		Runner:   runner,
		Store:    graph,
		Workers:  cfg.BatchSize,
		Observer: logTransition,
	})
	if err != nil {
		return nil, err
	}

	conversations, closer, err := newConversationStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	cascadeParams := cascade.NewParams{
		Runner:        runner,
		Store:         conversations,
		MinConfidence: cfg.MinConfidence,
	}
	if aiClient != nil {
		cascadeParams.Classifier = cascade.NewLLMClassifier(aiClient, cfg.ExtractModel)
		cascadeParams.Synthesizer = cascade.NewLLMSynthesizer(aiClient, cfg.ChatModel, nil)
	}
	orchestrator, err := cascade.New(cascadeParams)
	if err != nil {
		return nil, err
	}

	documents, archive, closer, err := newDocumentSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	return NewService(NewServiceParams{
		Pipeline:      p,
		Cascade:       orchestrator,
		Conversations: conversations,
		Documents:     documents,
		Archive:       archive,
		FetchLimit:    cfg.BatchSize,
		AI:            aiClient,
		Closers:       closers,
	})
}

func logTransition(t pipeline.Transition) {
	if t.Err != nil {
		logger.Debug("[Pipeline] Transition", "document_id", t.DocumentID, "from", t.From, "to", t.To, "err", t.Err)
		return
	}
	logger.Debug("[Pipeline] Transition", "document_id", t.DocumentID, "from", t.From, "to", t.To)
}

// newModel returns the analysis model and, for LLM adapters, the client
// also used by the cascade.
func newModel(cfg Config) (model.Model, ai.GraphAIClient, error) {
	var client ai.GraphAIClient
	switch strings.ToLower(cfg.AIAdapter) {
	case "", "heuristic":
		return heuristic.New(), nil, nil
	case "ollama":
		c, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ChatModel:             cfg.ChatModel,
			ExtractionModel:       cfg.ExtractModel,
			TokenEncoder:          cfg.TokenEncoder,
			BaseURL:               cfg.ChatURL,
			ApiKey:                cfg.ChatKey,
			MaxConcurrentRequests: int64(cfg.ParallelReq),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create Ollama client: %w", err)
		}
		client = c
	case "openai":
		client = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ChatModel:       cfg.ChatModel,
			ExtractionModel: cfg.ExtractModel,
			ChatURL:         cfg.ChatURL,
			ChatKey:         cfg.ChatKey,
		})
	default:
		return nil, nil, fmt.Errorf("unknown AI_ADAPTER %q", cfg.AIAdapter)
	}

	return model.NewLLM(model.NewLLMParams{
		Client:         client,
		Model:          cfg.ExtractModel,
		TokenEncoder:   cfg.TokenEncoder,
		MaxInputTokens: cfg.MaxInputTokens,
	}), client, nil
}

func newGraphBackend(ctx context.Context, cfg Config) (graphstore.Backend, func(context.Context) error, error) {
	switch strings.ToLower(cfg.GraphBackend) {
	case "", "memory":
		backend := memory.New()
		if cfg.GraphSnapshot == "" {
			return backend, backend.Close, nil
		}
		if err := backend.LoadFile(cfg.GraphSnapshot); err != nil {
			return nil, nil, fmt.Errorf("failed to load graph snapshot: %w", err)
		}
		return backend, func(context.Context) error {
			return backend.SaveFile(cfg.GraphSnapshot)
		}, nil
	case "neo4j":
		backend, err := neo4j.New(ctx, neo4j.Params{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown GRAPH_BACKEND %q", cfg.GraphBackend)
	}
}

func newConversationStore(ctx context.Context, cfg Config) (conversation.Store, func(context.Context) error, error) {
	switch strings.ToLower(cfg.ConversationBackend) {
	case "", "memory":
		return conversation.NewMemory(conversation.NewMemoryParams{MaxMessages: cfg.MaxMessages}), nil, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("REDIS_ADDR is required for the redis conversation store")
		}
		rdb, err := convredis.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		store, err := convredis.NewStore(convredis.NewStoreParams{
			Client:      rdb,
			Prefix:      cfg.RedisPrefix,
			MaxMessages: cfg.MaxMessages,
			TTL:         cfg.ConversationTTL,
		})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return store, func(context.Context) error { return rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown CONVERSATION_BACKEND %q", cfg.ConversationBackend)
	}
}

// newDocumentSource returns the source used by FetchAndProcess and, for
// Postgres, the archive documents are saved to.
func newDocumentSource(ctx context.Context, cfg Config) (source.Source, source.Store, func(context.Context) error, error) {
	switch strings.ToLower(cfg.DocumentSource) {
	case "":
		return nil, nil, nil, nil
	case "web":
		return source.NewCached(web.NewSource(&http.Client{Timeout: 30 * time.Second})), nil, nil, nil
	case "s3":
		src, err := s3source.NewSource(ctx, s3source.NewSourceParams{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return source.NewCached(src), nil, nil, nil
	case "postgres":
		if err := pgsource.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return nil, nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		src := pgsource.NewSource(pool)
		return src, src, func(context.Context) error { pool.Close(); return nil }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown DOCUMENT_SOURCE %q", cfg.DocumentSource)
	}
}
