package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	"github.com/quizmentor/quizmentor/internal/infra/classifier"
	"github.com/quizmentor/quizmentor/internal/infra/config"
	"github.com/quizmentor/quizmentor/internal/infra/corrector"
	"github.com/quizmentor/quizmentor/internal/infra/embedder"
	"github.com/quizmentor/quizmentor/internal/infra/llm/chatgpt"
	"github.com/quizmentor/quizmentor/internal/infra/questionrepo"
	"github.com/quizmentor/quizmentor/internal/infra/trendstore"
	"github.com/quizmentor/quizmentor/internal/infra/vectorindex"
)

func provideDedupConfig(cfg *config.Config) dedup.Config {
	return dedup.Config{
		GlobalThreshold: cfg.Dedup.GlobalThreshold,
		LessonThreshold: cfg.Dedup.LessonThreshold,
		GlobalTopK:      cfg.Dedup.GlobalTopK,
		LessonTopK:      cfg.Dedup.LessonTopK,
		OrphanScanLimit: cfg.Dedup.OrphanScanLimit,
		TopTrending:     cfg.Dedup.TopTrending,
	}
}

// provideChatGPTClient returns a nil client when no API key is configured;
// the dependent providers switch to their local fallbacks in that case.
func provideChatGPTClient(cfg *config.Config, logger *slog.Logger) (*chatgpt.Client, error) {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		logger.Info("llm api key missing, using deterministic embedder, passthrough corrector and static classifier")
		return nil, nil
	}
	return chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
}

func provideEmbedder(cfg *config.Config, client *chatgpt.Client) dedup.Embedder {
	if client == nil || strings.EqualFold(cfg.LLM.EmbeddingModel, "deterministic") {
		return embedder.NewDeterministicEmbedder(cfg.LLM.EmbeddingDim)
	}
	return embedder.NewChatGPTEmbedder(client, cfg.LLM.EmbeddingModel)
}

func provideCorrector(cfg *config.Config, client *chatgpt.Client, logger *slog.Logger) dedup.Corrector {
	if client == nil {
		return corrector.PassthroughCorrector{}
	}
	return corrector.NewChatGPTCorrector(client, cfg.LLM.Model, cfg.LLM.Temperature, logger)
}

func provideClassifier(cfg *config.Config, client *chatgpt.Client, logger *slog.Logger) dedup.Classifier {
	if client == nil {
		return classifier.Static{}
	}
	return classifier.NewChatGPTClassifier(client, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxContextTokens, logger)
}

func provideRecordStore(cfg *config.Config, logger *slog.Logger) dedup.RecordStore {
	pool, ok := newPgxPool(cfg.RecordStore, logger)
	if !ok {
		logger.Info("record store dsn not usable, using memory store")
		return questionrepo.NewMemoryStore()
	}
	logger.Info("postgres record store enabled")
	return questionrepo.NewPostgresStore(pool)
}

func provideVectorIndex(cfg *config.Config, logger *slog.Logger) dedup.VectorIndex {
	pool, ok := newPgxPool(cfg.VectorIndex, logger)
	if !ok {
		logger.Info("vector index dsn not usable, using memory index")
		return vectorindex.NewMemoryIndex()
	}
	logger.Info("pgvector index enabled")
	return vectorindex.NewPgvectorIndex(pool)
}

func newPgxPool(pg config.PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, bool) {
	dsn := strings.TrimSpace(pg.DSN)
	if dsn == "" {
		return nil, false
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn", "error", err)
		return nil, false
	}
	if pg.MaxConns > 0 {
		poolConfig.MaxConns = pg.MaxConns
	}
	if pg.MinConns > 0 {
		poolConfig.MinConns = pg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool", "error", err)
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed", "error", err)
		pool.Close()
		return nil, false
	}
	return pool, true
}

func provideTrendStore(cfg *config.Config, logger *slog.Logger) dedup.TrendStore {
	if cfg.Valkey.Enabled {
		opt, err := buildValkeyOptions(cfg)
		if err != nil {
			logger.Error("invalid valkey configuration, falling back to memory store", "error", err)
			return trendstore.NewMemoryStore()
		}
		client, err := valkey.NewClient(opt)
		if err != nil {
			logger.Error("failed to create valkey client, falling back to memory store", "error", err)
			return trendstore.NewMemoryStore()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			logger.Error("valkey ping failed, falling back to memory store", "error", err)
		} else {
			logger.Info("valkey trend store enabled", "addr", cfg.Valkey.Addr)
			return trendstore.NewValkeyStore(client, "questions")
		}
	}
	return trendstore.NewMemoryStore()
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(cfg.Valkey.Addr, "://") {
		opt, err = valkey.ParseURL(cfg.Valkey.Addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{cfg.Valkey.Addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}
