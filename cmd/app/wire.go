//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/quizmentor/quizmentor/internal/bootstrap"
	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	"github.com/quizmentor/quizmentor/internal/infra/config"
	httpiface "github.com/quizmentor/quizmentor/internal/interface/http"
	"github.com/quizmentor/quizmentor/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideDedupConfig,
		provideChatGPTClient,
		provideEmbedder,
		provideCorrector,
		provideClassifier,
		provideRecordStore,
		provideVectorIndex,
		provideTrendStore,
		dedup.NewService,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
