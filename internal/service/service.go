package service

import (
	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatd/internal/config"
	"github.com/xiaot623/gogo/chatd/internal/repository"
	"github.com/xiaot623/gogo/chatd/policy"
)

type Service struct {
	store        store.Store
	cache        store.ConversationCache
	engine       llm.Engine
	config       *config.Config
	policyEngine *policy.Engine
	sessions     *registry
}

// New wires a Service. cache and policyEngine may be nil.
func New(store store.Store, cache store.ConversationCache, engine llm.Engine, cfg *config.Config, policyEngine *policy.Engine) *Service {
	return &Service{
		store:        store,
		cache:        cache,
		engine:       engine,
		config:       cfg,
		policyEngine: policyEngine,
		sessions:     newRegistry(),
	}
}
