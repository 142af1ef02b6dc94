package server

import (
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keywordhub/internal/handlers/api"
	"keywordhub/internal/middleware"
	"keywordhub/internal/promotion"
	"keywordhub/internal/redundancy"
	"keywordhub/internal/resolver"
	"keywordhub/internal/rules"
	"keywordhub/internal/store"
	"keywordhub/internal/trends"
	"keywordhub/internal/trigger"
)

// Dependencies are the engine components the routes expose.
type Dependencies struct {
	Store      store.Store
	DB         api.Pinger // nil when storage is in memory
	Resolver   *resolver.Resolver
	Promotion  *promotion.Pipeline
	Redundancy *redundancy.Detector
	Rules      *rules.Engine
	Triggers   *trigger.Pipeline
	Trends     *trends.Analyzer

	// RegexPrefix marks keyword texts that are patterns.
	RegexPrefix string
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(deps Dependencies) {
	adminAuth := middleware.NewAdminAuth(s.Cfg.AdminToken)

	probeHandler := api.NewProbeHandler(deps.DB)
	keywordHandler := api.NewKeywordHandler(deps.Store, deps.Resolver, deps.Promotion, deps.RegexPrefix)
	triggerRuleHandler := api.NewTriggerRuleHandler(deps.Triggers)
	submissionHandler := api.NewSubmissionHandler(deps.Store, deps.Promotion)
	redundancyHandler := api.NewRedundancyHandler(deps.Redundancy, deps.Store)
	ruleHandler := api.NewRuleHandler(deps.Rules)
	messageHandler := api.NewMessageHandler(deps.Triggers, deps.Rules)
	trendHandler := api.NewTrendHandler(deps.Trends)

	// Operations (no auth)
	s.App.Get("/healthz", probeHandler.Liveness)
	s.App.Get("/readyz", probeHandler.Readiness)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	g := s.App.Group("/api", adminAuth.RequireAdmin)

	// Keywords
	g.Get("/keywords", keywordHandler.List)
	g.Post("/keywords", keywordHandler.Create)
	g.Get("/keywords/resolve", keywordHandler.Resolve)
	g.Post("/keywords/triggers", keywordHandler.RecordTrigger)
	g.Get("/keywords/:id", keywordHandler.Get)
	g.Put("/keywords/:id", keywordHandler.Update)
	g.Delete("/keywords/:id", keywordHandler.Delete)
	g.Get("/keywords/:id/trigger-rules", triggerRuleHandler.List)
	g.Post("/keywords/:id/trigger-rules", triggerRuleHandler.Create)
	g.Delete("/trigger-rules/:id", triggerRuleHandler.Delete)

	// Promotion review
	g.Get("/submissions", submissionHandler.List)
	g.Get("/submissions/:id", submissionHandler.Get)
	g.Post("/submissions/:id/approve", submissionHandler.Approve)
	g.Post("/submissions/:id/reject", submissionHandler.Reject)

	// Redundancy
	g.Post("/redundancy/scan", redundancyHandler.Scan)
	g.Get("/redundancy/pairs", redundancyHandler.Pairs)
	g.Post("/redundancy/merge", redundancyHandler.Merge)
	g.Post("/redundancy/keep", redundancyHandler.Keep)

	// Business rules
	g.Get("/rules", ruleHandler.List)
	g.Post("/rules", ruleHandler.Create)
	g.Get("/rules/:id", ruleHandler.Get)
	g.Put("/rules/:id", ruleHandler.Update)
	g.Delete("/rules/:id", ruleHandler.Delete)
	g.Get("/rules/:id/logs", ruleHandler.Logs)
	g.Get("/rule-chains", ruleHandler.Chains)
	g.Post("/rule-chains", ruleHandler.CreateChain)
	g.Delete("/rule-chains/:id", ruleHandler.DeleteChain)

	// Messages
	g.Post("/messages/detect", messageHandler.Detect)
	g.Post("/messages/evaluate", messageHandler.Evaluate)

	// Trends
	g.Get("/trends/basic", trendHandler.Basic)
	g.Get("/trends/hot", trendHandler.Hot)
	g.Get("/trends/effectiveness", trendHandler.Effectiveness)
	g.Get("/trends/emerging", trendHandler.Emerging)
	g.Get("/trends/forecast/:keywordId", trendHandler.Forecast)
}
