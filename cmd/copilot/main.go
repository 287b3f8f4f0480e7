// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
	"github.com/KodiakAI/KodiakCopilot/services/llm"
	"github.com/KodiakAI/KodiakCopilot/services/policy"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Flag values shared across commands.
var (
	tenantID     string
	userID       string
	taskName     string
	modeOverride string
	streamOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Kodiak Copilot — policy-routed LLM access behind an egress guard",
	Long: `copilot routes chat calls to the provider a tenant's policy selects,
forcing local inference when remote egress is disallowed, and passes every
outbound payload through the egress guard's sanitization pipeline.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the copilot version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("copilot %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "default", "Tenant ID for policy resolution")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User ID for per-user egress policy")
	rootCmd.PersistentFlags().StringVar(&taskName, "task", "", "Task name selecting a tenant task policy")
	rootCmd.PersistentFlags().StringVar(&modeOverride, "egress-mode", "", "Per-call egress mode override (off|report-only|enforce)")

	chatCmd.Flags().BoolVar(&streamOutput, "stream", false, "Stream the response as it is generated")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	})))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if os.Getenv("COPILOT_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// buildRouter wires config → policy store → provider registry → guard →
// router. All dependencies are constructed here, at startup, and injected
// explicitly; nothing resolves collaborators lazily.
func buildRouter() (*llm.Router, func(), error) {
	logger := slog.Default()

	store, cleanup, err := buildPolicyStore(logger)
	if err != nil {
		return nil, nil, err
	}

	guardCfg := egress.LoadGuardConfig()
	sanitizer := egress.NewSanitizer(logger, nil)
	auditor := egress.NewAuditor(logger, guardCfg.AuditEnabled, guardCfg.AuditHashContent)
	guard := egress.NewGuardClient(guardCfg.AllowedProviders, sanitizer, auditor, logger)

	registry := llm.NewRegistry()
	registry.Register(llm.LocalProvider, llm.NewLocalClient(os.Getenv("LOCAL_LLM_URL")))
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		client, err := llm.NewOpenAIClient(key)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("configuring openai client: %w", err)
		}
		registry.Register("openai", client)
	}
	if key := os.Getenv("FASTINFERENCE_API_KEY"); key != "" {
		client, err := llm.NewFastInferenceClient(key, os.Getenv("FASTINFERENCE_BASE_URL"))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("configuring fastinference client: %w", err)
		}
		registry.Register("fastinference", client)
	}

	router := llm.NewRouter(store, registry, guard, llm.RouterConfig{
		DefaultProvider: envOr("LLM_DEFAULT_PROVIDER", llm.LocalProvider),
		DefaultModel:    envOr("LLM_DEFAULT_MODEL", "llama3.1:8b"),
		LocalModel:      os.Getenv("LLM_LOCAL_MODEL"),
		BaseMode:        guardCfg.DefaultMode,
	}, logger)

	return router, cleanup, nil
}

// buildPolicyStore selects the policy backend from POLICY_STORE
// (memory|badger, default memory) and optionally fronts it with Redis when
// REDIS_ADDR is set.
func buildPolicyStore(logger *slog.Logger) (policy.Store, func(), error) {
	cleanup := func() {}
	var store policy.Store

	switch envOr("POLICY_STORE", "memory") {
	case "badger":
		dir := envOr("POLICY_BADGER_DIR", "./data/policy")
		db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
		if err != nil {
			return nil, nil, fmt.Errorf("opening policy store at %s: %w", dir, err)
		}
		cleanup = func() {
			if err := db.Close(); err != nil {
				log.Printf("closing policy store: %v", err)
			}
		}
		store = policy.NewBadgerStore(db, logger)
	case "memory":
		store = policy.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown POLICY_STORE %q (want memory or badger)", os.Getenv("POLICY_STORE"))
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		store = policy.NewCachedStore(store, policy.NewRedisCache(client), 0, logger)
	}
	return store, cleanup, nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
