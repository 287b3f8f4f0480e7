// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
	"github.com/KodiakAI/KodiakCopilot/services/llm"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a single chat message through the policy router",
	Args:  cobra.MinimumNArgs(1),
	Run:   runChatCommand,
}

func runChatCommand(_ *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, cleanup, err := buildRouter()
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer cleanup()

	req := llm.ChatRequest{
		TenantID: tenantID,
		UserID:   userID,
		Task:     taskName,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: strings.Join(args, " ")},
		},
	}
	if modeOverride != "" {
		mode, err := egress.ParseEgressMode(modeOverride)
		if err != nil {
			log.Fatalf("Invalid --egress-mode: %v", err)
		}
		req.ModeOverride = &mode
	}

	if streamOutput {
		runStreamingChat(ctx, router, req)
		return
	}

	answer, err := router.Chat(ctx, req)
	if err != nil {
		log.Fatalf("Chat failed: %v", err)
	}
	fmt.Println(answer)
}

func runStreamingChat(ctx context.Context, router *llm.Router, req llm.ChatRequest) {
	stream, err := router.StreamChat(ctx, req)
	if err != nil {
		log.Fatalf("Chat failed: %v", err)
	}
	for chunk := range stream {
		switch chunk.Type {
		case llm.ChunkText:
			fmt.Print(chunk.Text)
		case llm.ChunkTool:
			fmt.Printf("\n[tool call] %s(%s)\n", chunk.Name, chunk.ArgsJSON)
		case llm.ChunkError:
			fmt.Fprintf(os.Stderr, "\nError: %s\n", chunk.Err)
		case llm.ChunkDone:
			fmt.Println()
		}
	}
}
