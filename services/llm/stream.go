// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

// ChunkType discriminates stream chunk payloads.
type ChunkType string

const (
	ChunkText  ChunkType = "text"
	ChunkTool  ChunkType = "tool"
	ChunkError ChunkType = "error"
	ChunkDone  ChunkType = "done"
)

// StreamChunk is one event in a streamed chat response.
//
// Tool chunks populate both the current field names (Name, ArgsJSON) and the
// legacy aliases (ToolName, Arguments, Payload) so existing consumers keep
// working across the rename.
//
// Thread Safety: StreamChunk is a value type. Safe to copy.
type StreamChunk struct {
	Type ChunkType `json:"type"`

	// Text carries the token delta for text chunks.
	Text string `json:"text,omitempty"`

	// Name and ArgsJSON describe a tool call.
	Name     string `json:"name,omitempty"`
	ArgsJSON string `json:"argsJson,omitempty"`

	// Legacy aliases for Name/ArgsJSON. Kept for backward compatibility.
	ToolName  string `json:"toolName,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Payload   string `json:"payload,omitempty"`

	// Err carries the failure message for error chunks.
	Err string `json:"error,omitempty"`
}

// TextChunk builds a text chunk.
func TextChunk(text string) StreamChunk {
	return StreamChunk{Type: ChunkText, Text: text}
}

// ToolChunk builds a tool chunk with legacy aliases populated.
func ToolChunk(name, argsJSON string) StreamChunk {
	return StreamChunk{
		Type:      ChunkTool,
		Name:      name,
		ArgsJSON:  argsJSON,
		ToolName:  name,
		Arguments: argsJSON,
		Payload:   argsJSON,
	}
}

// ErrorChunk builds a terminal error chunk. A done chunk must still follow.
func ErrorChunk(err error) StreamChunk {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return StreamChunk{Type: ChunkError, Err: msg}
}

// DoneChunk builds the terminal done chunk.
func DoneChunk() StreamChunk {
	return StreamChunk{Type: ChunkDone}
}
