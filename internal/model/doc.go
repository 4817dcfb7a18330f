// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for the chat transcript.
//
// This package defines the core domain types used throughout the application
// for representing the transcript and its messages.
//
// # Key Types
//
//   - Transcript: Append-only ordered sequence of messages
//   - Message: Single entry with role, status, body, and optional attachment
//   - Attachment: Immutable image/audio/file reference on a message
//   - Role: Message sender enumeration (user, assistant, system)
//   - Status: Message lifecycle enumeration (pending, streaming, resolved, errored)
//
// # Usage
//
// Create a transcript and append messages:
//
//	tr := model.NewTranscript()
//	tr.Append(model.NewUserMessage("Hello!"))
//	tr.Append(model.NewPendingAssistantMessage())
//
// Only the conversation engine mutates messages after they are appended;
// everything else reads through Transcript.Snapshot.
package model
