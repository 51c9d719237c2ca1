// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/easel/pkg/types"
)

func TestMemoryRepository_HistoryIsolatedPerBoard(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.AppendMessage(ctx, "board-a", types.Message{Role: "user", Content: "hi"}))
	require.NoError(t, repo.AppendMessage(ctx, "board-a", types.Message{Role: "assistant", Content: "hello"}))
	require.NoError(t, repo.AppendMessage(ctx, "board-b", types.Message{Role: "user", Content: "other"}))

	a, err := repo.History(ctx, "board-a")
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, "hi", a[0].Content)
	assert.NotEmpty(t, a[0].ID)

	b, err := repo.History(ctx, "board-b")
	require.NoError(t, err)
	assert.Len(t, b, 1)

	empty, err := repo.History(ctx, "board-c")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryRepository_HistoryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.AppendMessage(ctx, "board-a", types.Message{Role: "user", Content: "hi"}))

	first, err := repo.History(ctx, "board-a")
	require.NoError(t, err)
	first[0].Content = "mutated"

	second, err := repo.History(ctx, "board-a")
	require.NoError(t, err)
	assert.Equal(t, "hi", second[0].Content)
}
