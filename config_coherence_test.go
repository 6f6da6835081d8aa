package main

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/agentbench/internal/agents"
)

// TestRegistryBuildsEveryPair loads the shipped agents.yml and llms.yml and constructs a backend for every
// agent and each llm it claims to support.
func TestRegistryBuildsEveryPair(t *testing.T) {
	root, err := os.Getwd()
	require.NoError(t, err)

	registry, err := agents.LoadRegistry(root)
	require.NoError(t, err)
	require.NotEmpty(t, registry.Agents, "agents.yml must define at least one agent")
	require.NotEmpty(t, registry.LLMs, "llms.yml must define at least one llm")

	for name, def := range registry.Agents {
		require.NotEmpty(t, strings.TrimSpace(def.Version), "agent %s must have a version", name)
		require.NotEmpty(t, def.SupportsLLMs, "agent %s must list supported llms", name)

		kind := strings.TrimSpace(def.Kind)
		if kind == "" {
			kind = name
		}
		require.Contains(t, []string{agents.KindClaude, agents.KindScript}, kind, "agent %s has an unknown kind", name)
		if kind == agents.KindScript {
			require.NotEmpty(t, strings.TrimSpace(def.Command), "script agent %s needs a command", name)
		}

		for _, llmName := range def.SupportsLLMs {
			built, err := registry.Build(name, llmName, nil)
			require.NoError(t, err, "agent %s with llm %s", name, llmName)
			require.Equal(t, name, built.Name())
			require.Equal(t, llmName, built.Model())
		}

		// The default model is the first supported llm.
		built, err := registry.Build(name, "", nil)
		require.NoError(t, err, "agent %s default model", name)
		require.Equal(t, def.SupportsLLMs[0], built.Model())
	}

	for llmName, llm := range registry.LLMs {
		require.NotEmpty(t, strings.TrimSpace(llm.Model), "llm %s must declare a model", llmName)
		for agentKey := range llm.PerAgent {
			_, ok := registry.Agent(agentKey)
			require.True(t, ok, "llm %s has per-agent override for unknown agent %s", llmName, agentKey)
		}
	}
}
