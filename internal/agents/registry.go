package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Backend kinds accepted in agents.yml.
const (
	KindClaude = "claude"
	KindScript = "script"
)

type Definition struct {
	Name string `yaml:"name"`
	// Kind selects the backend. Empty means the agent name is the kind.
	Kind         string            `yaml:"kind"`
	Version      string            `yaml:"version"`
	SupportsLLMs []string          `yaml:"supports-llms"`
	Command      string            `yaml:"command"`
	Env          map[string]string `yaml:"env"`
}

func (d Definition) kind() string {
	if k := strings.TrimSpace(d.Kind); k != "" {
		return k
	}
	return d.Name
}

type LLMDefinition struct {
	Name     string            `yaml:"name"`
	Model    string            `yaml:"model"`
	PerAgent map[string]string `yaml:"per-agent"`
	Env      map[string]string `yaml:"env"`
}

type registryFile struct {
	Agents []Definition `yaml:"agents"`
}

type llmFile struct {
	LLMs []LLMDefinition `yaml:"llms"`
}

type Registry struct {
	Agents map[string]Definition
	LLMs   map[string]LLMDefinition
}

// LoadRegistry reads agents.yml and llms.yml from root.
func LoadRegistry(root string) (*Registry, error) {
	agentPath := filepath.Join(root, "agents.yml")
	llmPath := filepath.Join(root, "llms.yml")
	var af registryFile
	if err := readYAML(agentPath, &af); err != nil {
		return nil, err
	}
	var lf llmFile
	if err := readYAML(llmPath, &lf); err != nil {
		return nil, err
	}
	reg := &Registry{
		Agents: map[string]Definition{},
		LLMs:   map[string]LLMDefinition{},
	}
	for _, a := range af.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent with empty name in %s", agentPath)
		}
		if _, dup := reg.Agents[a.Name]; dup {
			return nil, fmt.Errorf("agent %q declared twice in %s", a.Name, agentPath)
		}
		reg.Agents[a.Name] = a
	}
	for _, l := range lf.LLMs {
		if l.Name == "" {
			return nil, fmt.Errorf("llm with empty name in %s", llmPath)
		}
		if _, dup := reg.LLMs[l.Name]; dup {
			return nil, fmt.Errorf("llm %q declared twice in %s", l.Name, llmPath)
		}
		reg.LLMs[l.Name] = l
	}
	return reg, nil
}

func readYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (r *Registry) Agent(name string) (Definition, bool) {
	a, ok := r.Agents[name]
	return a, ok
}

func (r *Registry) LLM(name string) (LLMDefinition, bool) {
	l, ok := r.LLMs[name]
	return l, ok
}

// ValidateAgentModel ensures the agent and model exist and the model is supported. An empty model selects
// the agent's first supported model.
func (r *Registry) ValidateAgentModel(agentName, model string) (Definition, *LLMDefinition, error) {
	agent, ok := r.Agent(agentName)
	if !ok {
		return Definition{}, nil, fmt.Errorf("unknown agent %q", agentName)
	}
	if model == "" {
		if len(agent.SupportsLLMs) == 0 {
			return Definition{}, nil, fmt.Errorf("agent %q has no supported models", agentName)
		}
		defaultModel := agent.SupportsLLMs[0]
		llm, ok := r.LLM(defaultModel)
		if !ok {
			return Definition{}, nil, fmt.Errorf("default model %q for agent %q missing from llms.yml", defaultModel, agentName)
		}
		resolved := llm.resolvedForAgent(agentName)
		return agent, &resolved, nil
	}
	llm, ok := r.LLM(model)
	if !ok {
		return Definition{}, nil, fmt.Errorf("unknown model %q", model)
	}
	for _, m := range agent.SupportsLLMs {
		if m == model {
			resolved := llm.resolvedForAgent(agentName)
			return agent, &resolved, nil
		}
	}
	return Definition{}, nil, fmt.Errorf("agent %q does not support model %q", agentName, model)
}

// Build validates the (agent, model) pair and constructs the backend for it. The recorded model name is
// the llms.yml entry name; the backend receives the resolved provider model string.
func (r *Registry) Build(agentName, model string, logger logrus.FieldLogger) (Agent, error) {
	def, llm, err := r.ValidateAgentModel(agentName, model)
	if err != nil {
		return nil, err
	}
	env := mergeEnv(def.Env, llm.Env)

	switch def.kind() {
	case KindClaude:
		return &namedModel{
			Agent: NewClaude(ClaudeConfig{
				Name:   def.Name,
				Binary: def.Command,
				Model:  llm.Model,
				Env:    env,
				Logger: logger,
			}),
			model: llm.Name,
		}, nil
	case KindScript:
		script, err := NewScript(ScriptConfig{
			Name:    def.Name,
			Version: def.Version,
			Model:   llm.Model,
			Command: def.Command,
			Env:     env,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return &namedModel{Agent: script, model: llm.Name}, nil
	default:
		return nil, fmt.Errorf("agent %q has unsupported kind %q", def.Name, def.kind())
	}
}

// namedModel reports the registry model name instead of the provider model string, so results group by
// the names users pass on the command line.
type namedModel struct {
	Agent
	model string
}

func (n *namedModel) Model() string { return n.model }

func mergeEnv(maps ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func (l LLMDefinition) resolvedForAgent(agentName string) LLMDefinition {
	if agentName == "" {
		return l
	}
	if override := strings.TrimSpace(l.perAgentModel(agentName)); override != "" {
		l.Model = override
	}
	return l
}

func (l LLMDefinition) perAgentModel(agentName string) string {
	if len(l.PerAgent) == 0 {
		return ""
	}
	return l.PerAgent[agentName]
}
