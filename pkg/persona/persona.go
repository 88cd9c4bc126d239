// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package persona loads base personas and an optional governance
// overlay from YAML, the declarative shape the orchestrator's
// PersonaSource resolves against. Unlike pkg/config's provider, a
// loaded persona file is immutable for the life of the process:
// personas change rarely enough that hot-reload is not worth the
// added surface.
package persona

import (
	"context"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/aegis/pkg/values"
)

// ScoringGuideEntryDefinition is one rubric anchor point on disk.
type ScoringGuideEntryDefinition struct {
	Score    float64 `yaml:"score"`
	Criteria string  `yaml:"criteria"`
}

// RubricDefinition is a value's Conscience scoring guide on disk.
type RubricDefinition struct {
	Description  string                        `yaml:"description"`
	ScoringGuide []ScoringGuideEntryDefinition `yaml:"scoring_guide"`
}

// ValueDefinition is one Value on disk.
type ValueDefinition struct {
	Name   string           `yaml:"name"`
	Weight float64          `yaml:"weight"`
	Rubric RubricDefinition `yaml:"rubric"`
}

// Definition is one base persona's on-disk shape.
type Definition struct {
	Key           string            `yaml:"key"`
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Worldview     string            `yaml:"worldview"`
	Style         string            `yaml:"style"`
	Values        []ValueDefinition `yaml:"values"`
	WillRules     []string          `yaml:"will_rules"`
	RAGFormat     string            `yaml:"rag_format"`
	KnowledgeBase string            `yaml:"knowledge_base"`

	// Governed opts this persona into the file's governance overlay.
	// Personas that omit it compile independent of whatever overlay
	// the deployment declares.
	Governed bool `yaml:"governed"`
}

// GovernanceDefinition is the organizational overlay's on-disk shape.
type GovernanceDefinition struct {
	GlobalWorldview string            `yaml:"global_worldview"`
	GlobalWillRules []string          `yaml:"global_will_rules"`
	GlobalValues    []ValueDefinition `yaml:"global_values"`
}

// File is the root on-disk shape: every persona this deployment can
// serve, plus the one governance overlay applied to those marked governed.
type File struct {
	Personas   []Definition          `yaml:"personas"`
	Governance *GovernanceDefinition `yaml:"governance"`
}

// Source resolves a base persona and the governance overlay applied to
// it; the orchestrator compiles the two together per agent instance.
type Source interface {
	BasePersona(ctx context.Context, agentKey string) (*values.Agent, error)
	GovernancePolicy(ctx context.Context) (*values.GovernancePolicy, error)
}

// FileSource is a Source backed by one YAML file, decoded once at
// construction time.
type FileSource struct {
	personas   map[string]*values.Agent
	governance *values.GovernancePolicy
}

// NewFileSource reads and decodes path into a FileSource.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("persona: parse %s: %w", path, err)
	}

	var file File
	if err := decodeFile(raw, &file); err != nil {
		return nil, fmt.Errorf("persona: decode %s: %w", path, err)
	}

	personas := make(map[string]*values.Agent, len(file.Personas))
	for _, p := range file.Personas {
		if p.Key == "" {
			return nil, fmt.Errorf("persona: persona %q is missing a key", p.Name)
		}
		key := values.NormalizeName(p.Key)
		if _, exists := personas[key]; exists {
			return nil, fmt.Errorf("persona: duplicate persona key %q after normalization", p.Key)
		}
		personas[key] = toAgent(p)
	}

	var governance *values.GovernancePolicy
	if file.Governance != nil {
		governance = toGovernance(*file.Governance)
	}

	return &FileSource{personas: personas, governance: governance}, nil
}

// BasePersona looks up agentKey, normalized the same way the instance
// cache and compiler do.
func (s *FileSource) BasePersona(_ context.Context, agentKey string) (*values.Agent, error) {
	agent, ok := s.personas[values.NormalizeName(agentKey)]
	if !ok {
		return nil, fmt.Errorf("persona: no base persona registered for %q", agentKey)
	}
	return agent, nil
}

// GovernancePolicy returns the file's single governance overlay, or nil
// if none was declared.
func (s *FileSource) GovernancePolicy(_ context.Context) (*values.GovernancePolicy, error) {
	return s.governance, nil
}

// StaticSource is an in-memory Source, useful for tests and for
// deployments simple enough not to need a YAML file on disk.
type StaticSource struct {
	Personas   map[string]*values.Agent
	Governance *values.GovernancePolicy
}

// BasePersona looks up agentKey, normalized.
func (s *StaticSource) BasePersona(_ context.Context, agentKey string) (*values.Agent, error) {
	agent, ok := s.Personas[values.NormalizeName(agentKey)]
	if !ok {
		return nil, fmt.Errorf("persona: no base persona registered for %q", agentKey)
	}
	return agent, nil
}

// GovernancePolicy returns the configured overlay, or nil.
func (s *StaticSource) GovernancePolicy(_ context.Context) (*values.GovernancePolicy, error) {
	return s.Governance, nil
}

func decodeFile(input map[string]any, out *File) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func toAgent(p Definition) *values.Agent {
	return &values.Agent{
		Key:           p.Key,
		Name:          p.Name,
		Description:   p.Description,
		Worldview:     p.Worldview,
		Style:         p.Style,
		Values:        toValues(p.Values),
		WillRules:     toWillRules(p.WillRules),
		RAGFormat:     p.RAGFormat,
		KnowledgeBase: p.KnowledgeBase,
		Governed:      p.Governed,
	}
}

func toGovernance(g GovernanceDefinition) *values.GovernancePolicy {
	return &values.GovernancePolicy{
		GlobalWorldview: g.GlobalWorldview,
		GlobalWillRules: toWillRules(g.GlobalWillRules),
		GlobalValues:    toValues(g.GlobalValues),
	}
}

func toWillRules(rules []string) []values.WillRule {
	out := make([]values.WillRule, len(rules))
	copy(out, rules)
	return out
}

func toValues(defs []ValueDefinition) []values.Value {
	out := make([]values.Value, len(defs))
	for i, d := range defs {
		guide := make([]values.ScoringGuideEntry, len(d.Rubric.ScoringGuide))
		for j, g := range d.Rubric.ScoringGuide {
			guide[j] = values.ScoringGuideEntry{Score: g.Score, Criteria: g.Criteria}
		}
		out[i] = values.Value{
			Name:   d.Name,
			Weight: d.Weight,
			Rubric: values.Rubric{Description: d.Rubric.Description, ScoringGuide: guide},
		}
	}
	return out
}
