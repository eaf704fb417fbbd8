// Package buildconfig implements the repository-configuration loader: the
// external JSON document naming one or more repositories, each with a
// workspace/target/rule/expression root plus optional file-name overrides
// and a local-to-global name mapping. Root descriptions are a discriminated
// union (filesystem path, git tree, or computed root) unmarshalled into a
// single Go sum type keyed on a "type" field, the same
// dispatch-by-declared-field shape used by pkg/analysis.RuleType. The
// document is validated against a JSON schema with
// github.com/xeipuuv/gojsonschema before being unmarshalled, so a malformed
// configuration is rejected with a readable list of violations rather than
// a cryptic unmarshal error.
package buildconfig

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// RootKind discriminates a RootDescription's underlying shape.
type RootKind int

const (
	// RootFilesystem is a plain path on disk.
	RootFilesystem RootKind = iota
	// RootGitTree names a tree id inside a named repository's git ODB.
	RootGitTree
	// RootComputed names an export target whose analysis+build output
	// becomes this root's content.
	RootComputed
)

// RootDescription is the union of the three ways a repository root (the
// workspace root, target root, rule root, or expression root) can be
// described.
type RootDescription struct {
	Kind RootKind

	// RootFilesystem
	Path string

	// RootGitTree
	TreeID     string
	Repository string

	// RootComputed
	ComputedRepository string
	Target             [2]string // [module, name]
	Config             map[string]json.RawMessage
}

// UnmarshalJSON accepts either a bare JSON string (RootFilesystem) or an
// object with a "type" discriminator ("git tree" or "computed").
func (r *RootDescription) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*r = RootDescription{Kind: RootFilesystem, Path: asString}

		return nil
	}

	var discriminator struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &discriminator); err != nil {
		return fmt.Errorf("buildconfig: root description is neither a string nor an object: %w", err)
	}

	switch discriminator.Type {
	case "git tree":
		var obj struct {
			ID         string `json:"id"`
			Repository string `json:"repository"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("buildconfig: git tree root: %w", err)
		}

		*r = RootDescription{Kind: RootGitTree, TreeID: obj.ID, Repository: obj.Repository}

		return nil
	case "computed":
		var obj struct {
			Repository string                     `json:"repository"`
			Target     [2]string                  `json:"target"`
			Config     map[string]json.RawMessage `json:"config"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("buildconfig: computed root: %w", err)
		}

		*r = RootDescription{
			Kind:               RootComputed,
			ComputedRepository: obj.Repository,
			Target:             obj.Target,
			Config:             obj.Config,
		}

		return nil
	default:
		return fmt.Errorf("buildconfig: unknown root description type %q", discriminator.Type)
	}
}

// MarshalJSON renders r back to its wire shape, inverse of UnmarshalJSON.
func (r RootDescription) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RootFilesystem:
		return json.Marshal(r.Path)
	case RootGitTree:
		return json.Marshal(struct {
			Type       string `json:"type"`
			ID         string `json:"id"`
			Repository string `json:"repository"`
		}{"git tree", r.TreeID, r.Repository})
	case RootComputed:
		return json.Marshal(struct {
			Type       string                     `json:"type"`
			Repository string                     `json:"repository"`
			Target     [2]string                  `json:"target"`
			Config     map[string]json.RawMessage `json:"config"`
		}{"computed", r.ComputedRepository, r.Target, r.Config})
	default:
		return nil, fmt.Errorf("buildconfig: unknown root kind %d", r.Kind)
	}
}

// RepoEntry is one named repository's configuration.
type RepoEntry struct {
	WorkspaceRoot  RootDescription `json:"workspace_root"`
	TargetRoot     RootDescription `json:"target_root"`
	RuleRoot       RootDescription `json:"rule_root"`
	ExpressionRoot RootDescription `json:"expression_root"`

	TargetFileName     string            `json:"target_file_name,omitempty"`
	RuleFileName       string            `json:"rule_file_name,omitempty"`
	ExpressionFileName string            `json:"expression_file_name,omitempty"`
	NameMapping        map[string]string `json:"name_mapping,omitempty"`
}

// Config is the top-level repository configuration document.
type Config struct {
	Main         string               `json:"main,omitempty"`
	Repositories map[string]RepoEntry `json:"repositories"`
}

// MainRepo returns the configured main repository's entry, defaulting to
// the lexicographically first repository name when Main is unset.
func (c *Config) MainRepo() (string, RepoEntry, error) {
	name := c.Main
	if name == "" {
		for candidate := range c.Repositories {
			if name == "" || candidate < name {
				name = candidate
			}
		}
	}

	entry, ok := c.Repositories[name]
	if !ok {
		return "", RepoEntry{}, fmt.Errorf("buildconfig: main repository %q not present in repositories", name)
	}

	return name, entry, nil
}

// ComputedRoots walks every RepoEntry's four roots and returns the
// computed-root descriptions found, keyed by repository name — the input
// to pkg/computedroot.Resolver.ResolveAll's dependency discovery.
func (c *Config) ComputedRoots() map[string]RootDescription {
	out := make(map[string]RootDescription)

	for name, entry := range c.Repositories {
		for _, root := range []RootDescription{entry.WorkspaceRoot, entry.TargetRoot, entry.RuleRoot, entry.ExpressionRoot} {
			if root.Kind == RootComputed {
				out[name] = root
			}
		}
	}

	return out
}

// Schema is the JSON schema repository-configuration documents are
// validated against before being unmarshalled into Config.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["repositories"],
  "properties": {
    "main": {"type": "string"},
    "repositories": {
      "type": "object",
      "additionalProperties": {"$ref": "#/definitions/repoEntry"}
    }
  },
  "definitions": {
    "rootDescription": {
      "oneOf": [
        {"type": "string"},
        {
          "type": "object",
          "required": ["type", "id", "repository"],
          "properties": {
            "type": {"const": "git tree"},
            "id": {"type": "string"},
            "repository": {"type": "string"}
          }
        },
        {
          "type": "object",
          "required": ["type", "repository", "target"],
          "properties": {
            "type": {"const": "computed"},
            "repository": {"type": "string"},
            "target": {
              "type": "array",
              "items": {"type": "string"},
              "minItems": 2,
              "maxItems": 2
            },
            "config": {"type": "object"}
          }
        }
      ]
    },
    "repoEntry": {
      "type": "object",
      "required": ["workspace_root", "target_root", "rule_root", "expression_root"],
      "properties": {
        "workspace_root": {"$ref": "#/definitions/rootDescription"},
        "target_root": {"$ref": "#/definitions/rootDescription"},
        "rule_root": {"$ref": "#/definitions/rootDescription"},
        "expression_root": {"$ref": "#/definitions/rootDescription"},
        "target_file_name": {"type": "string"},
        "rule_file_name": {"type": "string"},
        "expression_file_name": {"type": "string"},
        "name_mapping": {
          "type": "object",
          "additionalProperties": {"type": "string"}
        }
      }
    }
  }
}`

// Load validates raw against Schema and, on success, unmarshals it into a
// Config.
func Load(raw []byte) (*Config, error) {
	schemaLoader := gojsonschema.NewStringLoader(Schema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("buildconfig: schema validation: %w", err)
	}

	if !result.Valid() {
		var sb strings.Builder

		for i, e := range result.Errors() {
			if i > 0 {
				sb.WriteString("; ")
			}

			sb.WriteString(e.String())
		}

		return nil, fmt.Errorf("buildconfig: invalid repository configuration: %s", sb.String())
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("buildconfig: unmarshal: %w", err)
	}

	return &cfg, nil
}
