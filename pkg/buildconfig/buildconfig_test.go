package buildconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/buildconfig"
)

func TestLoadFilesystemRoots(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"main": "primary",
		"repositories": {
			"primary": {
				"workspace_root": "/ws",
				"target_root": "/ws/targets",
				"rule_root": "/ws/rules",
				"expression_root": "/ws/expr"
			}
		}
	}`)

	cfg, err := buildconfig.Load(raw)
	require.NoError(t, err)

	name, entry, err := cfg.MainRepo()
	require.NoError(t, err)
	assert.Equal(t, "primary", name)
	assert.Equal(t, buildconfig.RootFilesystem, entry.WorkspaceRoot.Kind)
	assert.Equal(t, "/ws", entry.WorkspaceRoot.Path)
}

func TestLoadGitTreeAndComputedRoots(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"repositories": {
			"primary": {
				"workspace_root": {"type": "git tree", "id": "deadbeef", "repository": "upstream"},
				"target_root": "/ws/targets",
				"rule_root": "/ws/rules",
				"expression_root": {
					"type": "computed",
					"repository": "other",
					"target": ["//rules", "export"],
					"config": {"OS": "linux"}
				}
			}
		}
	}`)

	cfg, err := buildconfig.Load(raw)
	require.NoError(t, err)

	entry := cfg.Repositories["primary"]
	require.Equal(t, buildconfig.RootGitTree, entry.WorkspaceRoot.Kind)
	assert.Equal(t, "deadbeef", entry.WorkspaceRoot.TreeID)
	assert.Equal(t, "upstream", entry.WorkspaceRoot.Repository)

	require.Equal(t, buildconfig.RootComputed, entry.ExpressionRoot.Kind)
	assert.Equal(t, "other", entry.ExpressionRoot.ComputedRepository)
	assert.Equal(t, [2]string{"//rules", "export"}, entry.ExpressionRoot.Target)

	roots := cfg.ComputedRoots()
	require.Contains(t, roots, "primary")
	assert.Equal(t, buildconfig.RootComputed, roots["primary"].Kind)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"repositories": {
			"primary": {
				"workspace_root": "/ws",
				"target_root": "/ws/targets",
				"rule_root": "/ws/rules"
			}
		}
	}`)

	_, err := buildconfig.Load(raw)
	require.Error(t, err)
}

func TestLoadRejectsUnknownRootType(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"repositories": {
			"primary": {
				"workspace_root": {"type": "nonsense"},
				"target_root": "/ws/targets",
				"rule_root": "/ws/rules",
				"expression_root": "/ws/expr"
			}
		}
	}`)

	_, err := buildconfig.Load(raw)
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"repositories": {
			"primary": {
				"workspace_root": "/ws",
				"target_root": {"type": "git tree", "id": "abc123", "repository": "upstream"},
				"rule_root": "/ws/rules",
				"expression_root": "/ws/expr",
				"name_mapping": {"local": "global"}
			}
		}
	}`)

	cfg, err := buildconfig.Load(raw)
	require.NoError(t, err)

	entry := cfg.Repositories["primary"]
	assert.Equal(t, map[string]string{"local": "global"}, entry.NameMapping)

	encoded, err := entry.TargetRoot.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"type":"git tree"`)
}
