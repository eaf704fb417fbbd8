package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

func TestStageRowsSortsPathsAndClassifiesKind(t *testing.T) {
	t.Parallel()

	stage := analysis.Stage{
		"b.txt": {Kind: analysis.ArtifactActionOutput, ActionID: "act-1"},
		"a.txt": {Kind: analysis.ArtifactKnownBlob, Digest: digest.Digest{Hash: "deadbeef"}},
		"c":     {Kind: analysis.ArtifactKnownTree, Digest: digest.Digest{Hash: "treehash"}},
	}

	rows := stageRows(stage)

	assert.Equal(t, []stageRow{
		{path: "a.txt", kind: "blob", action: "-", digest: "deadbeef"},
		{path: "b.txt", kind: "action-output", action: "act-1", digest: "-"},
		{path: "c", kind: "tree", action: "-", digest: "treehash"},
	}, rows)
}

func TestStageRowsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, stageRows(analysis.Stage{}))
}
