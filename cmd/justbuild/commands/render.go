package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
)

// renderAnalysedTarget writes a tabular summary of target's staged
// artifacts, runfiles, and actions to w, in the same borderless go-pretty
// style the renderer's own collection tables use.
func renderAnalysedTarget(w io.Writer, name string, target analysis.AnalysedTarget) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	tbl.AppendHeader(table.Row{"path", "kind", "action", "digest"})

	for _, row := range stageRows(target.Result.ArtifactStage) {
		tbl.AppendRow(table.Row{row.path, row.kind, row.action, row.digest})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%s: %d artifact(s), %d action(s)", name, len(target.Result.ArtifactStage), len(target.Actions)),
	})

	fmt.Fprintln(w, tbl.Render()) //nolint:errcheck // best-effort CLI output
}

type stageRow struct {
	path, kind, action, digest string
}

func stageRows(stage analysis.Stage) []stageRow {
	paths := make([]string, 0, len(stage))
	for p := range stage {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	rows := make([]stageRow, 0, len(paths))

	for _, p := range paths {
		art := stage[p]

		switch art.Kind {
		case analysis.ArtifactActionOutput:
			rows = append(rows, stageRow{path: p, kind: "action-output", action: art.ActionID, digest: "-"})
		case analysis.ArtifactKnownTree:
			rows = append(rows, stageRow{path: p, kind: "tree", action: "-", digest: art.Digest.Hash})
		default:
			rows = append(rows, stageRow{path: p, kind: "blob", action: "-", digest: art.Digest.Hash})
		}
	}

	return rows
}
