package analysis

import "github.com/Sumatoshi-tech/codefang/pkg/expr"

// RuleType is the declared "type" discriminator a target description
// dispatches on.
type RuleType string

const (
	RuleFileGen  RuleType = "file_gen"
	RuleSymlink  RuleType = "symlink"
	RuleTree     RuleType = "tree"
	RuleInstall  RuleType = "install"
	RuleGeneric  RuleType = "generic"
	RuleConfigure RuleType = "configure"
	RuleExport   RuleType = "export"
)

// DirEntry stages a dependency's artifacts+runfiles underneath path,
// one entry per directory the install rule places a dependency under.
type DirEntry struct {
	Target expr.Name
	Path   string
}

// TargetDescription is the already-parsed form of a rule invocation; the
// source front-end that turns user build files into this shape is not
// implemented by this package.
type TargetDescription struct {
	Name RuleType

	ArgumentsConfig []string
	Tainted         []string
	Deps            []expr.Name

	// file_gen / symlink
	OutName *expr.Expr
	Data    *expr.Expr

	// tree
	TreeName *expr.Expr

	// install
	Files map[string]expr.Name
	Dirs  []DirEntry

	// generic
	Cmds               []string
	Outs               []string
	OutDirs            []string
	Env                map[string]string
	ShellVal           []string
	ExecutionProperties map[string]string
	TimeoutScale       float64

	// configure
	ConfigureTarget expr.Name
	ConfigureConfig map[string]expr.Value

	// export
	Inner expr.Name
}
