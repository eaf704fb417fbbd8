// Package targetfile implements the on-disk target-file front end: a YAML
// document per module naming its targets, loaded into the already-parsed
// analysis.TargetDescription shape pkg/analysis.Describer consumes. It is
// the filesystem stand-in for the source-language front end pkg/analysis
// deliberately does not implement, grounded on pkg/buildconfig's root/file
// naming (WorkspaceRoot, TargetFileName) and on gopkg.in/yaml.v3 for decode;
// it is the only package in this module that reads YAML.
package targetfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
	"github.com/Sumatoshi-tech/codefang/pkg/expr"
)

// ErrTargetNotFound is returned when a module's target file exists but does
// not declare the requested target.
var ErrTargetNotFound = errors.New("targetfile: target not found")

// yamlTarget is the on-disk shape of one target entry. Fields unused by a
// given Type are simply left zero.
type yamlTarget struct {
	Type string `yaml:"type"`

	ArgumentsConfig []string `yaml:"arguments_config"`
	Tainted         []string `yaml:"tainted"`
	Deps            []string `yaml:"deps"`

	Out  string `yaml:"out"`
	Data string `yaml:"data"`

	TreeName string `yaml:"tree_name"`

	Files map[string]string    `yaml:"files"`
	Dirs  []yamlInstallDirEntry `yaml:"dirs"`

	Cmds                []string          `yaml:"cmds"`
	Outs                []string          `yaml:"outs"`
	OutDirs             []string          `yaml:"out_dirs"`
	Env                 map[string]string `yaml:"env"`
	Shell               []string          `yaml:"shell"`
	ExecutionProperties map[string]string `yaml:"execution_properties"`
	TimeoutScale        float64           `yaml:"timeout_scale"`

	ConfigureTarget string                 `yaml:"configure_target"`
	ConfigureConfig map[string]interface{} `yaml:"configure_config"`

	Inner string `yaml:"inner"`
}

type yamlInstallDirEntry struct {
	Target string `yaml:"target"`
	Path   string `yaml:"path"`
}

// ParseName splits a "module#target" reference, the CLI/dependency-list
// spelling, into an expr.Name.
func ParseName(s string) (expr.Name, error) {
	module, target, ok := strings.Cut(s, "#")
	if !ok {
		return expr.Name{}, fmt.Errorf("targetfile: malformed target reference %q, want module#target", s)
	}

	return expr.Name{Module: module, Target: target}, nil
}

// Source loads target descriptions from a directory tree rooted at root,
// one YAML file per module named fileName (e.g. "TARGETS.yaml"), each file
// a mapping of target name to yamlTarget.
type Source struct {
	root     string
	fileName string
}

// NewSource constructs a Source reading module target files under root.
func NewSource(root, fileName string) *Source {
	return &Source{root: root, fileName: fileName}
}

// Describer returns an analysis.Describer backed by s.
func (s *Source) Describer() analysis.Describer {
	return s.Describe
}

// Describe implements analysis.Describer by reading <root>/<module>/<fileName>
// and converting the named entry.
func (s *Source) Describe(name expr.Name) (analysis.TargetDescription, error) {
	path := filepath.Join(s.root, name.Module, s.fileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		return analysis.TargetDescription{}, fmt.Errorf("targetfile: read %s: %w", path, err)
	}

	var entries map[string]yamlTarget

	if unmarshalErr := yaml.Unmarshal(raw, &entries); unmarshalErr != nil {
		return analysis.TargetDescription{}, fmt.Errorf("targetfile: parse %s: %w", path, unmarshalErr)
	}

	entry, ok := entries[name.Target]
	if !ok {
		return analysis.TargetDescription{}, fmt.Errorf("%w: %s in %s", ErrTargetNotFound, name, path)
	}

	return convert(entry)
}

func convert(y yamlTarget) (analysis.TargetDescription, error) {
	deps := make([]expr.Name, 0, len(y.Deps))

	for _, d := range y.Deps {
		n, err := ParseName(d)
		if err != nil {
			return analysis.TargetDescription{}, err
		}

		deps = append(deps, n)
	}

	desc := analysis.TargetDescription{
		Name:                analysis.RuleType(y.Type),
		ArgumentsConfig:     y.ArgumentsConfig,
		Tainted:             y.Tainted,
		Deps:                deps,
		Cmds:                y.Cmds,
		Outs:                y.Outs,
		OutDirs:             y.OutDirs,
		Env:                 y.Env,
		ShellVal:            y.Shell,
		ExecutionProperties: y.ExecutionProperties,
		TimeoutScale:        y.TimeoutScale,
	}

	if y.Out != "" {
		lit := expr.Literal(expr.String(y.Out))
		desc.OutName = &lit
	}

	if y.Data != "" {
		lit := expr.Literal(expr.String(y.Data))
		desc.Data = &lit
	}

	if y.TreeName != "" {
		lit := expr.Literal(expr.String(y.TreeName))
		desc.TreeName = &lit
	}

	if len(y.Files) > 0 {
		desc.Files = make(map[string]expr.Name, len(y.Files))

		for path, ref := range y.Files {
			n, err := ParseName(ref)
			if err != nil {
				return analysis.TargetDescription{}, err
			}

			desc.Files[path] = n
		}
	}

	for _, d := range y.Dirs {
		n, err := ParseName(d.Target)
		if err != nil {
			return analysis.TargetDescription{}, err
		}

		desc.Dirs = append(desc.Dirs, analysis.DirEntry{Target: n, Path: d.Path})
	}

	if y.ConfigureTarget != "" {
		n, err := ParseName(y.ConfigureTarget)
		if err != nil {
			return analysis.TargetDescription{}, err
		}

		desc.ConfigureTarget = n
	}

	if len(y.ConfigureConfig) > 0 {
		desc.ConfigureConfig = make(map[string]expr.Value, len(y.ConfigureConfig))

		for k, v := range y.ConfigureConfig {
			desc.ConfigureConfig[k] = scalarToValue(v)
		}
	}

	if y.Inner != "" {
		n, err := ParseName(y.Inner)
		if err != nil {
			return analysis.TargetDescription{}, err
		}

		desc.Inner = n
	}

	return desc, nil
}

func scalarToValue(v interface{}) expr.Value {
	switch t := v.(type) {
	case string:
		return expr.String(t)
	case bool:
		return expr.Bool(t)
	case int:
		return expr.Number(float64(t))
	case float64:
		return expr.Number(t)
	default:
		return expr.String(fmt.Sprintf("%v", t))
	}
}
