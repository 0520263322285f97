package bazel

import (
	"encoding/xml"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/ritzau/bazel-sync/pkg/model"
)

// DefaultBinFragment is the execution-root-relative output directory used
// when `bazel info` is not available.
const DefaultBinFragment = "bazel-out/k8-fastbuild/bin"

// Parser turns `bazel query --output=xml` into target descriptors
type Parser struct {
	// BinFragment locates generated files below the execution root
	BinFragment string
	// RuntimeJdk is the java_runtime label attached to every JVM target
	RuntimeJdk string
}

// NewParser creates a new Bazel parser
func NewParser() *Parser {
	return &Parser{BinFragment: DefaultBinFragment}
}

// ParseResult is everything one query output describes
type ParseResult struct {
	Targets            []*model.TargetInfo
	Libraries          []model.Library
	SourceDependencies map[model.Label][]string
}

// ParseQueryOutput parses the XML output of a Bazel query. Only JVM rules
// (java_* and kt_jvm_*) become targets; other rules are used to locate
// generated files.
func (p *Parser) ParseQueryOutput(data []byte) (*ParseResult, error) {
	// Bazel outputs XML 1.1, but Go's XML parser only supports 1.0
	xmlStr := strings.Replace(string(data), `<?xml version="1.1"`, `<?xml version="1.0"`, 1)

	var result queryXML
	if err := xml.Unmarshal([]byte(xmlStr), &result); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	generated := make(map[string]bool)
	ruleOutputs := make(map[string][]string)
	for _, g := range result.GeneratedFiles {
		generated[g.Name] = true
	}
	for _, r := range result.Rules {
		for _, out := range r.Outputs {
			generated[out.Name] = true
			ruleOutputs[r.Name] = append(ruleOutputs[r.Name], out.Name)
		}
	}

	res := &ParseResult{SourceDependencies: make(map[model.Label][]string)}
	imports := make(map[model.Label]*ruleXML)
	known := make(map[model.Label]bool)

	for i := range result.Rules {
		rule := &result.Rules[i]
		kind := model.TargetKind(rule.Class)
		if !IsJvmKind(kind) {
			continue
		}
		t := p.parseRule(rule, generated, ruleOutputs)
		res.Targets = append(res.Targets, t)
		known[t.ID] = true
		if kind.IsLibrary() {
			imports[t.ID] = rule
			res.Libraries = append(res.Libraries, p.importLibrary(t))
		}
	}

	external := make(map[model.Label]bool)
	for _, t := range res.Targets {
		for _, dep := range t.Dependencies {
			if rule, ok := imports[dep]; ok {
				if srcjar := rule.stringAttr("srcjar"); srcjar != "" {
					res.SourceDependencies[t.ID] = append(res.SourceDependencies[t.ID], p.location(srcjar, generated[srcjar]).RelativePath)
				}
			}
			if dep.IsExternal() && !known[dep] {
				external[dep] = true
			}
		}
	}
	for dep := range external {
		res.Libraries = append(res.Libraries, model.Library{ID: dep})
	}
	sort.Slice(res.Libraries, func(i, j int) bool { return res.Libraries[i].ID < res.Libraries[j].ID })

	return res, nil
}

// IsJvmKind reports whether rules of kind are handled by the JVM plugin
func IsJvmKind(kind model.TargetKind) bool {
	k := string(kind)
	return strings.HasPrefix(k, "java_") || strings.HasPrefix(k, "kt_jvm_")
}

func (p *Parser) parseRule(rule *ruleXML, generated map[string]bool, ruleOutputs map[string][]string) *model.TargetInfo {
	id := model.Label(rule.Name)
	kind := model.TargetKind(rule.Class)

	t := &model.TargetInfo{
		ID:   id,
		Kind: kind,
		Tags: rule.stringList("tags"),
	}

	addFiles := func(labels []string, srcs, gen *[]model.FileLocation) {
		for _, l := range labels {
			if outs, isRule := ruleOutputs[l]; isRule {
				for _, out := range outs {
					*gen = append(*gen, p.location(out, true))
				}
				continue
			}
			if generated[l] {
				*gen = append(*gen, p.location(l, true))
			} else {
				*srcs = append(*srcs, p.location(l, false))
			}
		}
	}
	addFiles(rule.labelList("srcs"), &t.Sources, &t.GeneratedSources)
	var generatedResources []model.FileLocation
	addFiles(rule.labelList("resources"), &t.Resources, &generatedResources)
	t.Resources = append(t.Resources, generatedResources...)

	seen := make(map[model.Label]bool)
	for _, attr := range []string{"deps", "exports", "runtime_deps"} {
		for _, l := range rule.labelList(attr) {
			dep := model.Label(l)
			if !seen[dep] {
				seen[dep] = true
				t.Dependencies = append(t.Dependencies, dep)
			}
		}
	}

	info := &model.JvmTargetInfo{
		JavacOpts:  rule.stringList("javacopts"),
		JvmFlags:   rule.stringList("jvm_flags"),
		MainClass:  rule.stringAttr("main_class"),
		Args:       rule.stringList("args"),
		RuntimeJdk: p.RuntimeJdk,
	}
	if kind.IsLibrary() {
		var jars []model.FileLocation
		for _, j := range rule.labelList("jars") {
			jars = append(jars, p.location(j, generated[j]))
		}
		if len(jars) > 0 {
			outputs := model.JvmOutputs{BinaryJars: jars}
			if srcjar := rule.stringAttr("srcjar"); srcjar != "" {
				outputs.SourceJars = []model.FileLocation{p.location(srcjar, generated[srcjar])}
			}
			info.Jars = []model.JvmOutputs{outputs}
		}
	} else {
		info.Jars = []model.JvmOutputs{{
			BinaryJars: []model.FileLocation{p.outputJar(id, kind)},
		}}
	}
	t.JvmTargetInfo = info

	return t
}

// outputJar returns the main jar Bazel writes for a rule:
// lib<name>.jar for java_library, <name>.jar otherwise
func (p *Parser) outputJar(id model.Label, kind model.TargetKind) model.FileLocation {
	name := id.Name() + ".jar"
	if kind == model.TargetKindJavaLibrary {
		name = "lib" + name
	}
	rel := path.Join(id.Package(), name)
	if repo := id.Repo(); repo != "" {
		rel = path.Join("external", repo, rel)
	}
	return model.FileLocation{RelativePath: rel, RootExecutionPathFragment: p.BinFragment}
}

func (p *Parser) importLibrary(t *model.TargetInfo) model.Library {
	lib := model.Library{ID: t.ID, Jars: []string{}}
	if t.JvmTargetInfo != nil {
		for _, out := range t.JvmTargetInfo.Jars {
			for _, jar := range out.BinaryJars {
				lib.Jars = append(lib.Jars, jar.RelativePath)
			}
		}
	}
	return lib
}

// location maps a file label to a FileLocation.
// e.g., "//core:src/A.java" -> core/src/A.java in the workspace,
// "@maven//:lib.jar" -> maven/lib.jar below output_base/external
func (p *Parser) location(label string, generated bool) model.FileLocation {
	l := model.Label(label)
	rel := path.Join(l.Package(), l.Name())
	repo := l.Repo()

	if generated {
		if repo != "" {
			rel = path.Join("external", repo, rel)
		}
		return model.FileLocation{RelativePath: rel, RootExecutionPathFragment: p.BinFragment}
	}
	if repo != "" {
		return model.FileLocation{RelativePath: path.Join(repo, rel), IsSource: true, IsExternal: true}
	}
	return model.FileLocation{RelativePath: rel, IsSource: true}
}
