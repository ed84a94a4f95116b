package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/semver"

	"github.com/mcpscout/mcpscout/internal/types"
)

// Manifest is the normalized output shape shared by every ecosystem parser.
type Manifest struct {
	Name         string
	Version      string
	Description  string
	Language     string
	Dependencies []string
	EntryPoints  []string
	HasBinEntry  bool
}

// ManifestParser parses one ecosystem's manifest format into the common
// shape. New ecosystems are added as new variants, not as branches inside
// the analyzer.
type ManifestParser interface {
	// File is the manifest filename this parser handles.
	File() string
	// Parse converts raw manifest content into the normalized shape.
	Parse(content string) (*Manifest, error)
}

// defaultParsers covers the supported ecosystems.
func defaultParsers() []ManifestParser {
	return []ManifestParser{
		npmParser{},
		pyprojectParser{},
		cargoParser{},
		gomodParser{},
		requirementsParser{},
	}
}

// normalizeVersion canonicalizes a manifest version when it is valid
// semver; otherwise the raw string is kept.
func normalizeVersion(v string) string {
	if v == "" {
		return ""
	}
	withPrefix := v
	if !strings.HasPrefix(withPrefix, "v") {
		withPrefix = "v" + withPrefix
	}
	if semver.IsValid(withPrefix) {
		return semver.Canonical(withPrefix)
	}
	return v
}

// npmParser handles package.json.
type npmParser struct{}

func (npmParser) File() string { return "package.json" }

func (npmParser) Parse(content string) (*Manifest, error) {
	var pkg struct {
		Name            string            `json:"name"`
		Version         string            `json:"version"`
		Description     string            `json:"description"`
		Main            string            `json:"main"`
		Bin             json.RawMessage   `json:"bin"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return nil, &types.ParseError{File: "package.json", Err: err}
	}

	m := &Manifest{
		Name:        pkg.Name,
		Version:     normalizeVersion(pkg.Version),
		Description: pkg.Description,
		Language:    "JavaScript",
		HasBinEntry: len(pkg.Bin) > 0 && string(pkg.Bin) != "null",
	}
	if pkg.Main != "" {
		m.EntryPoints = append(m.EntryPoints, pkg.Main)
	}
	for dep := range pkg.Dependencies {
		m.Dependencies = append(m.Dependencies, dep)
	}
	for dep := range pkg.DevDependencies {
		m.Dependencies = append(m.Dependencies, dep)
	}
	return m, nil
}

// pyprojectParser handles pyproject.toml.
type pyprojectParser struct{}

func (pyprojectParser) File() string { return "pyproject.toml" }

func (pyprojectParser) Parse(content string) (*Manifest, error) {
	var doc struct {
		Project struct {
			Name         string   `toml:"name"`
			Version      string   `toml:"version"`
			Description  string   `toml:"description"`
			Dependencies []string `toml:"dependencies"`
			Scripts      map[string]string `toml:"scripts"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name         string                 `toml:"name"`
				Version      string                 `toml:"version"`
				Description  string                 `toml:"description"`
				Dependencies map[string]interface{} `toml:"dependencies"`
				Scripts      map[string]string      `toml:"scripts"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.Decode(content, &doc); err != nil {
		return nil, &types.ParseError{File: "pyproject.toml", Err: err}
	}

	m := &Manifest{
		Name:        doc.Project.Name,
		Version:     normalizeVersion(doc.Project.Version),
		Description: doc.Project.Description,
		Language:    "Python",
		HasBinEntry: len(doc.Project.Scripts) > 0 || len(doc.Tool.Poetry.Scripts) > 0,
	}
	for _, dep := range doc.Project.Dependencies {
		// Strip version constraints: "mcp>=1.0" -> "mcp"
		m.Dependencies = append(m.Dependencies, splitRequirement(dep))
	}

	// Poetry layout takes over when the PEP 621 table is absent
	if m.Name == "" {
		m.Name = doc.Tool.Poetry.Name
		m.Version = normalizeVersion(doc.Tool.Poetry.Version)
		m.Description = doc.Tool.Poetry.Description
	}
	for dep := range doc.Tool.Poetry.Dependencies {
		if dep != "python" {
			m.Dependencies = append(m.Dependencies, dep)
		}
	}
	return m, nil
}

// cargoParser handles Cargo.toml.
type cargoParser struct{}

func (cargoParser) File() string { return "Cargo.toml" }

func (cargoParser) Parse(content string) (*Manifest, error) {
	var doc struct {
		Package struct {
			Name        string `toml:"name"`
			Version     string `toml:"version"`
			Description string `toml:"description"`
		} `toml:"package"`
		Dependencies map[string]interface{} `toml:"dependencies"`
		Bin          []struct {
			Name string `toml:"name"`
		} `toml:"bin"`
	}
	if _, err := toml.Decode(content, &doc); err != nil {
		return nil, &types.ParseError{File: "Cargo.toml", Err: err}
	}

	m := &Manifest{
		Name:        doc.Package.Name,
		Version:     normalizeVersion(doc.Package.Version),
		Description: doc.Package.Description,
		Language:    "Rust",
		HasBinEntry: len(doc.Bin) > 0,
	}
	for dep := range doc.Dependencies {
		m.Dependencies = append(m.Dependencies, dep)
	}
	return m, nil
}

// gomodParser handles go.mod with a line scan; go.mod is not a structured
// serialization format worth a full parser here.
type gomodParser struct{}

func (gomodParser) File() string { return "go.mod" }

func (gomodParser) Parse(content string) (*Manifest, error) {
	m := &Manifest{Language: "Go"}
	inRequire := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "module "):
			m.Name = strings.TrimSpace(strings.TrimPrefix(line, "module "))
		case strings.HasPrefix(line, "require ("):
			inRequire = true
		case inRequire && line == ")":
			inRequire = false
		case inRequire, strings.HasPrefix(line, "require "):
			dep := strings.TrimSpace(strings.TrimPrefix(line, "require "))
			fields := strings.Fields(dep)
			if len(fields) >= 1 && fields[0] != "" && !strings.HasPrefix(fields[0], "//") {
				m.Dependencies = append(m.Dependencies, fields[0])
			}
		}
	}
	return m, nil
}

// requirementsParser handles requirements.txt.
type requirementsParser struct{}

func (requirementsParser) File() string { return "requirements.txt" }

func (requirementsParser) Parse(content string) (*Manifest, error) {
	m := &Manifest{Language: "Python"}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		m.Dependencies = append(m.Dependencies, splitRequirement(line))
	}
	return m, nil
}

// splitRequirement strips PEP 508 version constraints from a requirement.
func splitRequirement(req string) string {
	for _, sep := range []string{">=", "<=", "==", "~=", "!=", ">", "<", "[", ";", " "} {
		if i := strings.Index(req, sep); i >= 0 {
			req = req[:i]
		}
	}
	return strings.TrimSpace(req)
}
