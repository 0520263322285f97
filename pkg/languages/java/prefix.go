package java

import (
	"os"
	"regexp"
)

// Kotlin allows the trailing semicolon to be omitted
var packagePattern = regexp.MustCompile(`(?m)^\s*package\s+([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*;?\s*$`)

// ParsePackageDeclaration extracts the package from Java or Kotlin source
func ParsePackageDeclaration(source []byte) (string, bool) {
	m := packagePattern.FindSubmatch(source)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// CalculateJvmPackagePrefix returns the package declared by the source file.
// A readable source without a declaration is in the default package and
// yields "". Files that cannot be read or are not sources yield false.
func (p *Plugin) CalculateJvmPackagePrefix(source string) (string, bool) {
	if !p.isSource(source) {
		return "", false
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return "", false
	}
	pkg, _ := ParsePackageDeclaration(data)
	return pkg, true
}
