// Package manifest resolves package metadata from formula and cask files.
//
// The files are Ruby DSL definitions. Only the fields needed to describe a
// version bump are extracted, a full Ruby parser is deliberately not used.
package manifest

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Package is the metadata of one formula or cask, resolved from a single
// snapshot of its manifest file.
type Package struct {
	Name     string
	Version  string
	Revision int
	Checksum string
}

var (
	formulaClassRe = regexp.MustCompile(`(?m)^\s*class\s+\w+\s*<\s*Formula\b`)
	caskBlockRe    = regexp.MustCompile(`(?m)^\s*cask\s+"[^"]+"\s+do\b`)
	versionRe      = regexp.MustCompile(`(?m)^\s*version\s+"([^"]+)"`)
	urlRe          = regexp.MustCompile(`(?m)^\s*url\s+"([^"]+)"`)
	sha256Re       = regexp.MustCompile(`(?m)^\s*sha256\s+"([A-Fa-f0-9]{64})"`)
	revisionRe     = regexp.MustCompile(`(?m)^\s*revision\s+(\d+)\s*$`)

	// version component of an url basename, e.g. "foo-1.2.3.tar.gz"
	urlVersionRe = regexp.MustCompile(`[-_/]v?(\d+(?:\.\d+)+[A-Za-z0-9.+\-]*?)(?:\.src)?(?:\.tar)?(?:\.[a-z0-9]+)?$`)
)

// Resolver resolves package metadata from manifest file contents.
// Malformed contents resolve to absent, never to an error: a manifest may be
// syntactically valid in only one of the two snapshots that are compared.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the package described by contents.
// The package name is derived from the file path stem.
// If contents does not describe a formula or cask with a determinable
// version, (nil, false) is returned.
func (r *Resolver) Resolve(filePath, contents string) (*Package, bool) {
	if contents == "" {
		return nil, false
	}

	if !formulaClassRe.MatchString(contents) && !caskBlockRe.MatchString(contents) {
		return nil, false
	}

	version := resolveVersion(contents)
	if version == "" {
		return nil, false
	}

	pkg := Package{
		Name:    pathStem(filePath),
		Version: version,
	}

	if m := sha256Re.FindStringSubmatch(contents); m != nil {
		pkg.Checksum = strings.ToLower(m[1])
	}

	if m := revisionRe.FindStringSubmatch(contents); m != nil {
		rev, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, false
		}

		pkg.Revision = rev
	}

	return &pkg, true
}

func resolveVersion(contents string) string {
	if m := versionRe.FindStringSubmatch(contents); m != nil {
		return m[1]
	}

	urlMatch := urlRe.FindStringSubmatch(contents)
	if urlMatch == nil {
		return ""
	}

	if m := urlVersionRe.FindStringSubmatch(urlMatch[1]); m != nil {
		return m[1]
	}

	return ""
}

func pathStem(filePath string) string {
	base := path.Base(filePath)
	return strings.TrimSuffix(base, path.Ext(base))
}
