package autosquash

import (
	"fmt"
	"path"
	"strings"

	"github.com/simplesurance/tapmerge/internal/manifest"
)

// PackageResolver resolves package metadata from manifest file contents.
// Malformed contents must resolve to absent (false), never to an error.
type PackageResolver interface {
	Resolve(path, contents string) (*manifest.Package, bool)
}

// determineBumpSubject returns the normalized subject line describing the
// change between two snapshots of a manifest file.
// A nil package means the snapshot is absent or unparsable.
func determineBumpSubject(oldPkg, newPkg *manifest.Package, filePath string, isCask bool, reason string) string {
	name := packageName(filePath)

	if newPkg == nil {
		return strings.TrimSpace(fmt.Sprintf("%s: delete %s", name, reason))
	}

	kind := "formula"
	if isCask {
		kind = "cask"
	}

	if oldPkg == nil {
		return fmt.Sprintf("%s %s (new %s)", name, newPkg.Version, kind)
	}

	if oldPkg.Version != newPkg.Version {
		return fmt.Sprintf("%s %s", name, newPkg.Version)
	}

	if !isCask && oldPkg.Revision != newPkg.Revision {
		return strings.TrimSpace(fmt.Sprintf("%s: revision %s", name, reason))
	}

	if isCask && oldPkg.Checksum != newPkg.Checksum {
		return strings.TrimSpace(fmt.Sprintf("%s: checksum update %s", name, reason))
	}

	if reason == "" {
		reason = "rebuild"
	}

	return fmt.Sprintf("%s: %s", name, reason)
}

// packageName is the stem of the manifest file path.
func packageName(filePath string) string {
	base := path.Base(filePath)
	return strings.TrimSuffix(base, path.Ext(base))
}
