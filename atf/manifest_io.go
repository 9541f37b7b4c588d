package atf

import (
	"os"

	"github.com/wezzard/atfcore/manifest"
)

// writeManifestFile marshals m (already pretty-printed by
// Manifest.MarshalJSON) and writes it to path, creating or truncating
// the file as needed.
func writeManifestFile(path string, m manifest.Manifest) error {
	b, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
