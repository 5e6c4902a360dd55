// Package bootstrap seeds starter data files for a fresh install so the
// gateway can start before real customer and catalog data exists.
package bootstrap

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed templates/*.json
var templateFS embed.FS

// ReadTemplate returns the content of an embedded template file.
func ReadTemplate(name string) ([]byte, error) {
	return templateFS.ReadFile(filepath.Join("templates", name))
}

// EnsureDataFiles seeds the customer directory and remedy catalog when the
// configured files do not exist yet. Existing files are never overwritten.
// Returns the list of files that were created.
func EnsureDataFiles(directoryPath, catalogPath string) ([]string, error) {
	var created []string
	for template, dst := range map[string]string{
		"customers.json": directoryPath,
		"catalog.json":   catalogPath,
	} {
		ok, err := seedTemplate(template, dst)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", dst, err)
		}
		if ok {
			created = append(created, dst)
		}
	}
	return created, nil
}

// seedTemplate writes a template to dst if it doesn't exist. Returns true
// when the file was created.
func seedTemplate(template, dst string) (bool, error) {
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := ReadTemplate(template)
	if err != nil {
		return false, err
	}
	if _, err := f.Write(content); err != nil {
		return false, err
	}
	return true, nil
}
