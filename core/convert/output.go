package convert

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/jatspkg/core/errors"
)

// Output file names.
const (
	PackageFile = "package.json"
	HTMLFile    = "index.html"
)

// rename is swapped in tests.
var rename = os.Rename

// WriteOutputs writes package.json and index.html into dir. Both files are
// staged in a temporary directory inside dir and renamed into place only
// after both were written. If a rename into place fails, outputs already
// moved are removed and any previous outputs are restored.
func WriteOutputs(res *Result, dir string) error {
	var pkg bytes.Buffer
	if err := res.Package.Encode(&pkg); err != nil {
		return fmt.Errorf("encode package: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("mkdir", dir, err)
	}
	stage, err := os.MkdirTemp(dir, ".stage-*")
	if err != nil {
		return errors.NewIO("mkdir", dir, err)
	}
	defer os.RemoveAll(stage)

	outputs := []struct {
		name string
		data []byte
	}{
		{PackageFile, pkg.Bytes()},
		{HTMLFile, []byte(res.HTML)},
	}
	for _, o := range outputs {
		if err := os.WriteFile(filepath.Join(stage, o.name), o.data, 0644); err != nil {
			return errors.NewIO("write", o.name, err)
		}
	}
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.name
	}
	return commit(stage, dir, names)
}

// commit moves the staged names into dir, keeping the previous files in
// stage until every new file is in place.
func commit(stage, dir string, names []string) error {
	var saved, placed []string
	rollback := func() {
		for _, n := range placed {
			os.Remove(filepath.Join(dir, n))
		}
		for _, n := range saved {
			rename(filepath.Join(stage, n+".prev"), filepath.Join(dir, n))
		}
	}

	for _, n := range names {
		dst := filepath.Join(dir, n)
		if _, err := os.Lstat(dst); err != nil {
			continue
		}
		if err := rename(dst, filepath.Join(stage, n+".prev")); err != nil {
			rollback()
			return errors.NewIO("rename", n, err)
		}
		saved = append(saved, n)
	}
	for _, n := range names {
		if err := rename(filepath.Join(stage, n), filepath.Join(dir, n)); err != nil {
			rollback()
			return errors.NewIO("rename", n, err)
		}
		placed = append(placed, n)
	}
	return nil
}
