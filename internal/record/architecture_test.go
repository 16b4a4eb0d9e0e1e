package record

import (
	"path/filepath"
	"sort"
	"testing"

	"golang.org/x/tools/go/packages"

	"metastore/testutil"
)

// TestOnlyRecordPackageImportsInfra ensures that only this package wraps the
// concrete backends. Everything else depends on the Table interface.
func TestOnlyRecordPackageImportsInfra(t *testing.T) {
	const allowed = "metastore/internal/record"

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "metastore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if pkg.PkgPath == allowed || testutil.RecordInfraImportForbidden(pkg.PkgPath) {
			continue
		}
		for importPath := range pkg.Imports {
			if testutil.RecordInfraImportForbidden(importPath) {
				seen[filepath.Join(pkg.PkgPath, "...")+": "+importPath] = struct{}{}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import of infra record package: %s", v)
		}
		t.Fatalf("found %d forbidden imports of infra record packages", len(violations))
	}
}
