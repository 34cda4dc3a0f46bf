package architecture_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Platform adapter packages are wired once in bootstrap; nothing else
// may depend on a concrete platform. providers/shared is the exception:
// it is the platform-agnostic toolkit.
func TestPlatformAdapterImportsStayInAllowedLayers(t *testing.T) {
	root := filepath.Join("..", "..")
	var violations []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") || base == "vendor" || base == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		normalized := filepath.ToSlash(path)
		allowed := strings.HasPrefix(normalized, "../../internal/bootstrap/") ||
			strings.HasPrefix(normalized, "../../internal/providers/")
		if allowed {
			return nil
		}

		fset := token.NewFileSet()
		f, parseErr := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if parseErr != nil {
			return parseErr
		}
		for _, imp := range f.Imports {
			pkg := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(pkg, "msgport/internal/providers/") {
				continue
			}
			if pkg == "msgport/internal/providers/shared" {
				continue
			}
			violations = append(violations, normalized+" imports "+pkg)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if len(violations) > 0 {
		t.Fatalf("platform adapter boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}
