package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/pavelanni/capagrader/internal/store"
	"github.com/pavelanni/capagrader/internal/xqueue"
)

const ohmXML = `<problem>
<p>What is the resistance?</p>
<numericalresponse answer="10">
  <responseparam type="tolerance" default="5%"/>
  <formulaequationinput/>
</numericalresponse>
</problem>`

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProblemName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"ohm.xml", "ohm"},
		{"/lib/circuits/rc.xml", "rc"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := problemName(tt.path); got != tt.want {
			t.Errorf("problemName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestExpandProblemPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.xml", ohmXML)
	writeFile(t, dir, "a.xml", ohmXML)
	writeFile(t, dir, "notes.txt", "skip me")
	single := writeFile(t, t.TempDir(), "single.xml", ohmXML)

	got, err := expandProblemPaths([]string{dir, single})
	if err != nil {
		t.Fatalf("expandProblemPaths: %v", err)
	}
	want := []string{filepath.Join(dir, "a.xml"), filepath.Join(dir, "b.xml"), single}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path %d = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := expandProblemPaths([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestLoadProblems(t *testing.T) {
	db := newTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "ohm.xml", ohmXML)

	if err := loadProblems(db, []string{dir}); err != nil {
		t.Fatalf("loadProblems: %v", err)
	}
	p, err := db.GetProblem("ohm")
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if p.Source != path {
		t.Errorf("source = %q, want %q", p.Source, path)
	}
	hash, _ := db.GetImportedFileHash(path)
	if hash != sha256sum([]byte(ohmXML)) {
		t.Errorf("imported hash = %q", hash)
	}
	info, err := db.GetLibraryInfo()
	if err != nil || info.Count != 1 || info.SourceFile != path {
		t.Errorf("library info = %+v, %v", info, err)
	}

	// A second load of unchanged files keeps the library as it is.
	if err := loadProblems(db, []string{dir}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n, _ := db.ProblemCount(); n != 1 {
		t.Errorf("ProblemCount = %d, want 1", n)
	}

	// A changed file replaces the stored tree.
	changed := `<problem><stringresponse answer="ohm"><textline/></stringresponse></problem>`
	writeFile(t, dir, "ohm.xml", changed)
	if err := loadProblems(db, []string{dir}); err != nil {
		t.Fatalf("load changed: %v", err)
	}
	if hash, _ := db.GetImportedFileHash(path); hash != sha256sum([]byte(changed)) {
		t.Errorf("hash after change = %q", hash)
	}
}

func TestLoadProblemsRejectsBadMarkup(t *testing.T) {
	db := newTestStore(t)
	path := writeFile(t, t.TempDir(), "bad.xml", "<problem><unclosed></problem>")
	if err := loadProblems(db, []string{path}); err == nil {
		t.Error("expected a conversion error")
	}
	if hash, _ := db.GetImportedFileHash(path); hash != "" {
		t.Errorf("failed import recorded hash %q", hash)
	}
}

func TestOpenBackend(t *testing.T) {
	db := newTestStore(t)

	tests := []struct {
		backend string
		wantErr bool
	}{
		{"sqlite", false},
		{"", false},
		{"memory", false},
		{"kafka", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			v := viper.New()
			v.Set("queue-backend", tt.backend)
			q, closeFn, err := openBackend(v, db)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openBackend(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer closeFn()
			switch tt.backend {
			case "memory":
				if _, ok := q.(*xqueue.MemoryQueue); !ok {
					t.Errorf("backend = %T, want *xqueue.MemoryQueue", q)
				}
			default:
				if q != backend(db) {
					t.Errorf("sqlite backend did not reuse the store")
				}
			}
		})
	}
}

func TestRootCommandDefaultsToServe(t *testing.T) {
	root := rootCmd()
	if root.Flags().Lookup("addr") == nil {
		t.Error("root command is missing the serve flags")
	}
	for _, name := range []string{"serve", "grade", "preview", "convert", "worker", "export"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not found: %v", name, err)
		}
	}
}
