package tree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPermissionsRoundTrip(t *testing.T) {
	cases := []os.FileMode{0o644, 0o755, 0o600, 0o777, 0o400}
	for _, mode := range cases {
		p := PermissionsFromMode(mode)
		if p.Mode() != mode {
			t.Errorf("permissions %o: round-trip gave %o", mode, p.Mode())
		}
	}
}

func TestPermissionsMasksTypeBits(t *testing.T) {
	p := PermissionsFromMode(os.ModeDir | 0o750)
	if p != 0o750 {
		t.Errorf("got %o, want 750", p)
	}
}

func TestKindStrings(t *testing.T) {
	cases := []struct {
		kind Kind
		name string
	}{
		{KindFile, "file"},
		{KindDir, "directory"},
		{KindSymlink, "symlink"},
		{KindUnknown, "unknown"},
	}
	for _, tt := range cases {
		if tt.kind.String() != tt.name {
			t.Errorf("%v.String() = %q", tt.kind, tt.kind.String())
		}
		back, err := ParseKind(tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if back != tt.kind {
			t.Errorf("ParseKind(%q) = %v", tt.name, back)
		}
	}
	if _, err := ParseKind("socket"); err == nil {
		t.Error("expected error for unknown kind name")
	}
}

func TestLstatVariants(t *testing.T) {
	dir := t.TempDir()

	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "ln")
	if err := os.Symlink("f.txt", link); err != nil {
		t.Fatal(err)
	}

	st, err := Lstat(file, "f.txt")
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != KindFile || st.Size != 5 || st.Path != "f.txt" {
		t.Errorf("file stat wrong: %+v", st)
	}
	if st.Perm != 0o640 {
		t.Errorf("file perm = %o, want 640", st.Perm)
	}

	st, err = Lstat(sub, "sub")
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != KindDir {
		t.Errorf("dir stat wrong: %+v", st)
	}

	st, err = Lstat(link, "ln")
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind != KindSymlink || st.Target != "f.txt" {
		t.Errorf("symlink stat wrong: %+v", st)
	}
}
