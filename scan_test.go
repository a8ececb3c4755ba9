package img2bag

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func relPaths(t *testing.T, root string, items []SourceItem) []string {
	t.Helper()
	paths := make([]string, len(items))
	for i, item := range items {
		rel, err := filepath.Rel(root, item.Path)
		if err != nil {
			t.Fatal(err)
		}
		paths[i] = filepath.ToSlash(rel)
	}
	return paths
}

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "10.png", "2.PNG", "1.jpg", "notes.txt", "sub/3.png", "sub/deeper/1.bmp")
	if err := os.Mkdir(filepath.Join(root, "dir.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		Name      string
		Recursive bool
		Exts      []string
		Expected  []string
	}{
		{
			Name:     "Direct children",
			Expected: []string{"1.jpg", "2.PNG", "10.png"},
		},
		{
			Name:      "Recursive",
			Recursive: true,
			Expected:  []string{"1.jpg", "2.PNG", "10.png", "sub/3.png", "sub/deeper/1.bmp"},
		},
		{
			Name:     "Custom extensions",
			Exts:     []string{"TXT", ".jpg"},
			Expected: []string{"1.jpg", "notes.txt"},
		},
		{
			Name:     "No match",
			Exts:     []string{".qoi"},
			Expected: []string{},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			items, err := Enumerate(root, testCase.Recursive, testCase.Exts)
			if err != nil {
				t.Fatal(err)
			}
			if items == nil {
				t.Fatal("expected a non-nil result")
			}

			if diff := cmp.Diff(testCase.Expected, relPaths(t, root, items)); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestEnumerateSymlink(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	touch(t, other, "target.png")

	if err := os.Symlink(filepath.Join(other, "target.png"), filepath.Join(root, "1.png")); err != nil {
		t.Skip("symlinks are not supported:", err)
	}
	if err := os.Symlink(filepath.Join(other, "missing.png"), filepath.Join(root, "2.png")); err != nil {
		t.Fatal(err)
	}

	// a dangling link is an unreadable file
	if _, err := Enumerate(root, false, nil); !errors.Is(err, ErrDiscovery) {
		t.Fatalf("expected a discovery error, got %v", err)
	}

	if err := os.Remove(filepath.Join(root, "2.png")); err != nil {
		t.Fatal(err)
	}
	items, err := Enumerate(root, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1.png"}, relPaths(t, root, items)); diff != "" {
		t.Fatal(diff)
	}
}

func TestEnumerateErrors(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "1.png")

	testCases := []struct {
		Name     string
		Root     string
		Expected []error
	}{
		{
			Name:     "Missing directory",
			Root:     filepath.Join(root, "missing"),
			Expected: []error{ErrDiscovery},
		},
		{
			Name:     "File instead of directory",
			Root:     filepath.Join(root, "1.png"),
			Expected: []error{ErrDiscovery, ErrNotADirectory},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			_, err := Enumerate(testCase.Root, false, nil)
			for _, expected := range testCase.Expected {
				if !errors.Is(err, expected) {
					t.Fatalf("expected %v, got %v", expected, err)
				}
			}
			if errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected a single error kind, got %v", err)
			}
		})
	}
}

func TestEnumerateUnresolvableRoot(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})

	// a removed working directory makes relative paths unresolvable
	gone := t.TempDir()
	if err := os.Chdir(gone); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(gone); err != nil {
		t.Skipf("cannot remove the working directory: %v", err)
	}
	t.Setenv("PWD", "")
	if _, err := filepath.Abs("images"); err == nil {
		t.Skip("relative paths still resolve without a working directory")
	}

	_, err = Enumerate(filepath.Join("camera", "images"), false, nil)
	if !errors.Is(err, ErrDiscovery) {
		t.Fatalf("expected a discovery error, got %v", err)
	}
	if !strings.Contains(err.Error(), filepath.Join("camera", "images")) {
		t.Fatalf("expected the directory in %q", err.Error())
	}
}

func TestNewTopicStream(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "b.png", "a.png")

	size := &ImageSize{Width: 640}
	stream, err := NewTopicStream(DirectoryTopic{Directory: root, Topic: "camera/image"}, false, nil, size)
	if err != nil {
		t.Fatal(err)
	}

	if stream.Topic != "camera/image" || stream.Size != size || stream.Empty() {
		t.Fatalf("unexpected stream %+v", stream)
	}
	if diff := cmp.Diff([]string{"a.png", "b.png"}, relPaths(t, root, stream.Items)); diff != "" {
		t.Fatal(diff)
	}
}
