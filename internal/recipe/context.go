package recipe

import (
	"archive/tar"
	_ "crypto/sha256" // registers the digest.Canonical hash
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/opencontainers/go-digest"
)

// IgnoreFile is the context exclusion file read from the project root.
const IgnoreFile = ".dockerignore"

// File is one regular file in the build context.
type File struct {
	Path   string // slash-separated, relative to the context root
	Size   int64
	Mode   fs.FileMode
	Digest digest.Digest
}

// BuildContext is the set of files sent to the image builder.
type BuildContext struct {
	Root     string
	Manifest string
	Patterns []string
	Files    []File // sorted by Path
}

// LoadIgnoreFile reads root/.dockerignore. A missing file yields no patterns.
func LoadIgnoreFile(root string) ([]string, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", IgnoreFile, err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	return patterns, nil
}

// CollectContext walks root and returns every regular file not excluded by
// patterns, with its content digest. Root-level lock files and the ignore
// file itself are always left out. The manifest must be present.
func CollectContext(root, manifest string, patterns []string) (*BuildContext, error) {
	if manifest == "" {
		manifest = ManifestFile
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore patterns: %w", err)
	}

	bc := &BuildContext{Root: root, Manifest: manifest, Patterns: patterns}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		excluded, err := pm.MatchesOrParentMatches(rel)
		if err != nil {
			return fmt.Errorf("match %s: %w", rel, err)
		}
		if d.IsDir() {
			if excluded && !pm.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}

		slashed := filepath.ToSlash(rel)
		if excluded || isLockFile(slashed) || slashed == IgnoreFile || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		dgst, err := fileDigest(p)
		if err != nil {
			return err
		}
		bc.Files = append(bc.Files, File{Path: slashed, Size: info.Size(), Mode: info.Mode(), Digest: dgst})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect build context: %w", err)
	}
	sort.Slice(bc.Files, func(i, j int) bool { return bc.Files[i].Path < bc.Files[j].Path })

	if _, ok := bc.Lookup(manifest); !ok {
		if _, statErr := os.Stat(filepath.Join(root, manifest)); statErr == nil {
			return nil, fmt.Errorf("%w: %s is excluded by ignore rules", ErrManifestMissing, manifest)
		}
		return nil, fmt.Errorf("%w: %s not found in %s", ErrManifestMissing, manifest, root)
	}
	return bc, nil
}

func fileDigest(name string) (digest.Digest, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.FromReader(f)
}

// Lookup returns the file at path p.
func (c *BuildContext) Lookup(p string) (File, bool) {
	i := sort.Search(len(c.Files), func(i int) bool { return c.Files[i].Path >= p })
	if i < len(c.Files) && c.Files[i].Path == p {
		return c.Files[i], true
	}
	return File{}, false
}

// Select returns the files a COPY source refers to: the whole context for
// ".", a single file, every file under a directory, or glob matches.
func (c *BuildContext) Select(src string) []File {
	clean := path.Clean(strings.TrimPrefix(filepath.ToSlash(src), "/"))
	if clean == "." {
		return slices.Clone(c.Files)
	}
	var out []File
	for _, f := range c.Files {
		if f.Path == clean || strings.HasPrefix(f.Path, clean+"/") {
			out = append(out, f)
			continue
		}
		if ok, _ := path.Match(clean, f.Path); ok {
			out = append(out, f)
		}
	}
	return out
}

// Digest identifies the whole context.
func (c *BuildContext) Digest() digest.Digest {
	d := digest.Canonical.Digester()
	for _, f := range c.Files {
		fmt.Fprintf(d.Hash(), "%s %o %s\n", f.Path, f.Mode.Perm(), f.Digest)
	}
	return d.Digest()
}

// WriteTar streams the context as a tar archive followed by extra files,
// which are written in name order. File contents are re-read from disk and
// must still match the collected digests.
func (c *BuildContext) WriteTar(w io.Writer, extra map[string][]byte) error {
	tw := tar.NewWriter(w)
	for _, f := range c.Files {
		if err := c.writeFile(tw, f); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data := extra[name]
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg, ModTime: time.Unix(0, 0)}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return tw.Close()
}

func (c *BuildContext) writeFile(tw *tar.Writer, f File) error {
	fh, err := os.Open(filepath.Join(c.Root, filepath.FromSlash(f.Path)))
	if err != nil {
		return err
	}
	defer fh.Close()

	hdr := &tar.Header{
		Name:     f.Path,
		Mode:     int64(f.Mode.Perm()),
		Size:     f.Size,
		Typeflag: tar.TypeReg,
		ModTime:  time.Unix(0, 0),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	verifier := f.Digest.Verifier()
	n, err := io.Copy(tw, io.TeeReader(io.LimitReader(fh, f.Size), verifier))
	if err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if n != f.Size || !verifier.Verified() {
		return fmt.Errorf("%s changed after the build context was collected", f.Path)
	}
	return nil
}

func isLockFile(p string) bool {
	return !strings.Contains(p, "/") && slices.Contains(LockFiles, p)
}

// reincludesLockFile reports whether a negated ignore pattern would bring a
// lock file back into the context.
func reincludesLockFile(pattern string) bool {
	pattern = strings.TrimPrefix(pattern, "/")
	for _, lock := range LockFiles {
		if ok, _ := path.Match(pattern, lock); ok {
			return true
		}
	}
	return false
}
