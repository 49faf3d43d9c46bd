package transfer

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrGroupNotReady = errors.New("folder group not ready")

// FolderGroup is the set of incoming transfers sharing the first segment of
// their relative path. Groups are derived on demand, never stored.
type FolderGroup struct {
	Name      string
	Transfers []IncomingSnapshot
}

// GroupName returns the folder a relative path belongs to: its first
// "/"-separated segment. Empty for transfers without a relative path, which
// never join a group.
func GroupName(relativePath string) string {
	name, _, _ := strings.Cut(relativePath, "/")
	return name
}

// Groups regroups the current incoming set by folder, ordered by first
// appearance.
func (in *Inbox) Groups() []FolderGroup {
	in.mu.Lock()
	defer in.mu.Unlock()
	var names []string
	byName := make(map[string]*FolderGroup)
	for _, id := range in.order {
		t := in.byID[id]
		name := GroupName(t.meta.RelativePath)
		if name == "" {
			continue
		}
		g, ok := byName[name]
		if !ok {
			names = append(names, name)
			g = &FolderGroup{Name: name}
			byName[name] = g
		}
		g.Transfers = append(g.Transfers, t.snapshot())
	}
	out := make([]FolderGroup, 0, len(names))
	for _, n := range names {
		out = append(out, *byName[n])
	}
	return out
}

// GroupReady reports whether every member of the named folder is complete
// with its payload materialized. Unknown or empty groups are never ready.
func (in *Inbox) GroupReady(name string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.groupReadyLocked(name)
}

func (in *Inbox) groupReadyLocked(name string) bool {
	if name == "" {
		return false
	}
	found := false
	for _, id := range in.order {
		t := in.byID[id]
		if GroupName(t.meta.RelativePath) != name {
			continue
		}
		found = true
		if t.status != StatusComplete || t.payload == nil {
			return false
		}
	}
	return found
}

type groupFile struct {
	rel  string
	data []byte
}

func (in *Inbox) groupFiles(name string) ([]groupFile, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.groupReadyLocked(name) {
		return nil, ErrGroupNotReady
	}
	var files []groupFile
	for _, id := range in.order {
		t := in.byID[id]
		if GroupName(t.meta.RelativePath) != name {
			continue
		}
		files = append(files, groupFile{rel: t.meta.RelativePath, data: t.payload})
	}
	return files, nil
}

// SaveGroup writes every member of the named folder under destDir,
// recreating the relative directory structure. It refuses unless the whole
// group is complete, and a member whose path would escape destDir fails the
// operation before anything touches the disk.
func (in *Inbox) SaveGroup(name, destDir string) error {
	files, err := in.groupFiles(name)
	if err != nil {
		return err
	}
	base := filepath.Clean(destDir)
	sep := string(os.PathSeparator)
	targets := make([]string, len(files))
	for i, f := range files {
		target := filepath.Join(base, filepath.FromSlash(f.rel))
		rel, err := filepath.Rel(base, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+sep) {
			return fmt.Errorf("unsafe relative path %q", f.rel)
		}
		targets[i] = target
	}
	for i, f := range files {
		if err := os.MkdirAll(filepath.Dir(targets[i]), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(targets[i]), err)
		}
		if err := os.WriteFile(targets[i], f.data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", targets[i], err)
		}
	}
	return nil
}

// ArchiveGroup writes the named folder as a single zip archive, each member
// stored at its relative path. Like SaveGroup it requires the whole group
// to be complete.
func (in *Inbox) ArchiveGroup(name string, w io.Writer) error {
	files, err := in.groupFiles(name)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.Create(f.rel)
		if err != nil {
			return fmt.Errorf("archive %s: %w", f.rel, err)
		}
		if _, err := fw.Write(f.data); err != nil {
			return fmt.Errorf("archive %s: %w", f.rel, err)
		}
	}
	return zw.Close()
}
