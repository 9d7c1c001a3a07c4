// Package config loads the INI configuration carried in the working
// tree's control directory and resolves archives and repositories
// from it.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"gopkg.in/ini.v1"
)

// Repository types.
const (
	RepoTypeFile   = "file"
	RepoTypeMemory = "memory"
)

// Options is the explicit option set threaded through the task layer.
type Options struct {
	// Repository selects a [repository.<name>] section; empty uses
	// the first one defined.
	Repository string
	// Concurrency bounds parallel block encodes.
	Concurrency int
	// Timeout bounds a single encoder/decoder run. Zero means the
	// pipe default.
	Timeout time.Duration
	// Quiet suppresses the progress spinner.
	Quiet bool
}

// DefaultOptions returns the stock option set.
func DefaultOptions() Options {
	return Options{Concurrency: 1}
}

// RepositoryConfig is one [repository.<name>] section merged over
// [defaults].
type RepositoryConfig struct {
	Name             string
	Type             string
	Root             string
	EncodeCommand    []string
	DecodeCommand    []string
	TrimKeepVersions int
	TrimKeepDays     int
}

// File is a parsed configuration file.
type File struct {
	// Archive settings from the [archive] section.
	ArchiveName      string
	ArchiveCreatedAt time.Time

	Repositories []RepositoryConfig
}

const repoSectionPrefix = "repository."

// Parse reads INI data; comments start with "#". Values are read as
// strings and the trim options are parsed here as decimal integers;
// true/false values are not converted to booleans.
func Parse(data []byte) (*File, error) {
	raw, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	f := &File{}

	if sec, err := raw.GetSection("archive"); err == nil {
		f.ArchiveName = sec.Key("name").String()
		if s := sec.Key("created-at").String(); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("parse config: bad created-at %q: %w", s, err)
			}
			f.ArchiveCreatedAt = t.UTC()
		}
	}

	defaults := raw.Section("defaults")

	for _, sec := range raw.Sections() {
		if !strings.HasPrefix(sec.Name(), repoSectionPrefix) {
			continue
		}
		rc, err := parseRepository(sec, defaults)
		if err != nil {
			return nil, err
		}
		f.Repositories = append(f.Repositories, rc)
	}

	return f, nil
}

func parseRepository(sec, defaults *ini.Section) (RepositoryConfig, error) {
	rc := RepositoryConfig{
		Name: strings.TrimPrefix(sec.Name(), repoSectionPrefix),
		Type: lookup(sec, defaults, "type"),
		Root: lookup(sec, defaults, "root"),
	}
	if rc.Type == "" {
		rc.Type = RepoTypeFile
	}
	if rc.Type != RepoTypeFile && rc.Type != RepoTypeMemory {
		return rc, fmt.Errorf("parse config: repository %q has unknown type %q", rc.Name, rc.Type)
	}
	if rc.Type == RepoTypeFile && rc.Root == "" {
		return rc, fmt.Errorf("parse config: repository %q has no root", rc.Name)
	}

	var err error
	if rc.EncodeCommand, err = command(sec, defaults, "encode-command"); err != nil {
		return rc, fmt.Errorf("parse config: repository %q: %w", rc.Name, err)
	}
	if rc.DecodeCommand, err = command(sec, defaults, "decode-command"); err != nil {
		return rc, fmt.Errorf("parse config: repository %q: %w", rc.Name, err)
	}

	if s := lookup(sec, defaults, "trim.keep-versions"); s != "" {
		if rc.TrimKeepVersions, err = parseInt(s); err != nil {
			return rc, fmt.Errorf("parse config: repository %q: trim.keep-versions: %w", rc.Name, err)
		}
	}
	if s := lookup(sec, defaults, "trim.keep-days"); s != "" {
		if rc.TrimKeepDays, err = parseInt(s); err != nil {
			return rc, fmt.Errorf("parse config: repository %q: trim.keep-days: %w", rc.Name, err)
		}
	}

	return rc, nil
}

func lookup(sec, defaults *ini.Section, key string) string {
	if sec.HasKey(key) {
		return sec.Key(key).String()
	}
	return defaults.Key(key).String()
}

// command splits a shell-style command string into an argv vector.
func command(sec, defaults *ini.Section, key string) ([]string, error) {
	s := lookup(sec, defaults, key)
	if s == "" {
		return nil, nil
	}
	argv, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return argv, nil
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return n, nil
}

// Repository resolves the named repository, or the first one when
// name is empty.
func (f *File) Repository(name string) (*RepositoryConfig, error) {
	if len(f.Repositories) == 0 {
		return nil, fmt.Errorf("no repositories configured")
	}
	if name == "" {
		return &f.Repositories[0], nil
	}
	for i := range f.Repositories {
		if f.Repositories[i].Name == name {
			return &f.Repositories[i], nil
		}
	}
	return nil, fmt.Errorf("repository %q not configured", name)
}
