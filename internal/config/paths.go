package config

import "path/filepath"

// Working tree control directory layout.
const (
	ControlDir    = ".hoard"
	ConfigFile    = "config"
	IgnoreFile    = "ignore"
	VersionsDir   = "versions"
	CacheDir      = "cache"
	TreeCacheFile = "tree"
)

// ControlPath returns root/.hoard.
func ControlPath(root string) string {
	return filepath.Join(root, ControlDir)
}

// ConfigPath returns root/.hoard/config.
func ConfigPath(root string) string {
	return filepath.Join(root, ControlDir, ConfigFile)
}

// IgnorePath returns root/.hoard/ignore.
func IgnorePath(root string) string {
	return filepath.Join(root, ControlDir, IgnoreFile)
}

// VersionsPath returns root/.hoard/versions.
func VersionsPath(root string) string {
	return filepath.Join(root, ControlDir, VersionsDir)
}

// VersionPath returns root/.hoard/versions/<id>.
func VersionPath(root, id string) string {
	return filepath.Join(root, ControlDir, VersionsDir, id)
}

// TreeCachePath returns root/.hoard/cache/tree.
func TreeCachePath(root string) string {
	return filepath.Join(root, ControlDir, CacheDir, TreeCacheFile)
}
