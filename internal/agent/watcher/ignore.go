package watcher

import (
	"path/filepath"
	"strings"
)

// defaultIgnores are matched against each path segment of the
// project-relative path. Dotfiles are skipped unconditionally.
var defaultIgnores = []string{
	"node_modules",
	"vendor",
	"dist",
	"build",
	"out",
	"target",
	"coverage",
	"__pycache__",
	"venv",
	"*.log",
	"*.tmp",
	"*.swp",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"Cargo.lock",
	"composer.lock",
	"Gemfile.lock",
	"poetry.lock",
}

// ignored reports whether a project-relative path should be skipped.
func ignored(rel string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if segment == "" || segment == "." {
			continue
		}
		if strings.HasPrefix(segment, ".") {
			return true
		}
		for _, pattern := range defaultIgnores {
			if match, _ := filepath.Match(pattern, segment); match {
				return true
			}
		}
	}
	return false
}

// binaryExts is the extension set treated as binary content: only
// sizes are reported, never line diffs.
var binaryExts = map[string]struct{}{
	// images
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {}, ".webp": {}, ".tiff": {},
	// audio/video
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {},
	// archives
	".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {},
	// documents
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	// fonts
	".ttf": {}, ".otf": {}, ".woff": {}, ".woff2": {}, ".eot": {},
	// executables and build artifacts
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".bin": {}, ".o": {}, ".a": {}, ".class": {}, ".pyc": {}, ".wasm": {},
	// databases
	".sqlite": {}, ".sqlite3": {}, ".db": {},
}

func isBinary(path string) bool {
	_, ok := binaryExts[strings.ToLower(filepath.Ext(path))]
	return ok
}
