package sandboxrt

import (
	"os"
	"path/filepath"
	"strings"
)

// packageCacheMount describes a host<->container read-write bind mount
// used to persist a language's package download cache across jobs
// (pip/npm/cargo/m2, Go modules). For go the GOCACHE build cache is
// mounted as well, so compiled Go build artifacts also persist across
// jobs while the cache is enabled.
type packageCacheMount struct {
	hostPath      string
	containerPath string
	env           map[string]string
}

// packageCacheManager is opt-in (off by default): enabling it widens
// the sandbox's filesystem surface by giving every job of a given
// language read-write access to the same cache directory.
type packageCacheManager struct {
	enabled bool
	baseDir string
}

func newPackageCacheManager(baseDir string, enabled bool) *packageCacheManager {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "rce-pkg-cache")
	}
	m := &packageCacheManager{enabled: enabled, baseDir: baseDir}
	if m.enabled {
		_ = os.MkdirAll(m.baseDir, 0o755)
	}
	return m
}

func (m *packageCacheManager) mountsForLanguage(language string) []packageCacheMount {
	if m == nil || !m.enabled {
		return nil
	}
	switch strings.ToLower(language) {
	case "javascript":
		return []packageCacheMount{m.mount("npm", "/cache/npm", map[string]string{"NPM_CONFIG_CACHE": "/cache/npm"})}
	case "python":
		return []packageCacheMount{m.mount("pip", "/cache/pip", map[string]string{"PIP_CACHE_DIR": "/cache/pip"})}
	case "go":
		return []packageCacheMount{
			m.mount("go-build", "/cache/go-build", map[string]string{"GOCACHE": "/cache/go-build"}),
			m.mount("go-mod", "/cache/go-mod", map[string]string{"GOMODCACHE": "/cache/go-mod"}),
		}
	case "rust":
		return []packageCacheMount{m.mount("cargo-home", "/cache/cargo-home", map[string]string{"CARGO_HOME": "/cache/cargo-home"})}
	case "java":
		return []packageCacheMount{m.mount("m2", "/cache/m2", map[string]string{"MAVEN_CONFIG": "/cache/m2"})}
	default:
		return nil
	}
}

func (m *packageCacheManager) mount(name, containerPath string, env map[string]string) packageCacheMount {
	hostPath := filepath.Join(m.baseDir, sanitizeCacheName(name))
	_ = os.MkdirAll(hostPath, 0o755)
	return packageCacheMount{hostPath: hostPath, containerPath: containerPath, env: env}
}

func sanitizeCacheName(in string) string {
	in = strings.ToLower(strings.TrimSpace(in))
	if in == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
