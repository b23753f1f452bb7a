// Package discovery finds database connection candidates in a project tree
// and resolves them into one active configuration. Scanning is a pure read:
// files are parsed syntactically, never executed or evaluated.
package discovery

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/sebcbi1/postgres-mcp/internal/config"
	"github.com/sebcbi1/postgres-mcp/pkg/dberrors"
)

// Format records how a candidate's file was parsed.
type Format string

const (
	FormatDotenv   Format = "dotenv"
	FormatINI      Format = "ini"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTOML     Format = "toml"
	FormatParamDir Format = "param-files"
)

// Confidence grades how directly a candidate was stated in its source.
const (
	// ConfidenceExplicit: a complete URI found by structural parsing.
	ConfidenceExplicit = 1.0
	// ConfidenceConstructed: a URI assembled from grouped host/user/... keys.
	ConfidenceConstructed = 0.8
	// ConfidenceRawScan: a URI matched by the raw fallback scan only.
	ConfidenceRawScan = 0.5
)

// Candidate is a parsed, not-yet-active connection configuration plus its
// provenance.
type Candidate struct {
	Config     config.ConnectionConfig
	Source     string
	Format     Format
	Confidence float64
}

// skipDirs are never descended into during a scan.
var skipDirs = map[string]bool{
	".git":         true,
	".venv":        true,
	"venv":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// maxScanFileSize bounds how much of any single file the scanner will read.
const maxScanFileSize = 1 << 20

// uriPattern matches PostgreSQL connection URIs embedded in arbitrary text.
var uriPattern = regexp.MustCompile("postgres(?:ql)?://[^\\s'\"`]+")

// paramMappings translates the naming conventions seen in config files to
// canonical connection parameters.
var paramMappings = map[string][]string{
	"host":     {"host", "hostname", "server"},
	"port":     {"port"},
	"user":     {"user", "username", "dbuser"},
	"password": {"pass", "password", "dbpass", "pwd"},
	"database": {"name", "dbname", "database", "db"},
}

// skipPrefixes are parameter groups that name non-relational services.
var skipPrefixes = map[string]bool{
	"cdn":       true,
	"memcached": true,
	"sphinx":    true,
	"elastic":   true,
	"ftp":       true,
	"mongo":     true,
}

// Scanner walks one project tree. It holds no state between scans.
type Scanner struct {
	root   string
	logger *zap.Logger
}

func NewScanner(root string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{root: root, logger: logger}
}

// ConfigFiles lists every file the scanner would parse, without parsing.
func (s *Scanner) ConfigFiles() ([]string, error) {
	var files []string
	err := s.walk(func(path string, format Format) {
		files = append(files, path)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Scan produces the finite candidate sequence for the tree. A file that
// fails to parse under its expected format is skipped, never fatal; only a
// walk failure on the root itself is an error.
func (s *Scanner) Scan() ([]Candidate, error) {
	var candidates []Candidate
	seen := make(map[string]bool) // source+normalized URI

	paramGroups := make(map[string]map[string]map[string]string) // dir → prefix → param → value

	add := func(source string, format Format, confidence float64, uri string) {
		cfg, err := config.ParseConnectionURI(uri)
		if err != nil {
			s.logger.Debug("discarding unparseable candidate URI",
				zap.String("source", source), zap.String("error", err.Error()))
			return
		}
		key := source + "\x00" + cfg.Normalized()
		if seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, Candidate{
			Config:     cfg,
			Source:     source,
			Format:     format,
			Confidence: confidence,
		})
	}

	err := s.walk(func(path string, format Format) {
		if format == FormatParamDir {
			s.collectParamFile(path, paramGroups)
			return
		}

		content, err := s.readFile(path)
		if err != nil {
			return
		}

		structural, constructed := s.parseFile(path, format, content)
		for _, uri := range structural {
			add(path, format, ConfidenceExplicit, uri)
		}
		for _, uri := range constructed {
			add(path, format, ConfidenceConstructed, uri)
		}

		// Raw fallback over the same file catches URIs the structural parse
		// missed (comments, unparsed sections, unusual keys).
		for _, uri := range uriPattern.FindAllString(string(content), -1) {
			add(path, format, ConfidenceRawScan, uri)
		}
	})
	if err != nil {
		return nil, err
	}

	// Parameter files group by directory and shared filename prefix.
	for dir, groups := range paramGroups {
		for prefix, params := range groups {
			if uri, ok := constructURI(params); ok {
				add(filepath.Join(dir, prefix+".*"), FormatParamDir, ConfidenceConstructed, uri)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Source != candidates[j].Source {
			return candidates[i].Source < candidates[j].Source
		}
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates, nil
}

func (s *Scanner) walk(visit func(path string, format Format)) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != s.root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if format, ok := detectFormat(d.Name()); ok {
			visit(path, format)
		}
		return nil
	})
}

func detectFormat(name string) (Format, bool) {
	if strings.HasPrefix(name, ".env") {
		return FormatDotenv, true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ini", ".cfg", ".conf":
		return FormatINI, true
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	}
	if _, _, ok := splitParamFilename(name); ok {
		return FormatParamDir, true
	}
	return "", false
}

// splitParamFilename recognizes per-key parameter files like "db.host":
// a prefix, a dot, and a known connection parameter name.
func splitParamFilename(name string) (prefix, param string, ok bool) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	prefix = name[:i]
	param = strings.ToLower(name[i+1:])
	if _, known := canonicalParam(param); !known {
		return "", "", false
	}
	return prefix, param, true
}

func canonicalParam(key string) (string, bool) {
	for std, variants := range paramMappings {
		for _, v := range variants {
			if key == v {
				return std, true
			}
		}
	}
	return "", false
}

func (s *Scanner) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxScanFileSize {
		return nil, os.ErrInvalid
	}
	return os.ReadFile(path)
}

// parseFile extracts URIs structurally. It returns complete URIs found in
// values and URIs constructed from grouped key=value parameters.
func (s *Scanner) parseFile(path string, format Format, content []byte) (structural, constructed []string) {
	switch format {
	case FormatDotenv:
		return s.parseDotenv(path, content)
	case FormatINI:
		return s.parseINI(path, content)
	case FormatJSON:
		var doc any
		if err := json.Unmarshal(content, &doc); err != nil {
			s.logParseError(path, format, err)
			return nil, nil
		}
		return urisInValue(doc), nil
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(content, &doc); err != nil {
			s.logParseError(path, format, err)
			return nil, nil
		}
		return urisInValue(doc), nil
	case FormatTOML:
		var doc any
		if err := toml.Unmarshal(content, &doc); err != nil {
			s.logParseError(path, format, err)
			return nil, nil
		}
		return urisInValue(doc), nil
	}
	return nil, nil
}

func (s *Scanner) parseDotenv(path string, content []byte) (structural, constructed []string) {
	env, err := godotenv.Unmarshal(string(content))
	if err != nil {
		s.logParseError(path, FormatDotenv, err)
		return nil, nil
	}
	kv := make(map[string]string, len(env))
	for k, v := range env {
		structural = append(structural, uriPattern.FindAllString(v, -1)...)
		kv[k] = v
	}
	return structural, constructParamURIs(kv)
}

func (s *Scanner) parseINI(path string, content []byte) (structural, constructed []string) {
	file, err := ini.Load(content)
	if err != nil {
		s.logParseError(path, FormatINI, err)
		return nil, nil
	}
	kv := make(map[string]string)
	for _, section := range file.Sections() {
		for _, key := range section.Keys() {
			structural = append(structural, uriPattern.FindAllString(key.Value(), -1)...)
			kv[key.Name()] = key.Value()
		}
	}
	return structural, constructParamURIs(kv)
}

func (s *Scanner) collectParamFile(path string, groups map[string]map[string]map[string]string) {
	prefix, suffix, ok := splitParamFilename(filepath.Base(path))
	if !ok || skipPrefixes[strings.ToLower(prefix)] {
		return
	}
	std, _ := canonicalParam(suffix)

	content, err := s.readFile(path)
	if err != nil {
		return
	}
	value := strings.TrimSpace(string(content))
	if value == "" {
		return
	}

	dir := filepath.Dir(path)
	if groups[dir] == nil {
		groups[dir] = make(map[string]map[string]string)
	}
	if groups[dir][prefix] == nil {
		groups[dir][prefix] = make(map[string]string)
	}
	groups[dir][prefix][std] = value
}

func (s *Scanner) logParseError(path string, format Format, err error) {
	perr := &dberrors.DiscoveryParseError{Path: path, Format: string(format), Reason: err.Error()}
	s.logger.Debug("config file skipped", zap.String("error", perr.Error()))
}

// urisInValue walks a decoded JSON/YAML/TOML document looking for URI-shaped
// strings anywhere in the structure.
func urisInValue(v any) []string {
	var uris []string
	switch val := v.(type) {
	case string:
		uris = append(uris, uriPattern.FindAllString(val, -1)...)
	case map[string]any:
		for _, item := range val {
			uris = append(uris, urisInValue(item)...)
		}
	case map[any]any:
		for _, item := range val {
			uris = append(uris, urisInValue(item)...)
		}
	case []any:
		for _, item := range val {
			uris = append(uris, urisInValue(item)...)
		}
	}
	return uris
}

// constructParamURIs groups flat key=value pairs by prefix ("db.host",
// "DB_HOST") and builds a URI per group that has at least host and database.
func constructParamURIs(kv map[string]string) []string {
	groups := make(map[string]map[string]string)
	for key, value := range kv {
		if value == "" || strings.HasPrefix(value, "#") {
			continue
		}
		prefix, param := splitParamKey(key)
		if skipPrefixes[prefix] {
			continue
		}
		std, ok := canonicalParam(param)
		if !ok {
			continue
		}
		if groups[prefix] == nil {
			groups[prefix] = make(map[string]string)
		}
		groups[prefix][std] = value
	}

	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var uris []string
	for _, p := range prefixes {
		if uri, ok := constructURI(groups[p]); ok {
			uris = append(uris, uri)
		}
	}
	return uris
}

func splitParamKey(key string) (prefix, param string) {
	lower := strings.ToLower(key)
	if i := strings.IndexByte(lower, '.'); i > 0 {
		return lower[:i], lower[i+1:]
	}
	if i := strings.IndexByte(lower, '_'); i > 0 {
		return lower[:i], lower[i+1:]
	}
	return "default", lower
}

// constructURI assembles a PostgreSQL URI from grouped parameters. Host and
// database are required; port defaults to 5432.
func constructURI(params map[string]string) (string, bool) {
	host, okHost := params["host"]
	database, okDB := params["database"]
	if !okHost || !okDB {
		return "", false
	}
	port := params["port"]
	if port == "" {
		port = "5432"
	}
	user := params["user"]
	password := params["password"]

	var b strings.Builder
	b.WriteString("postgresql://")
	switch {
	case user != "" && password != "":
		b.WriteString(user)
		b.WriteByte(':')
		b.WriteString(password)
		b.WriteByte('@')
	case user != "":
		b.WriteString(user)
		b.WriteByte('@')
	}
	b.WriteString(host)
	b.WriteByte(':')
	b.WriteString(port)
	b.WriteByte('/')
	b.WriteString(database)
	return b.String(), true
}
