package store

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

//go:embed sql
var scriptFS embed.FS

// bootstrap carries the ordered statement lists for one backend family,
// parsed once at open time. Statements execute in file order: schema first,
// then seed.
type bootstrap struct {
	Schema []string
	Seed   []string
}

// loadBootstrap reads and splits the schema and seed scripts for the named
// backend family ("sqlite" or "postgres"). A missing or empty schema script
// is a packaging error and fails the open.
func loadBootstrap(backend string) (bootstrap, error) {
	var b bootstrap
	var err error
	if b.Schema, err = loadScript(backend, "schema.sql"); err != nil {
		return b, err
	}
	if len(b.Schema) == 0 {
		return b, fmt.Errorf("bootstrap script sql/%s/schema.sql contains no statements", backend)
	}
	if b.Seed, err = loadScript(backend, "seed.sql"); err != nil {
		return b, err
	}
	return b, nil
}

func loadScript(backend, name string) ([]string, error) {
	raw, err := scriptFS.ReadFile(path.Join("sql", backend, name))
	if err != nil {
		return nil, fmt.Errorf("read bootstrap script %s/%s: %w", backend, name, err)
	}
	return SplitStatements(string(raw)), nil
}

// SplitStatements cuts a SQL script into discrete statements on semicolon
// boundaries. Quoted literals are atomic, so seed values may contain
// semicolons; a doubled quote inside a literal is the usual SQL escape and
// falls out of the toggle naturally. Lines whose first non-blank characters
// are "--" are comments and are dropped before scanning. Empty statements
// (trailing semicolons, blank runs) are discarded.
func SplitStatements(raw string) []string {
	var src strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		src.WriteString(line)
		src.WriteByte('\n')
	}

	var (
		out     []string
		current strings.Builder
		quote   rune // active quote character, or 0
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	for _, r := range src.String() {
		switch {
		case quote != 0:
			current.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			current.WriteRune(r)
		case r == ';':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out
}
