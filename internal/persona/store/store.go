// Package store persists civil-registry records. Two backends are supported,
// selected once at startup: an embedded SQLite file and networked PostgreSQL.
// Both provision their own schema and seed data on first run.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reniec/internal/persona"
	"reniec/internal/platform/config"
)

// ErrNotFound is the zero-row outcome of a lookup. It is a first-class result,
// not a backend failure.
var ErrNotFound = errors.New("persona record not found")

// Store is the capability set every backend family implements. Reads are the
// only post-bootstrap operation; the interface stays deliberately narrow.
type Store interface {
	// InitializeSchema provisions the personas table and seed rows if the
	// table does not exist yet. It runs schema + seed inside one transaction
	// and is safe to call on every startup.
	InitializeSchema(ctx context.Context) error

	// FindByDNI returns the record for the given identifier, or ErrNotFound.
	// Every path leaves the pooled connection in a clean, reusable state.
	FindByDNI(ctx context.Context, dni string) (*persona.Person, error)

	Ping(ctx context.Context) error
	Close()
}

// New opens the backend named by the configuration enum. Anything that goes
// wrong here (unreachable backend, bad path, malformed bootstrap script) is
// fatal to the caller: the process must not serve with a broken store.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// personFromRow maps one result row onto a Person by column name. Lookups
// select *, so schema variants that lack the optional columns
// (estado_civil, lugar_nacimiento) simply never set those fields.
func personFromRow(columns []string, values []any) *persona.Person {
	p := &persona.Person{}
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		v := columnString(values[i])
		switch strings.ToLower(col) {
		case "dni":
			p.DNI = v
		case "apell_pat":
			p.PaternalSurname = v
		case "apell_mat":
			p.MaternalSurname = v
		case "nombres":
			p.GivenNames = v
		case "fecha_naci":
			p.BirthDate = v
		case "sexo":
			p.Sex = v
		case "estado_civil":
			p.CivilStatus = v
		case "lugar_nacimiento":
			p.Birthplace = v
		case "direccion":
			p.Address = v
		}
	}
	return p
}

// columnString normalises driver-specific column values. NULL becomes "",
// dates become their ISO form; sqlite hands back strings, postgres hands
// back time.Time for DATE columns.
func columnString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimRight(t, " ")
	case []byte:
		return strings.TrimRight(string(t), " ")
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprint(t)
	}
}
