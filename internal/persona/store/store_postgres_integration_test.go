//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"reniec/internal/persona/store"
	"reniec/internal/platform/config"
	"reniec/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	cfg   config.StoreConfig
	store *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	pg := containers.NewPostgresContainer(s.T())
	s.cfg = config.StoreConfig{
		Backend:     config.BackendPostgres,
		PostgresDSN: pg.DSN,
		PoolSize:    4,
	}

	st, err := store.OpenPostgres(context.Background(), s.cfg)
	s.Require().NoError(err)
	s.store = st
	s.Require().NoError(st.InitializeSchema(context.Background()))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *PostgresStoreSuite) TestSeededLookup() {
	p, err := s.store.FindByDNI(context.Background(), "45678912")
	s.Require().NoError(err)
	s.Equal("45678912", p.DNI)
	s.Equal("CASTRO", p.PaternalSurname)
	s.Equal("VILLANUEVA", p.MaternalSurname)
	s.Equal("MILAGROS ESTHER", p.GivenNames)
	s.Equal("1997-08-19", p.BirthDate, "DATE columns must come back in ISO form")
	s.Equal("F", p.Sex, "CHAR(1) padding must be stripped")
	s.Equal("Av. Brasil 1550", p.Address)
	s.Empty(p.CivilStatus)
	s.Empty(p.Birthplace)
}

func (s *PostgresStoreSuite) TestLeadingZeroIdentifier() {
	p, err := s.store.FindByDNI(context.Background(), "01234568")
	s.Require().NoError(err)
	s.Equal("01234568", p.DNI)
}

func (s *PostgresStoreSuite) TestMissIsErrNotFound() {
	_, err := s.store.FindByDNI(context.Background(), "99999999")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestBootstrapIdempotent() {
	ctx := context.Background()

	// A second store against the same database must see the table and
	// leave the seed untouched.
	other, err := store.OpenPostgres(ctx, s.cfg)
	s.Require().NoError(err)
	defer other.Close()
	s.Require().NoError(other.InitializeSchema(ctx))

	pool, err := pgxpool.New(ctx, s.cfg.PostgresDSN)
	s.Require().NoError(err)
	defer pool.Close()

	var n int
	s.Require().NoError(pool.QueryRow(ctx, `SELECT COUNT(*) FROM personas`).Scan(&n))
	s.Equal(13, n)
}

func (s *PostgresStoreSuite) TestConcurrentLookups() {
	ctx := context.Background()
	dnis := []string{"12345678", "23456789", "34567890", "45678901", "56789012"}
	const goroutines = 50

	var wg sync.WaitGroup
	var failures atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(dni string) {
			defer wg.Done()
			p, err := s.store.FindByDNI(ctx, dni)
			if err != nil || p.DNI != dni {
				failures.Add(1)
			}
		}(dnis[i%len(dnis)])
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load(), "every concurrent lookup should return its own record")
}
