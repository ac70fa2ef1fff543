package factory_test

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/readingbuddy/dbal/internal/config"
	"github.com/readingbuddy/dbal/internal/pool"
	"github.com/readingbuddy/dbal/query/builder"
	"github.com/readingbuddy/dbal/query/domain"
	"github.com/readingbuddy/dbal/runtime/client"
	"github.com/readingbuddy/dbal/runtime/factory"
)

// PostgresSuite runs the builder against a live server. It is skipped
// unless TEST_PG_HOST is set.
type PostgresSuite struct {
	suite.Suite
	driver   string
	selector *factory.Selector
	db       client.DatabaseClient
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgresSuite(t *testing.T) {
	if os.Getenv("TEST_PG_HOST") == "" {
		t.Skip("TEST_PG_HOST not set")
	}
	for _, driver := range []string{pool.DriverPQ, pool.DriverPGX} {
		t.Run(driver, func(t *testing.T) {
			suite.Run(t, &PostgresSuite{driver: driver})
		})
	}
}

func (s *PostgresSuite) SetupSuite() {
	port, err := strconv.Atoi(getEnv("TEST_PG_PORT", "5432"))
	s.Require().NoError(err)

	cfg := &config.Config{
		Provider: config.ProviderPostgres,
		Postgres: config.PostgresConfig{
			Host:     os.Getenv("TEST_PG_HOST"),
			Port:     port,
			Database: getEnv("TEST_PG_DATABASE", "reading_buddy_test"),
			User:     getEnv("TEST_PG_USER", "postgres"),
			Password: getEnv("TEST_PG_PASSWORD", "password"),
			Driver:   s.driver,
		},
		Pool:      config.PoolConfig{MaxConns: 5, IdleTimeout: 30 * time.Second, ConnectTimeout: 2 * time.Second},
		Telemetry: "memory",
	}

	s.selector, err = factory.New(cfg)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = s.selector.Pool().CheckServerVersion(ctx)
	s.Require().NoError(err)

	s.db, err = s.selector.Server("")
	s.Require().NoError(err)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.selector != nil {
		s.Require().NoError(s.selector.Close())
	}
}

func (s *PostgresSuite) SetupTest() {
	ctx := context.Background()
	db := s.selector.Pool().DB()
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS dbal_books`)
	s.Require().NoError(err)
	_, err = db.ExecContext(ctx, `
		CREATE TABLE dbal_books (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			rating BIGINT,
			finished BOOLEAN NOT NULL DEFAULT false,
			metadata JSONB NOT NULL DEFAULT '{}',
			CONSTRAINT dbal_books_user_title UNIQUE (user_id, title)
		)`)
	s.Require().NoError(err)
	_, err = db.ExecContext(ctx, `
		CREATE OR REPLACE FUNCTION dbal_count_books(p_user_id TEXT) RETURNS BIGINT
		LANGUAGE sql AS $$ SELECT count(*) FROM dbal_books WHERE user_id = p_user_id $$`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) seed() {
	res := s.db.From("dbal_books").Insert(
		domain.NewRow("user_id", "u-1", "title", "Dune", "rating", 5, "metadata", map[string]any{"genre": "sci-fi"}),
		domain.NewRow("user_id", "u-1", "title", "Emma", "rating", nil, "metadata", map[string]any{"genre": "classic"}),
		domain.NewRow("user_id", "u-2", "title", "Ubik", "rating", 4, "metadata", map[string]any{"genre": "sci-fi"}),
	).Execute(context.Background())
	s.Require().NoError(res.Err())
	s.Require().Len(res.Rows, 3)
}

func (s *PostgresSuite) TestSelectFiltersAndOrder() {
	s.seed()
	ctx := context.Background()

	res := s.db.From("dbal_books").
		Select("title, rating").
		Eq("user_id", "u-1").
		Order("rating", builder.Desc(), builder.NullsLast()).
		Execute(ctx)
	s.Require().NoError(res.Err())
	s.Require().Len(res.Rows, 2)
	s.Equal("Dune", res.Rows[0]["title"])
	s.Nil(res.Rows[1]["rating"])
	s.Equal(2, *res.Count)

	res = s.db.From("dbal_books").Is("rating", nil).Execute(ctx)
	s.Require().NoError(res.Err())
	s.Require().Len(res.Rows, 1)
	s.Equal("Emma", res.Rows[0]["title"])

	res = s.db.From("dbal_books").Contains("metadata", map[string]any{"genre": "sci-fi"}).Order("title").Execute(ctx)
	s.Require().NoError(res.Err())
	s.Require().Len(res.Rows, 2)
	s.Equal(map[string]any{"genre": "sci-fi"}, res.Rows[0]["metadata"])

	res = s.db.From("dbal_books").In("title", "Dune", "Ubik").ILike("title", "%U%").Execute(ctx)
	s.Require().NoError(res.Err())
	s.Len(res.Rows, 2)

	res = s.db.From("dbal_books").Order("title").Range(1, 2).Execute(ctx)
	s.Require().NoError(res.Err())
	s.Require().Len(res.Rows, 2)
	s.Equal("Emma", res.Rows[0]["title"])
}

func (s *PostgresSuite) TestSingleModes() {
	s.seed()
	ctx := context.Background()

	res := s.db.From("dbal_books").Eq("title", "Dune").Single().Execute(ctx)
	s.Require().NoError(res.Err())
	s.Equal("u-1", res.Row["user_id"])

	res = s.db.From("dbal_books").Eq("title", "Missing").Single().Execute(ctx)
	s.True(domain.IsNoRows(res.Err()))
	s.Equal("PGRST116", res.Error.Code)

	res = s.db.From("dbal_books").Eq("title", "Missing").MaybeSingle().Execute(ctx)
	s.Require().NoError(res.Err())
	s.Nil(res.Data())
}

func (s *PostgresSuite) TestMutations() {
	s.seed()
	ctx := context.Background()

	res := s.db.From("dbal_books").
		Update(domain.NewRow("finished", true, "rating", 3)).
		Eq("title", "Emma").
		Execute(ctx)
	s.Require().NoError(res.Err())
	s.Require().Len(res.Rows, 1)
	s.Equal(true, res.Rows[0]["finished"])

	res = s.db.From("dbal_books").
		Upsert(domain.OnConflict("user_id", "title"), domain.NewRow("user_id", "u-1", "title", "Dune", "rating", 1)).
		Execute(ctx)
	s.Require().NoError(res.Err())
	s.Equal(int64(1), res.Rows[0]["rating"])

	res = s.db.From("dbal_books").
		Upsert(domain.OnConstraint("dbal_books_user_title"), domain.NewRow("user_id", "u-3", "title", "Solaris")).
		Execute(ctx)
	s.Require().NoError(res.Err())
	s.Equal("Solaris", res.Rows[0]["title"])

	res = s.db.From("dbal_books").Delete().Eq("user_id", "u-2").Execute(ctx)
	s.Require().NoError(res.Err())
	s.Len(res.Rows, 1)

	res = s.db.From("dbal_books").Execute(ctx)
	s.Require().NoError(res.Err())
	s.Len(res.Rows, 3)
}

func (s *PostgresSuite) TestErrors() {
	s.seed()
	ctx := context.Background()

	res := s.db.From("dbal_books").Insert(domain.NewRow("user_id", "u-1", "title", "Dune")).Execute(ctx)
	s.Require().Error(res.Err())
	s.Equal(domain.DriverError, res.Error.Kind)
	s.Equal("23505", res.Error.Code)
	s.NotEmpty(res.Error.Details)

	res = s.db.From("dbal_missing").Execute(ctx)
	s.Require().Error(res.Err())
	s.Equal("42P01", res.Error.Code)

	res = s.db.From("dbal_books").Eq("title; drop", "x").Execute(ctx)
	s.True(domain.IsCompile(res.Err()))
}

func (s *PostgresSuite) TestRPC() {
	s.seed()
	res := s.db.RPC(context.Background(), "dbal_count_books", domain.NewRow("p_user_id", "u-1"))
	s.Require().NoError(res.Err())
	s.Require().Len(res.Rows, 1)
	s.Equal(int64(2), res.Rows[0]["dbal_count_books"])
}

func (s *PostgresSuite) TestConcurrentQueries() {
	s.seed()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.db.From("dbal_books").Limit(1).Execute(context.Background()).Err()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(s.T(), err)
	}
	s.LessOrEqual(s.selector.Pool().Stats().OpenConnections, 5)
}
