package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	myhttp "github.com/shortlyhq/shortly/internal/api/http"
	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/internal/cache"
	"github.com/shortlyhq/shortly/internal/config"
	"github.com/shortlyhq/shortly/internal/database/postgres"
	"github.com/shortlyhq/shortly/internal/metrics"
	"github.com/shortlyhq/shortly/internal/queue"
	"github.com/shortlyhq/shortly/internal/service"
	"github.com/shortlyhq/shortly/internal/worker"
	"github.com/shortlyhq/shortly/tests"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const testBaseURL = "http://sho.rt"

// mapCache is an in-process stand-in for the Redis cache; the Redis adapter
// is a thin client wrapper, the protocol under test here is cache-aside.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]cache.Entry)}
}

func (c *mapCache) Get(_ context.Context, shortCode string) (*cache.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[shortCode]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &entry, nil
}

func (c *mapCache) Set(_ context.Context, shortCode string, entry *cache.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[shortCode] = *entry
	return nil
}

type APITestSuite struct {
	suite.Suite
	pgCont   testcontainers.Container
	cfg      config.Postgres
	db       *sqlx.DB
	urlRepo  *postgres.URLRepository
	urlCache *mapCache
	tasks    *queue.MemoryQueue
	logger   *httplog.Logger
	server   *httptest.Server
	e        *httpexpect.Expect
	stop     context.CancelFunc
	workerWG sync.WaitGroup
}

func (suite *APITestSuite) SetupSuite() {
	ctx := context.Background()

	pgUser := "test"
	pgPassword := "test"
	pgDB := "shortly"

	var err error
	suite.pgCont, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDB,
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp"),
		},
		Started: true,
	})
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := suite.pgCont.Terminate(ctx); err != nil {
			suite.T().Fatalf("Failed to terminate postgres container: %v", err)
		}
	})

	pgHost, err := suite.pgCont.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get postgres container host: %v", err)
	}

	pgPort, err := suite.pgCont.MappedPort(ctx, "5432")
	if err != nil {
		suite.T().Fatalf("Failed to get postgres container port: %v", err)
	}

	suite.cfg = config.Postgres{
		User:     pgUser,
		Password: pgPassword,
		Host:     pgHost,
		Port:     pgPort.Int(),
		DB:       pgDB,
		SSLMode:  "disable",
	}

	suite.db, err = sqlx.Connect("pgx", suite.cfg.DSN())
	if err != nil {
		suite.T().Fatalf("Failed to connect to database: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := suite.db.Close(); err != nil {
			suite.T().Fatalf("Failed to close database: %v", err)
		}
	})

	root, err := tests.FindProjectRoot()
	if err != nil {
		suite.T().Fatalf("Failed to get project root: %v", err)
	}

	migrationsPath := "file://" + filepath.Join(root, "migrations")

	m, err := migrate.New(migrationsPath, suite.cfg.DSN())
	if err != nil {
		suite.T().Fatalf("Failed to initialize migrations: %v", err)
	}

	if err := m.Up(); err != nil {
		suite.T().Fatalf("Failed to run migrations: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := m.Down(); err != nil {
			suite.T().Fatalf("Failed to rollback migrations: %v", err)
		}
	})

	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
}

func (suite *APITestSuite) SetupTest() {
	suite.urlRepo = postgres.NewURLRepository(suite.db)
	suite.urlCache = newMapCache()
	suite.tasks = queue.NewMemoryQueue(64)

	urlSvc := service.NewURLService(
		suite.urlRepo,
		suite.urlCache,
		suite.tasks,
		metrics.Noop{},
		suite.logger.Logger,
		service.DefaultShortCodeLength,
	)

	workerCtx, stop := context.WithCancel(context.Background())
	suite.stop = stop

	clickWorker := worker.NewClickWorker(suite.urlRepo, suite.tasks, suite.logger.Logger)
	suite.workerWG.Add(1)
	go func() {
		defer suite.workerWG.Done()
		_ = clickWorker.Run(workerCtx)
	}()

	router := myhttp.NewRouter(suite.logger, urlSvc, auth.NewAuthenticator("test-secret"), testBaseURL)
	suite.server = httptest.NewServer(router)
	suite.e = httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  suite.server.URL,
		Reporter: httpexpect.NewAssertReporter(suite.T()),
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	})
}

func (suite *APITestSuite) TearDownTest() {
	suite.stop()
	suite.workerWG.Wait()
	suite.server.Close()

	if _, err := suite.db.Exec(`TRUNCATE urls RESTART IDENTITY`); err != nil {
		suite.T().Fatalf("Failed to truncate urls table: %v", err)
	}
}

// waitForClicks polls the stats endpoint until the click counter reaches
// want or the timeout elapses. Click counting is asynchronous by design.
func (suite *APITestSuite) waitForClicks(shortCode string, want int64) {
	suite.Eventually(func() bool {
		var clicks int64
		err := suite.db.Get(&clicks, `SELECT clicks FROM urls WHERE short_code = $1`, shortCode)
		return err == nil && clicks == want
	}, 5*time.Second, 50*time.Millisecond)
}

func (suite *APITestSuite) TestShortenRedirectStatsFlow() {
	resp := suite.e.POST("/api/shorten").
		WithJSON(map[string]string{
			"original_url": "https://example.com/page",
		}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object()

	data := resp.Value("data").Object()
	data.HasValue("original_url", "https://example.com/page")

	shortCode := data.Value("short_code").String().Raw()
	suite.Len(shortCode, service.DefaultShortCodeLength)
	data.HasValue("short_url", testBaseURL+"/"+shortCode)

	suite.e.GET("/" + shortCode).
		Expect().
		Status(http.StatusFound).
		Header("Location").IsEqual("https://example.com/page")

	suite.waitForClicks(shortCode, 1)

	suite.e.GET("/api/" + shortCode + "/stats").
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		Value("data").Object().
		HasValue("original_url", "https://example.com/page").
		HasValue("clicks", 1)
}

func (suite *APITestSuite) TestConcurrentRedirectsCountEveryClick() {
	suite.e.POST("/api/shorten").
		WithJSON(map[string]string{
			"original_url": "https://example.com/hot",
			"custom_code":  "hotlink",
		}).
		Expect().
		Status(http.StatusCreated)

	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req, err := http.NewRequest(http.MethodGet, suite.server.URL+"/hotlink", nil)
			suite.NoError(err)

			client := &http.Client{
				CheckRedirect: func(req *http.Request, via []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}
			resp, err := client.Do(req)
			suite.NoError(err)
			resp.Body.Close()
		}()
	}
	wg.Wait()

	// The increment is a single atomic SQL update, so no click is lost
	// under concurrency.
	suite.waitForClicks("hotlink", n)
}

func (suite *APITestSuite) TestCustomCodeConflict() {
	suite.e.POST("/api/shorten").
		WithJSON(map[string]string{
			"original_url": "https://example.com/a",
			"custom_code":  "mycode",
		}).
		Expect().
		Status(http.StatusCreated)

	suite.e.POST("/api/shorten").
		WithJSON(map[string]string{
			"original_url": "https://example.com/b",
			"custom_code":  "mycode",
		}).
		Expect().
		Status(http.StatusUnprocessableEntity)
}

func (suite *APITestSuite) TestExpiredLinkAnswersGone() {
	// Insert an already-expired record directly, bypassing the
	// future-expiry validation applied at creation time.
	_, err := suite.db.Exec(
		`INSERT INTO urls(short_code, original_url, expires_at) VALUES ($1, $2, $3)`,
		"old123", "https://example.com/old", time.Now().Add(-time.Hour),
	)
	suite.NoError(err)

	suite.e.GET("/old123").
		Expect().
		Status(http.StatusGone)

	// Stats still work for expired links.
	suite.e.GET("/api/old123/stats").
		Expect().
		Status(http.StatusOK)
}

func (suite *APITestSuite) TestExpiredLinkKeepsServingFromCache() {
	// Documents the deliberate trade-off: expiry is checked against the
	// store only on a cache miss. A link cached before expiring keeps
	// redirecting from the cache until its entry lapses.
	_, err := suite.db.Exec(
		`INSERT INTO urls(short_code, original_url, expires_at) VALUES ($1, $2, $3)`,
		"fading", "https://example.com/fading", time.Now().Add(time.Hour),
	)
	suite.NoError(err)

	// First hit populates the cache while the link is still valid.
	suite.e.GET("/fading").
		Expect().
		Status(http.StatusFound)

	// Flip the record to expired behind the cache's back.
	_, err = suite.db.Exec(
		`UPDATE urls SET expires_at = $1 WHERE short_code = $2`,
		time.Now().Add(-time.Minute), "fading",
	)
	suite.NoError(err)

	// The cached entry still serves the redirect.
	suite.e.GET("/fading").
		Expect().
		Status(http.StatusFound).
		Header("Location").IsEqual("https://example.com/fading")
}

func (suite *APITestSuite) TestRedirectUnknownCode() {
	suite.e.GET("/nosuch").
		Expect().
		Status(http.StatusNotFound)
}

func TestAPITestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests")
	}

	suite.Run(t, new(APITestSuite))
}
