//go:build integration

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostGISImage is the database image used by integration tests
const PostGISImage = "postgis/postgis:16-3.4"

// NewPostGISContainer starts a PostGIS container and returns its DSN.
// The container is automatically terminated when the test completes.
func NewPostGISContainer(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		PostGISImage,
		postgres.WithDatabase("footprint"),
		postgres.WithUsername("footprint"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start PostGIS container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate PostGIS container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get PostGIS connection string: %v", err)
	}

	return dsn
}
