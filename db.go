// Package neopaths is a resilient path-search layer over a remote property graph
// reached through the official Neo4j Go driver (Bolt + openCypher, as served by
// Neo4j and Amazon Neptune).
//
// It owns one live session, retries transient failures with a constant backoff,
// rebuilds the session when the transport breaks, and turns raw traversal results
// into deduplicated node/edge sets.
package neopaths

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
)

// DBRunner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different implementations
// or mocking in tests.
type DBRunner interface {
	// Run executes a given Cypher query with parameters and returns a fully-buffered result.
	// Errors are classified (see GraphError).
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// ConnectionPoolSize is the number of connections each session may open. Queries
// through one session therefore execute one at a time.
const ConnectionPoolSize = 1

// Endpoint describes where the graph database listens.
type Endpoint struct {
	// Scheme is the Bolt URI scheme. "bolt+s" (TLS) unless overridden.
	Scheme string
	Host   string
	Port   int

	// Username and Password are optional; NoAuth is used when Username is empty.
	Username string
	Password string

	// Database selects the target database. Empty uses the server default.
	Database string
}

// URL returns the connection URI, e.g. "bolt+s://graph.example.com:8182".
func (e Endpoint) URL() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "bolt+s"
	}
	return scheme + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) auth() neo4j.AuthToken {
	if e.Username == "" {
		return neo4j.NoAuth()
	}
	return neo4j.BasicAuth(e.Username, e.Password, "")
}

//---

// Neo4jExecutor is a concrete implementation of the DBRunner interface that uses the
// official Neo4j Go driver. It manages the driver instance and the target database name.
type Neo4jExecutor struct {
	Driver neo4j.DriverWithContext
	DBName string
}

// NewNeo4jExecutor creates a driver for the endpoint with a single-connection pool
// and verifies connectivity.
func NewNeo4jExecutor(ctx context.Context, ep Endpoint) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(ep.URL(), ep.auth(), func(c *config.Config) {
		c.MaxConnectionPoolSize = ConnectionPoolSize
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, classify("connect", err)
	}
	return &Neo4jExecutor{Driver: driver, DBName: ep.Database}, nil
}

// Dial returns a Dialer that opens a fresh Neo4jExecutor for ep on every call.
func Dial(ep Endpoint) Dialer {
	return func(ctx context.Context) (DBRunner, error) {
		return NewNeo4jExecutor(ctx, ep)
	}
}

// Run executes a Cypher query using ExecuteQuery, which handles session and
// transaction management, and buffers every record before returning.
func (e *Neo4jExecutor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if e.DBName != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(e.DBName))
	}
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		opts...,
	)
	if err != nil {
		return nil, classify("run", err)
	}
	return result, nil
}

// Close closes the driver and its connection pool.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}
