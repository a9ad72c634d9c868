// Package testenv starts the MariaDB and Redis containers used by the
// integration tests and the standalone testcontainers command. Settings are
// read from the environment, usually loaded from a .env file.
package testenv

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/localnerve/benchtop/data"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContainers holds the running containers and their mapped addresses
type TestContainers struct {
	Network        *testcontainers.DockerNetwork
	DBContainer    testcontainers.Container
	RedisContainer testcontainers.Container

	DBHost    string
	DBPort    string
	RedisAddr string
}

// Terminate stops every started container. t may be nil.
func (tc *TestContainers) Terminate(t testing.TB) {
	ctx := context.Background()
	if tc.RedisContainer != nil {
		if err := tc.RedisContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Redis: %v", err)
		}
	}
	if tc.DBContainer != nil {
		if err := tc.DBContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate MariaDB: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logMessage(t, "Failed to remove network: %v", err)
		}
	}
}

// Env returns the variables that point a benchtop process at the containers
func (tc *TestContainers) Env() map[string]string {
	return map[string]string{
		"DB_TYPE":         "mariadb",
		"DB_HOST":         tc.DBHost,
		"DB_PORT":         tc.DBPort,
		"DB_DATABASE":     getEnv("DB_DATABASE", "benchtop"),
		"DB_APP_USER":     getEnv("DB_APP_USER", "benchtop"),
		"DB_APP_PASSWORD": getEnv("DB_APP_PASSWORD", "benchtop"),
		"REDIS_ADDR":      tc.RedisAddr,
	}
}

// CreateAllTestContainers starts MariaDB and Redis on a private network
// and initializes the application database. With a nil t failures exit the
// process.
func CreateAllTestContainers(t testing.TB) (*TestContainers, error) {
	ctx := context.Background()
	tc := &TestContainers{}

	nw, err := network.New(ctx)
	if err != nil {
		exitWithError(t, err, "Failed to create network")
		return nil, err
	}
	tc.Network = nw
	networkName := nw.Name

	// Database container
	tcpDbPort, err := nat.NewPort("tcp", getEnv("DB_PORT", "3306"))
	if err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to create DB port")
		return nil, err
	}
	dbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        getEnv("DB_IMAGE", "mariadb:11"),
			ExposedPorts: []string{string(tcpDbPort)},
			Env: map[string]string{
				"MARIADB_ROOT_PASSWORD": getEnv("DB_ROOT_PASSWORD", "root"),
			},
			WaitingFor: wait.ForListeningPort(tcpDbPort).WithStartupTimeout(90 * time.Second),
			Networks:   []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {"mariadb"},
			},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to start MariaDB")
		return nil, err
	}
	tc.DBContainer = dbContainer

	dbHost, _ := dbContainer.Host(ctx)
	dbPort, _ := dbContainer.MappedPort(ctx, tcpDbPort)
	tc.DBHost, tc.DBPort = dbHost, dbPort.Port()
	if err := initMariaDB(dbHost, dbPort); err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to initialize database")
		return nil, err
	}
	logMessage(t, "DB_HOST=%s DB_PORT=%s", tc.DBHost, tc.DBPort)

	// Redis container
	tcpRedisPort, _ := nat.NewPort("tcp", "6379")
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        getEnv("REDIS_IMAGE", "redis:7-alpine"),
			ExposedPorts: []string{string(tcpRedisPort)},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
			Networks:     []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {"redis"},
			},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		exitWithError(t, err, "Failed to start Redis")
		return nil, err
	}
	tc.RedisContainer = redisContainer

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, tcpRedisPort)
	tc.RedisAddr = fmt.Sprintf("%s:%s", redisHost, redisPort.Port())
	logMessage(t, "REDIS_ADDR=%s", tc.RedisAddr)

	logMessage(t, "Benchtop testcontainers started successfully")
	return tc, nil
}

func initMariaDB(host string, port nat.Port) error {
	db, err := sql.Open("mysql", fmt.Sprintf("root:%s@tcp(%s:%s)/", getEnv("DB_ROOT_PASSWORD", "root"), host, port.Port()))
	if err != nil {
		return fmt.Errorf("connect for setup: %w", err)
	}
	defer db.Close()

	// The port listens before the server accepts logins
	for i := 0; i < 30; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		return fmt.Errorf("not ready after 30 seconds: %w", err)
	}

	database := getEnv("DB_DATABASE", "benchtop")
	user := getEnv("DB_APP_USER", "benchtop")
	statements := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4", database),
		fmt.Sprintf("CREATE USER IF NOT EXISTS '%s'@'%%' IDENTIFIED BY '%s'", user, getEnv("DB_APP_PASSWORD", "benchtop")),
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%w : when executing > %s", err, stmt)
		}
	}
	return executeSQL(db, data.InitdbMariaDBPrivileges)
}

// executeSQL runs a script of ';' terminated statements with '--' comments
func executeSQL(db *sql.DB, script string) error {
	for _, q := range splitStatements(script) {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("%w : when executing > %s", err, q)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	lines := strings.Split(script, "\n")
	for i, l := range lines {
		lines[i] = stripComment(l)
	}

	var out []string
	for _, q := range strings.Split(strings.Join(lines, " "), ";") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// stripComment drops a trailing '--' comment that is not inside quotes
func stripComment(line string) string {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case strings.HasPrefix(line[i:], "--"):
			return line[:i]
		}
	}
	return line
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func exitWithError(t testing.TB, err error, msg string) {
	if t != nil {
		t.Fatalf(msg+": %v", err)
	} else {
		fmt.Printf(msg+": %v\n", err)
		os.Exit(1)
	}
}

func logMessage(t testing.TB, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
