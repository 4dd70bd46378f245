/*
 * Copyright 2025 FTTH Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

const defaultPostgresPort = 5432

// NewPool dials the configured Postgres database and returns a pgx pool.
func NewPool(ctx context.Context, cfg *models.DatabaseConfig, log logger.Logger) (*pgxpool.Pool, error) {
	conn := *cfg
	if conn.Port == 0 {
		conn.Port = defaultPostgresPort
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", conn.Host, conn.Port),
		Path:   "/" + conn.Database,
	}

	if conn.Username != "" {
		if conn.Password != "" {
			connURL.User = url.UserPassword(conn.Username, conn.Password)
		} else {
			connURL.User = url.User(conn.Username)
		}
	}

	query := connURL.Query()

	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	query.Set("sslmode", sslMode)
	query.Set("application_name", "fibermon")
	connURL.RawQuery = query.Encode()

	poolConfig, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("db: failed to parse connection string: %w", err)
	}

	if conn.MaxConns > 0 {
		poolConfig.MaxConns = conn.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("db: failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: failed to ping database: %w", err)
	}

	log.Info().
		Str("host", conn.Host).
		Str("database", conn.Database).
		Msg("Connected to database")

	return pool, nil
}
