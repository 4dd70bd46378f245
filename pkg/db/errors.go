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
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (

	// Operation errors.

	ErrFailedToQuery  = errors.New("failed to query")
	ErrFailedToScan   = errors.New("failed to scan")
	ErrFailedToInsert = errors.New("failed to insert")
	ErrFailedToUpdate = errors.New("failed to update")

	// Lookup misses.

	ErrDeviceNotFound = errors.New("device not found")
	ErrLinkNotFound   = errors.New("link not found")

	// ErrSignalSourceMissing marks a detector whose backing table is not
	// present in this deployment. The aggregator skips such sources.
	ErrSignalSourceMissing = errors.New("signal source table missing")
)

const pgUndefinedTable = "42P01"

// isUndefinedTable reports whether err is Postgres' undefined_table.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}
