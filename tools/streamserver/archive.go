/*
	wows-replays: World of Warships replay parsing library (golang)
	Copyright (C) 2026 lkolbly

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS replays (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	version TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	bytes INTEGER NOT NULL,
	packets INTEGER NOT NULL,
	malformed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replays_username ON replays(username);
`

// replayIndex records finished uploads.
type replayIndex struct {
	db *sql.DB
}

func openIndex(path string) (*replayIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &replayIndex{db: db}, nil
}

func (x *replayIndex) Close() error {
	return x.db.Close()
}

func (x *replayIndex) record(username, version string, started time.Time, bytes, packets, malformed int) error {
	_, err := x.db.Exec(
		`INSERT INTO replays (username, version, started_at, finished_at, bytes, packets, malformed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		username, version, started, time.Now(), bytes, packets, malformed,
	)
	return err
}

// indexedReplay is one row of the index, as served by /replays.
type indexedReplay struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Bytes      int64     `json:"bytes"`
	Packets    int64     `json:"packets"`
	Malformed  int64     `json:"malformed"`
}

func (x *replayIndex) recent(ctx context.Context, limit int) ([]indexedReplay, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT id, username, version, started_at, finished_at, bytes, packets, malformed
		 FROM replays ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []indexedReplay{}
	for rows.Next() {
		var rec indexedReplay
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Version, &rec.StartedAt, &rec.FinishedAt, &rec.Bytes, &rec.Packets, &rec.Malformed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
