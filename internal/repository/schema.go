package repository

import "aggregat4/linkbook/pkg/migrations"

var bookmarkMigrations = []migrations.Migration{
	{SequenceId: 1,
		Sql: `
		-- id is the subject of the OpenID Connect identity
		CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		last_update INTEGER NOT NULL,
		-- Should be a UUID for generating a unique feed URL that is unauthenticated but unguessable
		feed_id TEXT UNIQUE
		);

		-- timestamps are unix milliseconds, tags a JSON array and metadata a JSON object
		CREATE TABLE IF NOT EXISTS bookmarks (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		folder TEXT,
		favicon TEXT,
		metadata TEXT,
		readlater INTEGER NOT NULL DEFAULT 0,
		visit_count INTEGER NOT NULL DEFAULT 0,
		last_visited INTEGER,
		created INTEGER NOT NULL,
		updated INTEGER NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS bookmarks_user_created_idx ON bookmarks(user_id, created);
		CREATE INDEX IF NOT EXISTS bookmarks_user_folder_idx ON bookmarks(user_id, folder);
		`,
	},
	// Splitting out the read later bookmark contents into a separate table since it will be
	// a relatively small subset of all bookmarks and we don't want to bloat the bookmarks table
	{SequenceId: 2,
		Sql: `
		-- retrieval_status is 0 for no errors, 1 if an error occurred
		CREATE TABLE IF NOT EXISTS read_later (
		id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		bookmark_id TEXT NOT NULL,
		retrieval_attempt_count INTEGER NOT NULL,
		retrieval_status INTEGER NOT NULL,
		retrieval_time INTEGER,
		title TEXT,
		byline TEXT,
		content TEXT,
		content_type TEXT,
		FOREIGN KEY(user_id) REFERENCES users(id),
		FOREIGN KEY(bookmark_id) REFERENCES bookmarks(id) ON DELETE CASCADE
		);
		`,
	},
	{SequenceId: 3,
		Sql: `
		-- settings are stored whole as a JSON document, one row per user
		CREATE TABLE IF NOT EXISTS user_settings (
		user_id TEXT NOT NULL PRIMARY KEY,
		data TEXT NOT NULL,
		created INTEGER NOT NULL,
		updated INTEGER NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id)
		);
		`,
	},
	{SequenceId: 4,
		Sql: `
		-- Enable WAL mode on the database to allow for concurrent reads and writes
		PRAGMA journal_mode=WAL;
		`,
	},
}
