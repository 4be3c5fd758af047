package storage

// PostgresSchema is applied by PostgresStore.Migrate. Statements are
// idempotent so the API and worker can both run it on start-up.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS maintenance_requests (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	customer_name TEXT NOT NULL,
	customer_phone TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT 'medium',
	workflow_stage TEXT NOT NULL,
	status TEXT NOT NULL,
	assigned_to TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	archived_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS maintenance_requests_stage_idx ON maintenance_requests (workflow_stage);

CREATE TABLE IF NOT EXISTS stage_events (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES maintenance_requests(id) ON DELETE CASCADE,
	from_stage TEXT NOT NULL,
	to_stage TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS stage_events_request_idx ON stage_events (request_id, id);

CREATE TABLE IF NOT EXISTS request_attachments (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES maintenance_requests(id) ON DELETE CASCADE,
	object_key TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	size_bytes BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notifications (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES maintenance_requests(id) ON DELETE CASCADE,
	stage TEXT NOT NULL,
	channel TEXT NOT NULL,
	recipient TEXT NOT NULL,
	body TEXT NOT NULL,
	provider_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS maintenance_requests (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	customer_name TEXT NOT NULL,
	customer_phone TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT 'medium',
	workflow_stage TEXT NOT NULL,
	status TEXT NOT NULL,
	assigned_to TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	archived_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS maintenance_requests_stage_idx ON maintenance_requests (workflow_stage);

CREATE TABLE IF NOT EXISTS stage_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL REFERENCES maintenance_requests(id) ON DELETE CASCADE,
	from_stage TEXT NOT NULL,
	to_stage TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS stage_events_request_idx ON stage_events (request_id, id);

CREATE TABLE IF NOT EXISTS request_attachments (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES maintenance_requests(id) ON DELETE CASCADE,
	object_key TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL REFERENCES maintenance_requests(id) ON DELETE CASCADE,
	stage TEXT NOT NULL,
	channel TEXT NOT NULL,
	recipient TEXT NOT NULL,
	body TEXT NOT NULL,
	provider_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
`
