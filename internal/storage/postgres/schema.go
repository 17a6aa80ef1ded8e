package postgres

// Schema creates the tables used by Repository.
const Schema = `
CREATE TABLE IF NOT EXISTS signals (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	url              TEXT NOT NULL,
	selector         TEXT,
	strategy         TEXT NOT NULL DEFAULT 'AUTO',
	interval_minutes INTEGER NOT NULL DEFAULT 60,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	last_scraped_at  TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pulses (
	id           TEXT PRIMARY KEY,
	signal_id    TEXT NOT NULL REFERENCES signals(id) ON DELETE CASCADE,
	raw_data     TEXT NOT NULL,
	summary      TEXT,
	status       TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	archive_uri  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS pulses_signal_created_idx ON pulses (signal_id, created_at DESC);

CREATE TABLE IF NOT EXISTS alert_destinations (
	id          TEXT PRIMARY KEY,
	signal_id   TEXT NOT NULL REFERENCES signals(id) ON DELETE CASCADE,
	channel     TEXT NOT NULL,
	destination TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS alerts (
	id             TEXT PRIMARY KEY,
	pulse_id       TEXT NOT NULL REFERENCES pulses(id) ON DELETE CASCADE,
	destination_id TEXT NOT NULL REFERENCES alert_destinations(id) ON DELETE CASCADE,
	channel        TEXT NOT NULL,
	change_type    TEXT NOT NULL,
	change_summary TEXT NOT NULL,
	change_details TEXT NOT NULL,
	status         TEXT NOT NULL,
	delivered_at   TIMESTAMPTZ,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
