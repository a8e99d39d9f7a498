package database

import (
	"context"
	"database/sql"
)

// Schema creates the tables, indexes and change-feed triggers. It is safe to
// apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
	id         UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	first_name TEXT,
	last_name  TEXT,
	avatar_url TEXT,
	phone      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trips (
	id              UUID PRIMARY KEY,
	driver_id       UUID NOT NULL REFERENCES users(id),
	origin          TEXT NOT NULL,
	destination     TEXT NOT NULL,
	departure_date  TIMESTAMPTZ NOT NULL,
	price           NUMERIC(10,2) NOT NULL DEFAULT 0,
	seats_available INTEGER NOT NULL CHECK (seats_available >= 0),
	description     TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS bookings (
	id           UUID PRIMARY KEY,
	trip_id      UUID NOT NULL REFERENCES trips(id),
	passenger_id UUID NOT NULL REFERENCES users(id),
	seats        INTEGER NOT NULL CHECK (seats >= 1),
	status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'cancelled')),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	updated_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS messages (
	id                  UUID PRIMARY KEY,
	sender_id           UUID NOT NULL REFERENCES users(id),
	receiver_id         UUID NOT NULL REFERENCES users(id),
	content             TEXT NOT NULL CHECK (length(btrim(content)) > 0),
	created_at          TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	read                BOOLEAN NOT NULL DEFAULT false,
	trip_id             UUID REFERENCES trips(id),
	deleted_by_sender   BOOLEAN NOT NULL DEFAULT false,
	deleted_by_receiver BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS notifications (
	id                 UUID PRIMARY KEY,
	user_id            UUID NOT NULL REFERENCES users(id),
	message            TEXT NOT NULL,
	read               BOOLEAN NOT NULL DEFAULT false,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	related_trip_id    UUID REFERENCES trips(id),
	related_booking_id UUID REFERENCES bookings(id)
);

CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id, created_at);
CREATE INDEX IF NOT EXISTS messages_receiver_idx ON messages (receiver_id, created_at);
CREATE INDEX IF NOT EXISTS messages_unread_idx ON messages (receiver_id) WHERE NOT read AND NOT deleted_by_receiver;
CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS trips_driver_idx ON trips (driver_id, departure_date DESC);
CREATE INDEX IF NOT EXISTS bookings_trip_idx ON bookings (trip_id);
CREATE INDEX IF NOT EXISTS bookings_passenger_idx ON bookings (passenger_id);

-- pg_notify payloads are capped at 8000 bytes; larger rows are announced by
-- id and read back by the listener.
CREATE OR REPLACE FUNCTION notify_row_change() RETURNS trigger AS $$
DECLARE
	payload TEXT;
BEGIN
	payload := json_build_object('kind', TG_OP, 'row', row_to_json(NEW))::text;
	IF octet_length(payload) > 7900 THEN
		payload := json_build_object('kind', TG_OP, 'id', NEW.id)::text;
	END IF;
	PERFORM pg_notify(TG_TABLE_NAME || '_changes', payload);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS messages_notify ON messages;
CREATE TRIGGER messages_notify AFTER INSERT OR UPDATE ON messages
	FOR EACH ROW EXECUTE FUNCTION notify_row_change();

DROP TRIGGER IF EXISTS notifications_notify ON notifications;
CREATE TRIGGER notifications_notify AFTER INSERT OR UPDATE ON notifications
	FOR EACH ROW EXECUTE FUNCTION notify_row_change();

DROP TRIGGER IF EXISTS bookings_notify ON bookings;
CREATE TRIGGER bookings_notify AFTER INSERT OR UPDATE ON bookings
	FOR EACH ROW EXECUTE FUNCTION notify_row_change();
`

// Migrate applies Schema
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
