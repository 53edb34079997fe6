package feedstore

import "database/sql"

// Schema is the complete feedpipe store schema.
//
// Scrap edges live in their own tables keyed (feed_id, user_id); a feed's
// scrap count is always COUNT(*) over its edges, never a stored counter.
const Schema = `
-- Writer registry; doubles as user identity (a writer is a registered user).
CREATE TABLE IF NOT EXISTS writers (
    id                TEXT PRIMARY KEY,
    nickname          TEXT NOT NULL DEFAULT '',
    ordinal           INTEGER NOT NULL DEFAULT 0,
    domain            TEXT NOT NULL DEFAULT '',
    profile_image_url TEXT NOT NULL DEFAULT '',
    blog_title        TEXT NOT NULL DEFAULT '',
    blog_url          TEXT NOT NULL,
    is_push_on        INTEGER NOT NULL DEFAULT 0,
    created_at        INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_writers_blog_url ON writers(blog_url);

-- Immutable ingested items; id = sha256(canonical item URL).
CREATE TABLE IF NOT EXISTS feeds (
    id            TEXT PRIMARY KEY,
    writer_id     TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL,
    thumbnail_url TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    published_at  INTEGER NOT NULL,
    registered_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feeds_published ON feeds(published_at DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_feeds_writer ON feeds(writer_id);

-- Scrap edges: many-to-many user <-> feed bookmarks.
CREATE TABLE IF NOT EXISTS feed_scraps (
    feed_id     TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL,
    scrapped_at INTEGER NOT NULL,
    PRIMARY KEY (feed_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_feed_scraps_user ON feed_scraps(user_id);

-- Bounded derived view: denormalized copies of the most recent feeds.
CREATE TABLE IF NOT EXISTS recommend_feeds (
    id            TEXT PRIMARY KEY,
    writer_id     TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL,
    thumbnail_url TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    published_at  INTEGER NOT NULL,
    registered_at INTEGER NOT NULL
);

-- Scrap sub-relation of the derived view entries.
CREATE TABLE IF NOT EXISTS recommend_scraps (
    feed_id     TEXT NOT NULL REFERENCES recommend_feeds(id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL,
    scrapped_at INTEGER NOT NULL,
    PRIMARY KEY (feed_id, user_id)
);

-- Push delivery tokens; maintained here only so user deletion cleans them up.
CREATE TABLE IF NOT EXISTS push_tokens (
    user_id    TEXT PRIMARY KEY,
    token      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
