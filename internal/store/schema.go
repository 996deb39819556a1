package store

// Schema v1 - core catalog: works, tracks, taxonomy, history, favorites
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One release per directory
CREATE TABLE IF NOT EXISTS works (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  rj_code TEXT UNIQUE,
  title TEXT NOT NULL,
  dir_path TEXT UNIQUE NOT NULL,
  cover_path TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_works_created_at ON works(created_at);

-- Audio files belonging to a work. Lower-priority duplicate-format copies
-- keep their row but are hidden from playback queries (is_visible = 0).
CREATE TABLE IF NOT EXISTS tracks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  work_id INTEGER NOT NULL REFERENCES works(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  path TEXT UNIQUE NOT NULL,
  duration_sec INTEGER NOT NULL DEFAULT 0,
  track_number INTEGER,
  is_visible INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_tracks_work_id ON tracks(work_id);

-- Resume position, one row per work
CREATE TABLE IF NOT EXISTS track_progress (
  work_id INTEGER PRIMARY KEY REFERENCES works(id) ON DELETE CASCADE,
  track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
  position_sec REAL NOT NULL DEFAULT 0,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Free-form taxonomy, created on demand
CREATE TABLE IF NOT EXISTS tags (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS circles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS voice_actors (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS work_tags (
  work_id INTEGER NOT NULL REFERENCES works(id) ON DELETE CASCADE,
  tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
  PRIMARY KEY (work_id, tag_id)
);

CREATE TABLE IF NOT EXISTS work_circles (
  work_id INTEGER NOT NULL REFERENCES works(id) ON DELETE CASCADE,
  circle_id INTEGER NOT NULL REFERENCES circles(id) ON DELETE CASCADE,
  PRIMARY KEY (work_id, circle_id)
);

CREATE TABLE IF NOT EXISTS work_voice_actors (
  work_id INTEGER NOT NULL REFERENCES works(id) ON DELETE CASCADE,
  voice_actor_id INTEGER NOT NULL REFERENCES voice_actors(id) ON DELETE CASCADE,
  PRIMARY KEY (work_id, voice_actor_id)
);

-- Append-only play log
CREATE TABLE IF NOT EXISTS play_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  work_id INTEGER NOT NULL REFERENCES works(id) ON DELETE CASCADE,
  track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
  played_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_play_history_played_at ON play_history(played_at);

-- Favorite works (toggle semantics)
CREATE TABLE IF NOT EXISTS favorites (
  work_id INTEGER PRIMARY KEY REFERENCES works(id) ON DELETE CASCADE
);
`

// Schema v2 - playlists, originally at work granularity
const schemaV2 = `
CREATE TABLE IF NOT EXISTS playlists (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS playlist_tracks (
  playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
  work_id INTEGER NOT NULL REFERENCES works(id) ON DELETE CASCADE,
  position INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (playlist_id, work_id)
);
`

// Schema v3 - playlist membership redesigned to track granularity so a
// multi-track release can be partially added. The old work-level table is
// dropped and recreated; membership could not be migrated meaningfully.
const schemaV3 = `
DROP TABLE IF EXISTS playlist_tracks;

CREATE TABLE playlist_tracks (
  playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
  track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
  position INTEGER NOT NULL DEFAULT 0,
  added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (playlist_id, track_id)
);

CREATE INDEX IF NOT EXISTS idx_playlist_tracks_track_id ON playlist_tracks(track_id);
CREATE INDEX IF NOT EXISTS idx_tracks_work_visible ON tracks(work_id, is_visible);
CREATE INDEX IF NOT EXISTS idx_play_history_work_id ON play_history(work_id);
`
