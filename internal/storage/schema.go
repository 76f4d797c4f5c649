package storage

const schema = `
-- One last-write-wins progress document per profile, used when the remote
-- store is unreachable and as the local copy between syncs.
CREATE TABLE IF NOT EXISTS progress (
    profile_id TEXT PRIMARY KEY,
    document TEXT NOT NULL,
    saved_at DATETIME NOT NULL
);

-- Append-only log of every rating event.
CREATE TABLE IF NOT EXISTS review_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    profile_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    quality INTEGER NOT NULL,
    reviewed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_log_profile ON review_log(profile_id);
`
