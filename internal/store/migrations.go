package store

const schema = `
CREATE TABLE IF NOT EXISTS signals (
    id          TEXT NOT NULL,
    run_id      TEXT NOT NULL,
    source      TEXT NOT NULL,
    signal_type TEXT NOT NULL,
    subject     TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    observed_at DATETIME NOT NULL,
    raw_metric  REAL NOT NULL DEFAULT 0,
    authority   REAL NOT NULL DEFAULT 0,
    score       REAL NOT NULL DEFAULT 0,
    scored      BOOLEAN NOT NULL DEFAULT 0,
    data        TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_signals_run ON signals(run_id);
CREATE INDEX IF NOT EXISTS idx_signals_source ON signals(source);
CREATE INDEX IF NOT EXISTS idx_signals_observed ON signals(observed_at);

CREATE TABLE IF NOT EXISTS narrative_baselines (
    slug       TEXT PRIMARY KEY,
    mean_score REAL NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
    run_id       TEXT PRIMARY KEY,
    generated_at DATETIME NOT NULL,
    period_days  INTEGER NOT NULL,
    document     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(generated_at);
`
