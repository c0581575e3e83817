package mysql

// schema holds the full table set. Statements are split on semicolons and
// executed one at a time because MySQL rejects multi-statement Exec calls.
// List-valued fields (tags, linked ids, custody chains, status history) are
// JSON columns; NULL means empty.
const schema = `
CREATE TABLE IF NOT EXISTS activities (
    id VARCHAR(64) PRIMARY KEY,
    activity_type VARCHAR(32) NOT NULL,
    title VARCHAR(500) NOT NULL,
    description TEXT,
    priority VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL,
    location VARCHAR(200) NOT NULL,
    site_id VARCHAR(64) NOT NULL DEFAULT '',
    reporter VARCHAR(128) NOT NULL DEFAULT '',
    reporter_class VARCHAR(16) NOT NULL DEFAULT '',
    confidence DOUBLE NOT NULL DEFAULT 0,
    system_tags JSON,
    user_tags JSON,
    incident_ids JSON,
    retention_until DATETIME(6) NULL,
    archived TINYINT(1) NOT NULL DEFAULT 0,
    archived_at DATETIME(6) NULL,
    archive_summary TEXT,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    KEY idx_activities_type (activity_type),
    KEY idx_activities_status (status),
    KEY idx_activities_created (created_at),
    KEY idx_activities_retention (archived, retention_until)
);

CREATE TABLE IF NOT EXISTS incidents (
    id VARCHAR(64) PRIMARY KEY,
    incident_type VARCHAR(32) NOT NULL,
    status VARCHAR(16) NOT NULL,
    priority VARCHAR(16) NOT NULL,
    title VARCHAR(500) NOT NULL,
    trigger_activity_id VARCHAR(64) NOT NULL,
    requires_validation TINYINT(1) NOT NULL DEFAULT 0,
    dismissible TINYINT(1) NOT NULL DEFAULT 0,
    system_tags JSON,
    confirmed_by VARCHAR(128) NOT NULL DEFAULT '',
    confirmed_at DATETIME(6) NULL,
    dismissed_by VARCHAR(128) NOT NULL DEFAULT '',
    dismissed_at DATETIME(6) NULL,
    dismiss_reason TEXT,
    case_ids JSON,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    KEY idx_incidents_status (status),
    KEY idx_incidents_trigger (trigger_activity_id),
    KEY idx_incidents_created (created_at)
);

CREATE TABLE IF NOT EXISTS cases (
    id VARCHAR(64) PRIMARY KEY,
    case_number VARCHAR(32) NOT NULL,
    case_type VARCHAR(32) NOT NULL,
    status VARCHAR(32) NOT NULL,
    priority VARCHAR(16) NOT NULL,
    title VARCHAR(500) NOT NULL,
    lead_investigator VARCHAR(128) NOT NULL,
    incident_ids JSON,
    evidence_ids JSON,
    status_history JSON,
    conclusion TEXT,
    recommendations TEXT,
    outcome VARCHAR(32) NOT NULL DEFAULT '',
    retention_until DATETIME(6) NULL,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    closed_at DATETIME(6) NULL,
    closed_by VARCHAR(128) NOT NULL DEFAULT '',
    UNIQUE KEY uq_cases_number (case_number),
    KEY idx_cases_status (status),
    KEY idx_cases_created (created_at)
);

CREATE TABLE IF NOT EXISTS case_sequences (
    seq_year INT PRIMARY KEY,
    seq INT NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence (
    id VARCHAR(64) PRIMARY KEY,
    case_id VARCHAR(64) NOT NULL,
    evidence_type VARCHAR(32) NOT NULL,
    classification VARCHAR(32) NOT NULL,
    description TEXT,
    storage_path VARCHAR(512) NOT NULL DEFAULT '',
    content_hash VARCHAR(128) NOT NULL DEFAULT '',
    processing_status VARCHAR(32) NOT NULL,
    integrity_verified TINYINT(1) NOT NULL DEFAULT 0,
    chain JSON,
    collected_by VARCHAR(128) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    KEY idx_evidence_case (case_id),
    KEY idx_evidence_status (processing_status)
);
`
