package db

// Schema for the mail processing store. Customers own their allow-list
// addresses, threads and drafts (cascade); the processed_emails ledger
// survives customer deletion with customer_id set to NULL so duplicate
// suppression keeps working.
const schema = `
-- Customers (one git repo / webhook per customer)
CREATE TABLE IF NOT EXISTS customers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    repo_url TEXT NOT NULL,
    gitea_token TEXT NOT NULL,
    discord_webhook TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Sender allow-list. Rows starting with '@' are domain wildcards.
CREATE TABLE IF NOT EXISTS email_addresses (
    email TEXT PRIMARY KEY,
    customer_id INTEGER NOT NULL,
    salutation TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(customer_id) REFERENCES customers(id) ON DELETE CASCADE
);

-- POP3 accounts polled by the incoming worker
CREATE TABLE IF NOT EXISTS mail_accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    host TEXT NOT NULL,
    port INTEGER NOT NULL DEFAULT 110,
    username TEXT NOT NULL,
    password TEXT NOT NULL,
    use_ssl BOOLEAN DEFAULT 0,
    enabled BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Upstream SMTP forwarding targets, keyed by relay login
CREATE TABLE IF NOT EXISTS smtp_relay_configs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    host TEXT NOT NULL,
    port INTEGER NOT NULL,
    username TEXT NOT NULL,
    password TEXT NOT NULL,
    relay_username TEXT NOT NULL UNIQUE,
    relay_password TEXT NOT NULL,
    use_tls BOOLEAN DEFAULT 0,
    use_ssl BOOLEAN DEFAULT 0,
    enabled BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Conversation threads. subject always holds the normalized form.
CREATE TABLE IF NOT EXISTS threads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id INTEGER NOT NULL,
    subject TEXT,
    created_at DATETIME,
    updated_at DATETIME,
    FOREIGN KEY(customer_id) REFERENCES customers(id) ON DELETE CASCADE
);

-- Emails attached to threads. message_id is globally unique: an email
-- belongs to exactly one thread.
CREATE TABLE IF NOT EXISTS thread_emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id INTEGER NOT NULL,
    message_id TEXT NOT NULL UNIQUE,
    in_reply_to TEXT,
    thread_references TEXT,  -- space-separated ancestor Message-IDs, as received
    direction TEXT NOT NULL, -- incoming | outgoing
    from_address TEXT NOT NULL,
    to_addresses TEXT NOT NULL,
    cc_addresses TEXT,
    subject TEXT,            -- raw subject, unnormalized
    body_preview TEXT,
    summary TEXT,
    date DATETIME NOT NULL,
    processed_at DATETIME,
    FOREIGN KEY(thread_id) REFERENCES threads(id) ON DELETE CASCADE
);

-- One Gitea issue per thread; follow-up emails comment instead of
-- opening duplicates.
CREATE TABLE IF NOT EXISTS thread_issues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id INTEGER NOT NULL,
    issue_url TEXT NOT NULL,
    issue_number INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(thread_id) REFERENCES threads(id) ON DELETE CASCADE
);

-- Duplicate-suppression ledger. A row here means the Message-ID must
-- never be processed again, by either pipeline.
CREATE TABLE IF NOT EXISTS processed_emails (
    message_id TEXT PRIMARY KEY,
    customer_id INTEGER,
    from_address TEXT,
    to_addresses TEXT,
    subject TEXT,
    direction TEXT DEFAULT 'incoming',
    thread_id INTEGER,
    processed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(customer_id) REFERENCES customers(id) ON DELETE SET NULL,
    FOREIGN KEY(thread_id) REFERENCES threads(id) ON DELETE SET NULL
);

-- AI reply drafts awaiting human review
CREATE TABLE IF NOT EXISTS drafts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id INTEGER NOT NULL,
    message_id TEXT NOT NULL,
    reply_draft TEXT NOT NULL,
    summary TEXT NOT NULL,
    issue_title TEXT,
    issue_url TEXT,
    status TEXT DEFAULT 'pending', -- pending | sent | archived
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    FOREIGN KEY(customer_id) REFERENCES customers(id) ON DELETE CASCADE
);

-- Full-text search over thread emails
CREATE VIRTUAL TABLE IF NOT EXISTS thread_emails_fts USING fts5(
    subject,
    from_address,
    to_addresses,
    body_preview,
    summary,
    content='thread_emails',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS thread_emails_ai AFTER INSERT ON thread_emails BEGIN
    INSERT INTO thread_emails_fts(rowid, subject, from_address, to_addresses, body_preview, summary)
    VALUES (new.id, new.subject, new.from_address, new.to_addresses, new.body_preview, new.summary);
END;

CREATE TRIGGER IF NOT EXISTS thread_emails_ad AFTER DELETE ON thread_emails BEGIN
    DELETE FROM thread_emails_fts WHERE rowid = old.id;
END;

CREATE TRIGGER IF NOT EXISTS thread_emails_au AFTER UPDATE ON thread_emails BEGIN
    UPDATE thread_emails_fts
    SET subject = new.subject,
        from_address = new.from_address,
        to_addresses = new.to_addresses,
        body_preview = new.body_preview,
        summary = new.summary
    WHERE rowid = new.id;
END;

-- Settings table (runtime preferences)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_email_addresses_customer ON email_addresses(customer_id);
CREATE INDEX IF NOT EXISTS idx_mail_accounts_enabled ON mail_accounts(enabled);
CREATE INDEX IF NOT EXISTS idx_relay_configs_enabled ON smtp_relay_configs(enabled);
CREATE INDEX IF NOT EXISTS idx_threads_customer ON threads(customer_id);
CREATE INDEX IF NOT EXISTS idx_threads_updated ON threads(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_thread_emails_thread ON thread_emails(thread_id);
CREATE INDEX IF NOT EXISTS idx_thread_emails_message_id ON thread_emails(message_id);
CREATE INDEX IF NOT EXISTS idx_thread_emails_in_reply_to ON thread_emails(in_reply_to);
CREATE INDEX IF NOT EXISTS idx_thread_emails_direction ON thread_emails(direction);
CREATE INDEX IF NOT EXISTS idx_thread_emails_date ON thread_emails(date DESC);
CREATE INDEX IF NOT EXISTS idx_thread_issues_thread ON thread_issues(thread_id);
CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_emails(processed_at);
CREATE INDEX IF NOT EXISTS idx_drafts_customer_status ON drafts(customer_id, status);
`
