package store

import "fmt"

func schema(d Dialect) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_log (
    id          %s,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  %s NOT NULL DEFAULT (%s)
)`, d.AutoIncrementPK(), d.TimestampType(), d.Now()),
		`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS outbox (
    id         %s,
    topic      TEXT NOT NULL,
    payload    %s NOT NULL,
    msg_type   TEXT NOT NULL DEFAULT '',
    retries    INTEGER NOT NULL DEFAULT 0,
    created_at %s NOT NULL DEFAULT (%s),
    sent_at    %s
)`, d.AutoIncrementPK(), d.BlobType(), d.TimestampType(), d.Now(), d.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at, id)`,
	}
}
