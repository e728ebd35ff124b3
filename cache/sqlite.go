package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	imap "github.com/pelikan-mail/imapcore"
)

// SQLiteCache persists the same shape MemoryCache holds in RAM, backed by
// modernc.org/sqlite's pure-Go driver so the binary stays cgo-free. It is
// meant for a single long-lived desktop-style session, the same role
// trojita's own on-disk cache filled.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (creating if necessary) a cache database at path.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	c := &SQLiteCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS child_mailboxes (
	mailbox TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	fresh INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_state (
	mailbox TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	uid_map TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	mailbox TEXT NOT NULL,
	uid INTEGER NOT NULL,
	envelope TEXT,
	size INTEGER,
	flags TEXT,
	structure BLOB,
	PRIMARY KEY (mailbox, uid)
);
CREATE TABLE IF NOT EXISTS parts (
	mailbox TEXT NOT NULL,
	uid INTEGER NOT NULL,
	part_id TEXT NOT NULL,
	data BLOB,
	PRIMARY KEY (mailbox, uid, part_id)
);
`
	_, err := c.db.Exec(schema)
	return err
}

type syncStateJSON struct {
	Exists, Recent, UIDNext, UIDValidity *uint32
	HighestModSeq                        *uint64
	UnseenCount, UnseenOffset            *uint32
	PermanentFlags, SessionFlags         []imap.Flag
}

func encodeSyncState(s *imap.SyncState) []byte {
	j := syncStateJSON{PermanentFlags: s.PermanentFlags(), SessionFlags: s.SessionFlags()}
	if v, ok := s.Exists(); ok {
		j.Exists = &v
	}
	if v, ok := s.Recent(); ok {
		j.Recent = &v
	}
	if v, ok := s.UIDNext(); ok {
		n := uint32(v)
		j.UIDNext = &n
	}
	if v, ok := s.UIDValidity(); ok {
		j.UIDValidity = &v
	}
	if v, ok := s.HighestModSeq(); ok {
		j.HighestModSeq = &v
	}
	b, _ := json.Marshal(j)
	return b
}

func decodeSyncState(data []byte) (*imap.SyncState, error) {
	var j syncStateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	s := &imap.SyncState{}
	if j.Exists != nil {
		s.SetExists(*j.Exists)
	}
	if j.Recent != nil {
		s.SetRecent(*j.Recent)
	}
	if j.UIDNext != nil {
		s.SetUIDNext(imap.UID(*j.UIDNext))
	}
	if j.UIDValidity != nil {
		s.SetUIDValidity(*j.UIDValidity)
	}
	if j.HighestModSeq != nil {
		s.SetHighestModSeq(*j.HighestModSeq)
	}
	s.SetPermanentFlags(j.PermanentFlags)
	s.SetSessionFlags(j.SessionFlags)
	return s, nil
}

func (c *SQLiteCache) ChildMailboxes(ctx context.Context, mailbox string) ([]MailboxMetadata, error) {
	row := c.db.QueryRowContext(ctx, `SELECT data FROM child_mailboxes WHERE mailbox = ?`, mailbox)
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var out []MailboxMetadata
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SQLiteCache) ChildMailboxesFresh(ctx context.Context, mailbox string) bool {
	row := c.db.QueryRowContext(ctx, `SELECT fresh FROM child_mailboxes WHERE mailbox = ?`, mailbox)
	var fresh int
	if err := row.Scan(&fresh); err != nil {
		return false
	}
	return fresh != 0
}

func (c *SQLiteCache) SetChildMailboxes(ctx context.Context, mailbox string, data []MailboxMetadata) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO child_mailboxes (mailbox, data, fresh) VALUES (?, ?, 1)
		ON CONFLICT(mailbox) DO UPDATE SET data = excluded.data, fresh = 1`, mailbox, string(b))
	return err
}

func (c *SQLiteCache) ForgetChildMailboxes(ctx context.Context, mailbox string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE child_mailboxes SET fresh = 0 WHERE mailbox = ?`, mailbox)
	return err
}

func (c *SQLiteCache) MailboxSyncState(ctx context.Context, mailbox string) (*imap.SyncState, error) {
	row := c.db.QueryRowContext(ctx, `SELECT state FROM sync_state WHERE mailbox = ?`, mailbox)
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeSyncState([]byte(data))
}

// SetMailboxSyncState writes the SyncState and UID map inside a single
// transaction, satisfying the Cache interface's atomicity requirement: a
// reader never observes one without the other.
func (c *SQLiteCache) SetMailboxSyncState(ctx context.Context, mailbox string, state *imap.SyncState, seqToUID []imap.UID) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	uidMap, err := json.Marshal(seqToUID)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO sync_state (mailbox, state, uid_map) VALUES (?, ?, ?)
		ON CONFLICT(mailbox) DO UPDATE SET state = excluded.state, uid_map = excluded.uid_map`,
		mailbox, string(encodeSyncState(state)), string(uidMap)); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *SQLiteCache) UIDMapping(ctx context.Context, mailbox string) ([]imap.UID, error) {
	row := c.db.QueryRowContext(ctx, `SELECT uid_map FROM sync_state WHERE mailbox = ?`, mailbox)
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var out []imap.UID
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SQLiteCache) ClearUIDMapping(ctx context.Context, mailbox string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE sync_state SET uid_map = '[]' WHERE mailbox = ?`, mailbox)
	return err
}

func (c *SQLiteCache) ClearAllMessages(ctx context.Context, mailbox string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE mailbox = ?`, mailbox); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM parts WHERE mailbox = ?`, mailbox); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *SQLiteCache) ClearMessage(ctx context.Context, mailbox string, uid imap.UID) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE mailbox = ? AND uid = ?`, mailbox, uid); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM parts WHERE mailbox = ? AND uid = ?`, mailbox, uid); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *SQLiteCache) ensureMessageRow(ctx context.Context, mailbox string, uid imap.UID) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO messages (mailbox, uid) VALUES (?, ?) ON CONFLICT(mailbox, uid) DO NOTHING`, mailbox, uid)
	return err
}

func (c *SQLiteCache) SetMsgPart(ctx context.Context, mailbox string, uid imap.UID, partID string, data []byte) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO parts (mailbox, uid, part_id, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(mailbox, uid, part_id) DO UPDATE SET data = excluded.data`, mailbox, uid, partID, data)
	return err
}

func (c *SQLiteCache) SetMsgEnvelope(ctx context.Context, mailbox string, uid imap.UID, env *imap.Envelope) error {
	if err := c.ensureMessageRow(ctx, mailbox, uid); err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `UPDATE messages SET envelope = ? WHERE mailbox = ? AND uid = ?`, string(b), mailbox, uid)
	return err
}

func (c *SQLiteCache) SetMsgSize(ctx context.Context, mailbox string, uid imap.UID, size uint32) error {
	if err := c.ensureMessageRow(ctx, mailbox, uid); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `UPDATE messages SET size = ? WHERE mailbox = ? AND uid = ?`, size, mailbox, uid)
	return err
}

func (c *SQLiteCache) SetMsgStructure(ctx context.Context, mailbox string, uid imap.UID, serialized []byte) error {
	if err := c.ensureMessageRow(ctx, mailbox, uid); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, `UPDATE messages SET structure = ? WHERE mailbox = ? AND uid = ?`, serialized, mailbox, uid)
	return err
}

func (c *SQLiteCache) SetMsgFlags(ctx context.Context, mailbox string, uid imap.UID, flags []imap.Flag) error {
	if err := c.ensureMessageRow(ctx, mailbox, uid); err != nil {
		return err
	}
	b, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `UPDATE messages SET flags = ? WHERE mailbox = ? AND uid = ?`, string(b), mailbox, uid)
	return err
}

func (c *SQLiteCache) MessageMetadata(ctx context.Context, mailbox string, uid imap.UID) (*MessageDataBundle, error) {
	row := c.db.QueryRowContext(ctx, `SELECT envelope, size, flags, structure FROM messages WHERE mailbox = ? AND uid = ?`, mailbox, uid)
	var envelope, flags sql.NullString
	var size sql.NullInt64
	var structure []byte
	if err := row.Scan(&envelope, &size, &flags, &structure); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	bundle := &MessageDataBundle{UID: uid, Size: uint32(size.Int64), SerializedBodyStructure: structure}
	if envelope.Valid {
		var env imap.Envelope
		if err := json.Unmarshal([]byte(envelope.String), &env); err == nil {
			bundle.Envelope = &env
		}
	}
	if flags.Valid {
		json.Unmarshal([]byte(flags.String), &bundle.Flags)
	}
	return bundle, nil
}

func (c *SQLiteCache) MessagePart(ctx context.Context, mailbox string, uid imap.UID, partID string) ([]byte, error) {
	row := c.db.QueryRowContext(ctx, `SELECT data FROM parts WHERE mailbox = ? AND uid = ? AND part_id = ?`, mailbox, uid, partID)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (c *SQLiteCache) Close() error { return c.db.Close() }

var _ Cache = (*SQLiteCache)(nil)
