// Package testutil builds throwaway Zotero-schema SQLite libraries for
// tests. The schema is the subset of zotero.sqlite the database backend
// reads: items, field/value pairs, tags, creators, notes, attachments.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE itemTypes (
	itemTypeID INTEGER PRIMARY KEY,
	typeName   TEXT NOT NULL UNIQUE
);
CREATE TABLE items (
	itemID       INTEGER PRIMARY KEY,
	itemTypeID   INTEGER NOT NULL,
	dateAdded    TEXT NOT NULL DEFAULT '2024-01-01 00:00:00',
	dateModified TEXT NOT NULL DEFAULT '2024-01-01 00:00:00',
	key          TEXT NOT NULL UNIQUE,
	libraryID    INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE fields (
	fieldID   INTEGER PRIMARY KEY,
	fieldName TEXT NOT NULL UNIQUE
);
CREATE TABLE itemDataValues (
	valueID INTEGER PRIMARY KEY,
	value   TEXT
);
CREATE TABLE itemData (
	itemID  INTEGER NOT NULL,
	fieldID INTEGER NOT NULL,
	valueID INTEGER NOT NULL
);
CREATE TABLE tags (
	tagID INTEGER PRIMARY KEY,
	name  TEXT NOT NULL UNIQUE
);
CREATE TABLE itemTags (
	itemID INTEGER NOT NULL,
	tagID  INTEGER NOT NULL,
	type   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE creators (
	creatorID INTEGER PRIMARY KEY,
	firstName TEXT,
	lastName  TEXT
);
CREATE TABLE creatorTypes (
	creatorTypeID INTEGER PRIMARY KEY,
	creatorType   TEXT NOT NULL UNIQUE
);
CREATE TABLE itemCreators (
	itemID        INTEGER NOT NULL,
	creatorID     INTEGER NOT NULL,
	creatorTypeID INTEGER NOT NULL,
	orderIndex    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE itemNotes (
	itemID       INTEGER PRIMARY KEY,
	parentItemID INTEGER,
	note         TEXT,
	title        TEXT
);
CREATE TABLE itemAttachments (
	itemID       INTEGER PRIMARY KEY,
	parentItemID INTEGER,
	contentType  TEXT,
	path         TEXT
);

INSERT INTO itemTypes (typeName) VALUES
	('journalArticle'), ('book'), ('note'), ('attachment');
INSERT INTO creatorTypes (creatorType) VALUES ('author'), ('editor');
INSERT INTO fields (fieldName) VALUES
	('title'), ('abstractNote'), ('url'), ('date');
`

// Library is a seeded test database. Conn stays open for seeding until the
// test ends; readers open their own connections against Path.
type Library struct {
	Path string
	Conn *sql.DB
}

// NewLibrary creates an empty Zotero-schema database in a temp file.
func NewLibrary(t *testing.T) *Library {
	t.Helper()

	f, err := os.CreateTemp("", "zotero-test-*.sqlite")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	conn, err := sql.Open("sqlite3", f.Name())
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(schemaSQL); err != nil {
		t.Fatalf("apply fixture schema: %v", err)
	}
	return &Library{Path: f.Name(), Conn: conn}
}

// AddItem inserts a regular item with field values and tags, returning its
// row id. Empty field values are skipped.
func (l *Library) AddItem(t *testing.T, key, itemType, title, abstract string, tags ...string) int64 {
	t.Helper()

	res, err := l.Conn.Exec(`
		INSERT INTO items (itemTypeID, key)
		VALUES ((SELECT itemTypeID FROM itemTypes WHERE typeName = ?), ?)`, itemType, key)
	if err != nil {
		t.Fatalf("insert item %s: %v", key, err)
	}
	id, _ := res.LastInsertId()

	l.setField(t, id, "title", title)
	l.setField(t, id, "abstractNote", abstract)
	for _, tag := range tags {
		l.TagItem(t, id, tag)
	}
	return id
}

// SetField sets one itemData field value on an item.
func (l *Library) SetField(t *testing.T, itemID int64, field, value string) {
	t.Helper()
	l.setField(t, itemID, field, value)
}

func (l *Library) setField(t *testing.T, itemID int64, field, value string) {
	t.Helper()
	if value == "" {
		return
	}
	res, err := l.Conn.Exec(`INSERT INTO itemDataValues (value) VALUES (?)`, value)
	if err != nil {
		t.Fatalf("insert value: %v", err)
	}
	valueID, _ := res.LastInsertId()
	if _, err := l.Conn.Exec(`
		INSERT INTO itemData (itemID, fieldID, valueID)
		VALUES (?, (SELECT fieldID FROM fields WHERE fieldName = ?), ?)`,
		itemID, field, valueID); err != nil {
		t.Fatalf("insert itemData: %v", err)
	}
}

// TagItem attaches a tag (created on demand) to an item.
func (l *Library) TagItem(t *testing.T, itemID int64, tag string) {
	t.Helper()
	if _, err := l.Conn.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
		t.Fatalf("insert tag: %v", err)
	}
	if _, err := l.Conn.Exec(`
		INSERT INTO itemTags (itemID, tagID)
		VALUES (?, (SELECT tagID FROM tags WHERE name = ?))`, itemID, tag); err != nil {
		t.Fatalf("link tag: %v", err)
	}
}

// AddCreator appends a creator to an item.
func (l *Library) AddCreator(t *testing.T, itemID int64, first, last string, order int) {
	t.Helper()
	res, err := l.Conn.Exec(`INSERT INTO creators (firstName, lastName) VALUES (?, ?)`, first, last)
	if err != nil {
		t.Fatalf("insert creator: %v", err)
	}
	creatorID, _ := res.LastInsertId()
	if _, err := l.Conn.Exec(`
		INSERT INTO itemCreators (itemID, creatorID, creatorTypeID, orderIndex)
		VALUES (?, ?, (SELECT creatorTypeID FROM creatorTypes WHERE creatorType = 'author'), ?)`,
		itemID, creatorID, order); err != nil {
		t.Fatalf("link creator: %v", err)
	}
}

// AddNote attaches a note item to a parent, returning the note's row id.
func (l *Library) AddNote(t *testing.T, parentID int64, key, content string) int64 {
	t.Helper()
	res, err := l.Conn.Exec(`
		INSERT INTO items (itemTypeID, key)
		VALUES ((SELECT itemTypeID FROM itemTypes WHERE typeName = 'note'), ?)`, key)
	if err != nil {
		t.Fatalf("insert note item: %v", err)
	}
	id, _ := res.LastInsertId()
	if _, err := l.Conn.Exec(`
		INSERT INTO itemNotes (itemID, parentItemID, note) VALUES (?, ?, ?)`,
		id, parentID, content); err != nil {
		t.Fatalf("insert note content: %v", err)
	}
	return id
}

// AddPDFAttachment attaches a PDF attachment row to a parent item.
func (l *Library) AddPDFAttachment(t *testing.T, parentID int64, key string) int64 {
	t.Helper()
	res, err := l.Conn.Exec(`
		INSERT INTO items (itemTypeID, key)
		VALUES ((SELECT itemTypeID FROM itemTypes WHERE typeName = 'attachment'), ?)`, key)
	if err != nil {
		t.Fatalf("insert attachment item: %v", err)
	}
	id, _ := res.LastInsertId()
	if _, err := l.Conn.Exec(`
		INSERT INTO itemAttachments (itemID, parentItemID, contentType, path)
		VALUES (?, ?, 'application/pdf', ?)`, id, parentID, "storage:"+key+".pdf"); err != nil {
		t.Fatalf("insert attachment row: %v", err)
	}
	return id
}

// LockExclusive takes an exclusive write lock on the database for the rest
// of the test, the way the running Zotero desktop app would. Readers must
// fail immediately while it is held.
func (l *Library) LockExclusive(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := l.Conn.Conn(ctx)
	if err != nil {
		t.Fatalf("dedicated conn: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `BEGIN EXCLUSIVE`); err != nil {
		t.Fatalf("begin exclusive: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(ctx, `ROLLBACK`)
		conn.Close()
	})
}
