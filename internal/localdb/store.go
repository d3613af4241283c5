// Package localdb implements the library backend that reads a zotero.sqlite
// snapshot directly. The file belongs to the Zotero desktop app, so this
// backend is strictly read-only and opens a fresh read-only connection per
// logical operation: no long-lived transaction, no write lock, and an
// immediate BackendUnavailable failure when the desktop app holds the lock.
package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/swairshah/zotero-mcp-server/internal/apperr"
	"github.com/swairshah/zotero-mcp-server/internal/assemble"
	"github.com/swairshah/zotero-mcp-server/internal/library"
	"github.com/swairshah/zotero-mcp-server/internal/models"
	"github.com/swairshah/zotero-mcp-server/internal/query"
	"github.com/swairshah/zotero-mcp-server/internal/storage"
)

// Store is a read-only view over a Zotero SQLite database.
type Store struct {
	path        string
	attachments storage.Provider // nil when no storage dir is configured
}

// New creates a store for the database at path. attachments may be nil when
// PDF content is not needed. The file must exist; connectivity is not
// probed here so the server can start while the desktop app still holds
// the lock.
func New(path string, attachments storage.Provider) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("localdb: database file: %w", err)
	}
	return &Store{path: path, attachments: attachments}, nil
}

// SupportsWrite reports that the snapshot is read-only.
func (s *Store) SupportsWrite() bool { return false }

// Kind identifies this backend.
func (s *Store) Kind() string { return library.KindDatabase }

var _ library.Backend = (*Store)(nil)

// dsn opens read-only with a zero busy timeout: a lock held by the desktop
// app must fail the call immediately, not block behind a polling wait.
func (s *Store) dsn() string {
	return "file:" + s.path + "?mode=ro&_busy_timeout=0"
}

// withConn scopes one logical operation to one freshly opened connection,
// released on every exit path.
func (s *Store) withConn(ctx context.Context, fn func(*sql.DB) error) error {
	conn, err := sql.Open("sqlite3", s.dsn())
	if err != nil {
		return fmt.Errorf("localdb: open: %w", err)
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return translate(err)
	}
	if err := fn(conn); err != nil {
		return translate(err)
	}
	return nil
}

// translate maps SQLite failures into the error taxonomy. Errors already
// carrying a taxonomy sentinel pass through untouched.
func translate(err error) error {
	for _, sentinel := range []error{apperr.ErrNotFound, apperr.ErrInvalidQuery, apperr.ErrUnavailable} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && (serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: database is locked by another process (close the Zotero desktop app and retry)", apperr.ErrUnavailable)
	}
	return fmt.Errorf("localdb: %w", err)
}

// Ping opens a throwaway connection and counts items. Used at startup for
// an informational log; a lock here is reported, not fatal.
func (s *Store) Ping(ctx context.Context) (int, error) {
	var count int
	err := s.withConn(ctx, func(conn *sql.DB) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	})
	return count, err
}

// fieldValue is a scalar subquery pulling one itemData field by name.
// Zotero stores item metadata as field/value pairs, not columns.
const fieldValue = `
	(SELECT idv.value
	 FROM itemData id
	 JOIN itemDataValues idv ON id.valueID = idv.valueID
	 JOIN fields f ON id.fieldID = f.fieldID
	 WHERE id.itemID = i.itemID AND f.fieldName = '%s')`

var itemSelect = fmt.Sprintf(`
	SELECT
		i.itemID,
		i.key,
		i.dateAdded,
		i.dateModified,
		it.typeName,
		%s AS title,
		%s AS abstract,
		%s AS url,
		%s AS date
	FROM items i
	JOIN itemTypes it ON i.itemTypeID = it.itemTypeID
	WHERE it.typeName NOT IN ('attachment', 'note')`,
	fmt.Sprintf(fieldValue, "title"),
	fmt.Sprintf(fieldValue, "abstractNote"),
	fmt.Sprintf(fieldValue, "url"),
	fmt.Sprintf(fieldValue, "date"),
)

// Search joins the item, field, and tag tables. An item matches when it
// carries every filter tag and, if a text fragment is set, its title or
// abstract contains it case-insensitively. Results come back in internal
// row order (itemID), the snapshot's stable insertion order; cross-backend
// order equivalence is explicitly not promised.
func (s *Store) Search(ctx context.Context, f query.Filter) ([]models.Item, error) {
	q := itemSelect
	var args []any

	if f.Text != "" {
		q += fmt.Sprintf(`
	AND (%s LIKE ? ESCAPE '\' OR %s LIKE ? ESCAPE '\')`,
			fmt.Sprintf(fieldValue, "title"),
			fmt.Sprintf(fieldValue, "abstractNote"))
		like := "%" + escapeLike(f.Text) + "%"
		args = append(args, like, like)
	}
	for range f.Tags {
		q += `
	AND EXISTS (SELECT 1 FROM itemTags itg
	            JOIN tags t ON itg.tagID = t.tagID
	            WHERE itg.itemID = i.itemID AND LOWER(t.name) = ?)`
	}
	for _, tag := range f.Tags {
		args = append(args, tag)
	}
	q += `
	ORDER BY i.itemID`

	var items []models.Item
	err := s.withConn(ctx, func(conn *sql.DB) error {
		rows, err := s.itemRows(ctx, conn, q, args...)
		if err != nil {
			return err
		}
		items = assemble.ItemsFromRows(rows, f.Limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// escapeLike backslash-escapes LIKE wildcards so the caller's fragment
// matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// GetItem looks an item up by key.
func (s *Store) GetItem(ctx context.Context, key string) (models.Item, error) {
	var item models.Item
	err := s.withConn(ctx, func(conn *sql.DB) error {
		rows, err := s.itemRows(ctx, conn, itemSelect+`
	AND i.key = ?`, key)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("%w: item %s", apperr.ErrNotFound, key)
		}
		item = assemble.ItemFromRow(rows[0])
		return nil
	})
	if err != nil {
		return models.Item{}, err
	}
	return item, nil
}

// GetNotes returns all notes attached to key in dateAdded order. A missing
// parent key is NotFound; a parent without notes is an empty slice.
func (s *Store) GetNotes(ctx context.Context, key string) ([]models.Note, error) {
	var notes []models.Note
	err := s.withConn(ctx, func(conn *sql.DB) error {
		parentID, err := s.itemID(ctx, conn, key)
		if err != nil {
			return err
		}

		rows, err := conn.QueryContext(ctx, `
			SELECT i.itemID, i.key, itn.note, i.dateAdded
			FROM items i
			JOIN itemNotes itn ON i.itemID = itn.itemID
			WHERE itn.parentItemID = ?
			ORDER BY i.dateAdded`, parentID)
		if err != nil {
			return fmt.Errorf("query notes: %w", err)
		}
		defer rows.Close()

		type rawNote struct {
			id  int64
			row assemble.NoteRow
		}
		var raw []rawNote
		for rows.Next() {
			var n rawNote
			var note sql.NullString
			if err := rows.Scan(&n.id, &n.row.Key, &note, &n.row.DateAdded); err != nil {
				return err
			}
			n.row.Content = note.String
			n.row.ParentKey = key
			raw = append(raw, n)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		noteRows := make([]assemble.NoteRow, 0, len(raw))
		for _, n := range raw {
			tags, err := s.itemTags(ctx, conn, n.id)
			if err != nil {
				return err
			}
			n.row.Tags = tags
			noteRows = append(noteRows, n.row)
		}
		notes, err = assemble.NotesFromRows(noteRows)
		return err
	})
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

// AddNote always fails: the snapshot is read-only, and concurrent writers
// would corrupt the desktop app's database.
func (s *Store) AddNote(_ context.Context, _, _ string, _ []string) (models.Note, error) {
	return models.Note{}, fmt.Errorf("%w: the local database snapshot is read-only", apperr.ErrUnsupported)
}

// GetPDF finds the item's first PDF attachment row and reads the file from
// the storage directory.
func (s *Store) GetPDF(ctx context.Context, itemKey string) (library.PDF, error) {
	if s.attachments == nil {
		return library.PDF{}, fmt.Errorf("%w: no storage directory configured", apperr.ErrUnsupported)
	}

	var attKey string
	err := s.withConn(ctx, func(conn *sql.DB) error {
		parentID, err := s.itemID(ctx, conn, itemKey)
		if err != nil {
			return err
		}
		err = conn.QueryRowContext(ctx, `
			SELECT i.key
			FROM items i
			JOIN itemAttachments ia ON i.itemID = ia.itemID
			WHERE ia.parentItemID = ? AND ia.contentType = 'application/pdf'
			ORDER BY i.dateAdded
			LIMIT 1`, parentID).Scan(&attKey)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no pdf attachment for item %s", apperr.ErrNotFound, itemKey)
		}
		return err
	})
	if err != nil {
		return library.PDF{}, err
	}

	data, _, err := s.attachments.FindPDF(attKey)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return library.PDF{}, fmt.Errorf("%w: attachment %s has no pdf on disk", apperr.ErrNotFound, attKey)
		}
		return library.PDF{}, err
	}
	return library.PDF{AttachmentKey: attKey, Data: data}, nil
}

// itemID resolves a key to its rowid; NotFound when absent.
func (s *Store) itemID(ctx context.Context, conn *sql.DB, key string) (int64, error) {
	var id int64
	err := conn.QueryRowContext(ctx, `SELECT itemID FROM items WHERE key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: item %s", apperr.ErrNotFound, key)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// itemRows runs an itemSelect-shaped query and enriches each row with its
// creators, tags, and attachments.
func (s *Store) itemRows(ctx context.Context, conn *sql.DB, q string, args ...any) ([]assemble.ItemRow, error) {
	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	type rawItem struct {
		id  int64
		row assemble.ItemRow
	}
	var raw []rawItem
	for rows.Next() {
		var r rawItem
		var title, abstract, urlField, date sql.NullString
		if err := rows.Scan(&r.id, &r.row.Key, &r.row.DateAdded, &r.row.DateModified,
			&r.row.ItemType, &title, &abstract, &urlField, &date); err != nil {
			return nil, err
		}
		r.row.Title = title.String
		r.row.Abstract = abstract.String
		r.row.URL = urlField.String
		r.row.Date = date.String
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]assemble.ItemRow, 0, len(raw))
	for _, r := range raw {
		if r.row.Creators, err = s.itemCreators(ctx, conn, r.id); err != nil {
			return nil, err
		}
		if r.row.Tags, err = s.itemTags(ctx, conn, r.id); err != nil {
			return nil, err
		}
		if r.row.Attachments, err = s.itemAttachments(ctx, conn, r.id); err != nil {
			return nil, err
		}
		out = append(out, r.row)
	}
	return out, nil
}

func (s *Store) itemCreators(ctx context.Context, conn *sql.DB, itemID int64) ([]models.Creator, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT c.firstName, c.lastName, ct.creatorType
		FROM itemCreators ic
		JOIN creators c ON ic.creatorID = c.creatorID
		JOIN creatorTypes ct ON ic.creatorTypeID = ct.creatorTypeID
		WHERE ic.itemID = ?
		ORDER BY ic.orderIndex`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query creators: %w", err)
	}
	defer rows.Close()

	var out []models.Creator
	for rows.Next() {
		var c models.Creator
		var first, last sql.NullString
		if err := rows.Scan(&first, &last, &c.CreatorType); err != nil {
			return nil, err
		}
		c.FirstName = first.String
		c.LastName = last.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) itemTags(ctx context.Context, conn *sql.DB, itemID int64) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT t.name
		FROM itemTags itg
		JOIN tags t ON itg.tagID = t.tagID
		WHERE itg.itemID = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) itemAttachments(ctx context.Context, conn *sql.DB, itemID int64) ([]models.Attachment, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT i.key, ia.path, ia.contentType
		FROM items i
		JOIN itemAttachments ia ON i.itemID = ia.itemID
		WHERE ia.parentItemID = ?
		ORDER BY i.dateAdded`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		var a models.Attachment
		var path, contentType sql.NullString
		if err := rows.Scan(&a.Key, &path, &contentType); err != nil {
			return nil, err
		}
		a.Path = path.String
		a.ContentType = contentType.String
		out = append(out, a)
	}
	return out, rows.Err()
}
