package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const documentColumns = `id, name, type, category, size, upload_date, status, content, tags, pages, created_at`

func (s *Store) SaveDocument(doc Document) error {
	tags, err := encodeList(doc.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err = s.db.Exec(`
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			category = excluded.category,
			size = excluded.size,
			upload_date = excluded.upload_date,
			status = excluded.status,
			content = excluded.content,
			tags = excluded.tags,
			pages = excluded.pages`,
		doc.ID, doc.Name, doc.Type, doc.Category, doc.Size, doc.UploadDate,
		doc.Status, doc.Content, tags, doc.Pages, formatTime(doc.CreatedAt),
	)
	return err
}

func (s *Store) GetDocument(id string) (*Document, error) {
	row := s.db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns documents in insertion order, restricted by filter.
func (s *Store) ListDocuments(filter DocumentFilter) ([]Document, error) {
	var where []string
	var args []interface{}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// MarkDocumentProcessed sets the document's status to processed and replaces its content.
func (s *Store) MarkDocumentProcessed(id, content string) error {
	res, err := s.db.Exec(`UPDATE documents SET status = ?, content = ? WHERE id = ?`,
		DocumentProcessed, content, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var tags, createdAt string
	if err := row.Scan(&doc.ID, &doc.Name, &doc.Type, &doc.Category, &doc.Size,
		&doc.UploadDate, &doc.Status, &doc.Content, &tags, &doc.Pages, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if doc.Tags, err = decodeList(tags); err != nil {
		return nil, fmt.Errorf("decoding tags for document %s: %w", doc.ID, err)
	}
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for document %s: %w", doc.ID, err)
	}
	return &doc, nil
}
