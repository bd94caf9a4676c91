package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"songtree/internal/codec"
)

// Codec registry persistence. Extensions are stored lowercase without the
// leading dot; commands keep their registration order via the priority
// column.

func (s *SQLiteStore) RegisterCodec(c *codec.Codec) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM codecs WHERE name = ?`, c.Name).Scan(&existing); err != nil {
		return fmt.Errorf("checking for existing codec: %w", err)
	}
	if existing > 0 {
		return nil
	}

	codecID := s.idgen.New()
	_, err = tx.Exec(
		`INSERT INTO codecs (id, name, description) VALUES (?, ?, ?)`,
		codecID, c.Name, c.Description,
	)
	if err != nil {
		return fmt.Errorf("inserting codec %s: %w", c.Name, storeErr(err))
	}

	for _, ext := range c.Extensions {
		_, err = tx.Exec(
			`INSERT INTO codec_extensions (id, codec_id, extension) VALUES (?, ?, ?)`,
			s.idgen.New(), codecID, strings.ToLower(ext),
		)
		if err != nil {
			return fmt.Errorf("inserting extension %s: %w", ext, storeErr(err))
		}
	}

	for kind, commands := range map[string][]string{"encoder": c.Encoders, "decoder": c.Decoders} {
		for priority, command := range commands {
			_, err = tx.Exec(
				`INSERT INTO codec_commands (id, codec_id, kind, priority, command) VALUES (?, ?, ?, ?, ?)`,
				s.idgen.New(), codecID, kind, priority, command,
			)
			if err != nil {
				return fmt.Errorf("inserting %s command: %w", kind, storeErr(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindCodecByExtension(ext string) (*codec.Codec, error) {
	var codecID string
	var c codec.Codec
	err := s.db.QueryRow(
		`SELECT c.id, c.name, c.description
		 FROM codecs c JOIN codec_extensions e ON e.codec_id = c.id
		 WHERE e.extension = ?`,
		strings.ToLower(ext),
	).Scan(&codecID, &c.Name, &c.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding codec by extension: %w", err)
	}

	if err := s.loadCodecDetails(codecID, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) Codecs() ([]*codec.Codec, error) {
	rows, err := s.db.Query(`SELECT id, name, description FROM codecs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing codecs: %w", err)
	}
	defer rows.Close()

	var ids []string
	var codecs []*codec.Codec
	for rows.Next() {
		var id string
		var c codec.Codec
		if err := rows.Scan(&id, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scanning codec: %w", err)
		}
		ids = append(ids, id)
		codecs = append(codecs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, c := range codecs {
		if err := s.loadCodecDetails(ids[i], c); err != nil {
			return nil, err
		}
	}
	return codecs, nil
}

func (s *SQLiteStore) loadCodecDetails(codecID string, c *codec.Codec) error {
	rows, err := s.db.Query(
		`SELECT extension FROM codec_extensions WHERE codec_id = ? ORDER BY extension`,
		codecID,
	)
	if err != nil {
		return fmt.Errorf("loading extensions: %w", err)
	}
	defer rows.Close()

	c.Extensions = nil
	for rows.Next() {
		var ext string
		if err := rows.Scan(&ext); err != nil {
			return fmt.Errorf("scanning extension: %w", err)
		}
		c.Extensions = append(c.Extensions, ext)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	cmdRows, err := s.db.Query(
		`SELECT kind, command FROM codec_commands WHERE codec_id = ? ORDER BY kind, priority`,
		codecID,
	)
	if err != nil {
		return fmt.Errorf("loading commands: %w", err)
	}
	defer cmdRows.Close()

	c.Encoders, c.Decoders = nil, nil
	for cmdRows.Next() {
		var kind, command string
		if err := cmdRows.Scan(&kind, &command); err != nil {
			return fmt.Errorf("scanning command: %w", err)
		}
		switch kind {
		case "encoder":
			c.Encoders = append(c.Encoders, command)
		case "decoder":
			c.Decoders = append(c.Decoders, command)
		}
	}
	return cmdRows.Err()
}

// Compile-time check that SQLiteStore implements codec.Store.
var _ codec.Store = (*SQLiteStore)(nil)
