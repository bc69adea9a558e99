package repositories

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"
)

type ISearchIndex interface {
	Index(id uint64, sender, body string) error
	Search(ctx context.Context, terms string, limit int) ([]uint64, error)
}

// SearchIndex maintains a Bluge full-text index over message bodies.
// Indexing runs outside the ingestion critical path: a failure here is
// logged by the caller and never fails the append.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

func (s *SearchIndex) Index(id uint64, sender, body string) error {
	doc := bluge.NewDocument(strconv.FormatUint(id, 10)).
		AddField(bluge.NewTextField("sender", sender)).
		AddField(bluge.NewTextField("body", body))
	return s.writer.Update(doc.ID(), doc)
}

// Search returns the ids of messages whose body matches the terms,
// best score first.
func (s *SearchIndex) Search(ctx context.Context, terms string, limit int) ([]uint64, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	query := bluge.NewMatchQuery(terms).SetField("body")
	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var ids []uint64
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := strconv.ParseUint(string(value), 10, 64); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}
