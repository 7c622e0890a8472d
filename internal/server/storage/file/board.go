package file

import (
	"context"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// ReadBoard returns the board state and its current version.
// Отсутствующая доска читается как пустая, это не ошибка.
func (s *Storage) ReadBoard(ctx context.Context, userID string) (*models.BoardState, int64, error) {
	var state *models.BoardState
	var version int64
	err := s.view(func(doc *document) error {
		b := doc.board(userID)
		state = b.State.Clone()
		state.RecomputeStatuses()
		version = b.Version
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return state, version, nil
}

// WriteBoard replaces the full board snapshot and bumps the version
func (s *Storage) WriteBoard(ctx context.Context, userID string, state *models.BoardState, expectedVersion *int64) (int64, error) {
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		if err := b.checkVersion(expectedVersion); err != nil {
			return err
		}
		next := state.Clone()
		next.RecomputeStatuses()
		b.State = next
		// Комментарии карточек, исчезнувших из снимка, уходят в архив
		for cardID, comments := range b.Comments {
			if _, ok := next.Cards[cardID]; ok {
				continue
			}
			b.archiveAll(comments, models.ArchiveCardDelete, s.now())
			delete(b.Comments, cardID)
		}
		b.Version++
		version = b.Version
		return nil
	})
	return version, err
}

// BoardVersion returns the current version without copying the state
func (s *Storage) BoardVersion(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := s.view(func(doc *document) error {
		version = doc.board(userID).Version
		return nil
	})
	return version, err
}

// CreateCard assigns the next sequential id and appends the card to the
// end of the column, recording a create history entry
func (s *Storage) CreateCard(ctx context.Context, userID string, card *models.Card, col models.Column) (*models.Card, int64, error) {
	var out *models.Card
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		now := s.now()
		c := *card
		c.ID = b.State.NextCardID()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now.UTC()
		}
		if c.Urgency == "" {
			c.Urgency = models.UrgencyWhite
		}
		if col == models.ColumnDoing {
			c.StartDoing(now)
		}
		b.State.Cards[c.ID] = &c
		b.State.InsertIntoColumn(c.ID, col, -1)
		b.State.AppendHistory(models.HistoryForCreate(&c, col, now))
		b.State.RecomputeStatuses()
		b.Version++
		version = b.Version
		cc := c
		out = &cc
		return nil
	})
	return out, version, err
}

// MoveCard relocates a card between columns or to a floating position
func (s *Storage) MoveCard(ctx context.Context, userID, cardID string, target storage.MoveTarget, expectedVersion *int64) (*models.Card, int64, error) {
	var out *models.Card
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		if err := b.checkVersion(expectedVersion); err != nil {
			return err
		}
		c, ok := b.State.Cards[cardID]
		if !ok {
			return storage.ErrCardNotFound
		}
		now := s.now()
		from := b.State.LocationOf(cardID)

		b.State.RemoveFromColumns(cardID)
		delete(b.State.Floating, cardID)

		var to models.CardStatus
		if target.Column != nil {
			to = models.CardStatus(*target.Column)
			b.State.InsertIntoColumn(cardID, *target.Column, target.Index)
		} else if target.Floating != nil {
			to = models.StatusFreedom
			b.State.Floating[cardID] = *target.Floating
		} else {
			// пустая цель — сирота, статус queue по фолбеку
			to = models.StatusQueue
			b.State.InsertIntoColumn(cardID, models.ColumnQueue, target.Index)
		}

		delta := c.ApplyMoveTimer(from, to, now)
		if from != to {
			b.State.AppendHistory(models.HistoryForMove(c, from, to, delta, now))
		}
		b.State.RecomputeStatuses()
		b.Version++
		version = b.Version
		cc := *c
		out = &cc
		return nil
	})
	return out, version, err
}

// PatchCard applies a partial update to card fields
func (s *Storage) PatchCard(ctx context.Context, userID, cardID string, patch storage.CardPatch, expectedVersion *int64) (*models.Card, int64, error) {
	var out *models.Card
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		if err := b.checkVersion(expectedVersion); err != nil {
			return err
		}
		c, ok := b.State.Cards[cardID]
		if !ok {
			return storage.ErrCardNotFound
		}
		if patch.Title != nil {
			c.Title = *patch.Title
		}
		if patch.Description != nil {
			c.Description = *patch.Description
		}
		if patch.Urgency != nil {
			c.Urgency = *patch.Urgency
		}
		if patch.Favorite != nil {
			c.Favorite = *patch.Favorite
		}
		if patch.Images != nil {
			c.Images = append([]models.ImageRef(nil), (*patch.Images)...)
		}
		if patch.Checklist != nil {
			c.Checklist = append([]models.ChecklistItem(nil), (*patch.Checklist)...)
		}
		b.State.RecomputeStatuses()
		b.Version++
		version = b.Version
		cc := *c
		out = &cc
		return nil
	})
	return out, version, err
}

// DeleteCard removes the card, archives its comments with reason
// card-delete and records a delete history entry
func (s *Storage) DeleteCard(ctx context.Context, userID, cardID string, expectedVersion *int64) (int64, error) {
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		if err := b.checkVersion(expectedVersion); err != nil {
			return err
		}
		c, ok := b.State.Cards[cardID]
		if !ok {
			return storage.ErrCardNotFound
		}
		now := s.now()
		from := b.State.LocationOf(cardID)

		b.archiveAll(b.Comments[cardID], models.ArchiveCardDelete, now)
		delete(b.Comments, cardID)

		b.State.RemoveFromColumns(cardID)
		delete(b.State.Floating, cardID)
		delete(b.State.Cards, cardID)
		b.State.AppendHistory(models.HistoryForDelete(c, from, now))
		b.State.RecomputeStatuses()
		b.Version++
		version = b.Version
		return nil
	})
	return version, err
}

// ListFavorites returns favorite cards ordered by (createdAt, id)
func (s *Storage) ListFavorites(ctx context.Context, userID string, offset, limit int) ([]models.Card, bool, error) {
	var out []models.Card
	var hasMore bool
	err := s.view(func(doc *document) error {
		b := doc.board(userID)
		b.State.RecomputeStatuses()
		var ids []string
		for id, c := range b.State.Cards {
			if c.Favorite {
				ids = append(ids, id)
			}
		}
		b.State.SortCardIDsByCreation(ids)
		lo, hi, more := storage.PageBounds(len(ids), offset, limit)
		hasMore = more
		for _, id := range ids[lo:hi] {
			out = append(out, *b.State.Cards[id])
		}
		return nil
	})
	return out, hasMore, err
}
