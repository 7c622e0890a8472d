package sqlite

import (
	"context"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// CreateCard assigns the next sequential id and appends the card to the
// end of the column, recording a create history entry
func (s *Storage) CreateCard(ctx context.Context, userID string, card *models.Card, col models.Column) (*models.Card, int64, error) {
	var out *models.Card
	version, err := s.mutateBoard(ctx, userID, nil, func(state *models.BoardState, now time.Time) error {
		c := *card
		c.ID = state.NextCardID()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now.UTC()
		}
		if c.Urgency == "" {
			c.Urgency = models.UrgencyWhite
		}
		if col == models.ColumnDoing {
			c.StartDoing(now)
		}
		state.Cards[c.ID] = &c
		state.InsertIntoColumn(c.ID, col, -1)
		state.AppendHistory(models.HistoryForCreate(&c, col, now))
		// Статус пересчитывается до снятия копии, иначе наружу
		// уйдет карточка с пустым статусом
		state.RecomputeStatuses()
		cc := c
		out = &cc
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, version, nil
}

// MoveCard relocates a card between columns or to a floating position
func (s *Storage) MoveCard(ctx context.Context, userID, cardID string, target storage.MoveTarget, expectedVersion *int64) (*models.Card, int64, error) {
	var out *models.Card
	version, err := s.mutateBoard(ctx, userID, expectedVersion, func(state *models.BoardState, now time.Time) error {
		c, ok := state.Cards[cardID]
		if !ok {
			return storage.ErrCardNotFound
		}
		from := state.LocationOf(cardID)

		state.RemoveFromColumns(cardID)
		delete(state.Floating, cardID)

		var to models.CardStatus
		if target.Column != nil {
			to = models.CardStatus(*target.Column)
			state.InsertIntoColumn(cardID, *target.Column, target.Index)
		} else if target.Floating != nil {
			to = models.StatusFreedom
			state.Floating[cardID] = *target.Floating
		} else {
			// пустая цель — сирота, статус queue по фолбеку
			to = models.StatusQueue
			state.InsertIntoColumn(cardID, models.ColumnQueue, target.Index)
		}

		delta := c.ApplyMoveTimer(from, to, now)
		if from != to {
			state.AppendHistory(models.HistoryForMove(c, from, to, delta, now))
		}
		// Копия снимается после пересчета: статус уже новой позиции
		state.RecomputeStatuses()
		cc := *c
		out = &cc
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, version, nil
}

// PatchCard applies a partial update to card fields
func (s *Storage) PatchCard(ctx context.Context, userID, cardID string, patch storage.CardPatch, expectedVersion *int64) (*models.Card, int64, error) {
	var out *models.Card
	version, err := s.mutateBoard(ctx, userID, expectedVersion, func(state *models.BoardState, now time.Time) error {
		c, ok := state.Cards[cardID]
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
		cc := *c
		out = &cc
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, version, nil
}

// DeleteCard removes the card, archives its comments with reason
// card-delete and records a delete history entry
func (s *Storage) DeleteCard(ctx context.Context, userID, cardID string, expectedVersion *int64) (int64, error) {
	return s.mutateBoard(ctx, userID, expectedVersion, func(state *models.BoardState, now time.Time) error {
		c, ok := state.Cards[cardID]
		if !ok {
			return storage.ErrCardNotFound
		}
		from := state.LocationOf(cardID)
		state.RemoveFromColumns(cardID)
		delete(state.Floating, cardID)
		delete(state.Cards, cardID)
		state.AppendHistory(models.HistoryForDelete(c, from, now))
		return nil
	})
}

// ListFavorites returns favorite cards ordered by (createdAt, id)
func (s *Storage) ListFavorites(ctx context.Context, userID string, offset, limit int) ([]models.Card, bool, error) {
	state, _, err := s.ReadBoard(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	var ids []string
	for id, c := range state.Cards {
		if c.Favorite {
			ids = append(ids, id)
		}
	}
	state.SortCardIDsByCreation(ids)
	lo, hi, hasMore := storage.PageBounds(len(ids), offset, limit)
	var out []models.Card
	for _, id := range ids[lo:hi] {
		out = append(out, *state.Cards[id])
	}
	return out, hasMore, nil
}
