package storage

import (
	"context"

	"github.com/iudanet/boardkeeper/internal/models"
)

// MoveTarget описывает назначение перемещения карточки: либо колонка
// с позицией вставки, либо свободная позиция. Ровно одно из двух.
type MoveTarget struct {
	Column   *models.Column      // целевая колонка
	Index    int                 // позиция вставки; отрицательная или за границей — в конец
	Floating *models.FloatingPos // свободная позиция
}

// CardPatch описывает частичное обновление карточки.
// nil-поле означает "не трогать". Все значения уже санированы.
type CardPatch struct {
	Title       *string
	Description *string
	Urgency     *models.Urgency
	Favorite    *bool
	Images      *[]models.ImageRef
	Checklist   *[]models.ChecklistItem
}

// BoardStorage defines the backend contract for one user's board.
// Обе реализации (file и sqlite) обязаны вести себя идентично:
// каждая успешная мутация увеличивает версию доски пользователя ровно
// на единицу; expectedVersion при несовпадении дает VersionConflictError
// с актуальной версией; nil expectedVersion — безусловная запись.
type BoardStorage interface {
	// ReadBoard returns the sanitized board state and its current version.
	// Missing board reads as an empty default, never as an error.
	ReadBoard(ctx context.Context, userID string) (*models.BoardState, int64, error)

	// WriteBoard replaces the full board snapshot. The state must already
	// be sanitized. Returns the new version.
	WriteBoard(ctx context.Context, userID string, state *models.BoardState, expectedVersion *int64) (int64, error)

	// BoardVersion returns the current version without reading the state
	BoardVersion(ctx context.Context, userID string) (int64, error)

	// CreateCard assigns the next sequential id, places the card at the
	// end of the column and records a create history entry.
	CreateCard(ctx context.Context, userID string, card *models.Card, col models.Column) (*models.Card, int64, error)

	// MoveCard relocates a card between columns or to a floating position,
	// maintaining the doing timer and recording a move history entry.
	// Returns ErrCardNotFound for unknown cards.
	MoveCard(ctx context.Context, userID, cardID string, target MoveTarget, expectedVersion *int64) (*models.Card, int64, error)

	// PatchCard applies a partial update to card fields
	PatchCard(ctx context.Context, userID, cardID string, patch CardPatch, expectedVersion *int64) (*models.Card, int64, error)

	// DeleteCard removes the card, archives its comments with reason
	// card-delete and records a delete history entry.
	DeleteCard(ctx context.Context, userID, cardID string, expectedVersion *int64) (int64, error)

	// ListFavorites returns favorite cards ordered by (createdAt, id)
	ListFavorites(ctx context.Context, userID string, offset, limit int) ([]models.Card, bool, error)

	// ListComments returns live comments of a card, oldest first
	ListComments(ctx context.Context, userID, cardID string, offset, limit int) ([]models.Comment, bool, error)

	// AddComment inserts a live comment and applies the overflow rule:
	// самые старые лишние комментарии уходят в архив с причиной overflow
	AddComment(ctx context.Context, userID string, comment *models.Comment) (*models.Comment, int64, error)

	// EditComment replaces text/images of the caller's own comment.
	// Returns ErrForbidden if author does not match.
	EditComment(ctx context.Context, userID, commentID, author, text string, images []models.ImageRef) (*models.Comment, int64, error)

	// DeleteComment archives the comment with reason delete, then removes
	// it from the live set. Повторное удаление дает ErrCommentAlreadyDeleted.
	DeleteComment(ctx context.Context, userID, commentID, author string) (int64, error)

	// ListArchivedComments returns archive entries, newest archived first
	ListArchivedComments(ctx context.Context, userID string, offset, limit int) ([]models.ArchivedComment, bool, error)

	// RestoreArchivedComment re-inserts an archived comment as live,
	// re-minting the id only on collision, removes the archive entry and
	// re-applies the overflow rule.
	RestoreArchivedComment(ctx context.Context, userID, commentID string) (*models.Comment, int64, error)

	// AppendHistory appends a history entry (FIFO-capped)
	AppendHistory(ctx context.Context, userID string, entry models.HistoryEntry) (int64, error)

	// ListHistory returns history entries, most recent first
	ListHistory(ctx context.Context, userID string, offset, limit int) ([]models.HistoryEntry, bool, error)

	// ClearHistory removes all history entries
	ClearHistory(ctx context.Context, userID string) (int64, error)

	// MediaRefs returns the media file ids reachable from the board,
	// live comments and the archive, mapped to their recorded byte sizes.
	// Источник истины для GC и квоты.
	MediaRefs(ctx context.Context, userID string) (map[string]int64, error)
}
