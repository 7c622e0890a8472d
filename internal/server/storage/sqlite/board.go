package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
)

// loadStateTx собирает полное состояние доски из нормализованных таблиц
func (s *Storage) loadStateTx(ctx context.Context, tx *sql.Tx, userID string) (*models.BoardState, error) {
	state := models.NewBoardState()

	rows, err := tx.QueryContext(ctx, `
		SELECT card_id, title, description, created_by, favorite, urgency,
		       doing_started_at, doing_total_ms, images, checklist, created_at
		FROM cards WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c := &models.Card{}
		var favorite int
		var doingStarted sql.NullInt64
		var images, checklist string
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.CreatedBy,
			&favorite, &c.Urgency, &doingStarted, &c.DoingTotalMs,
			&images, &checklist, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		c.Favorite = intToBool(favorite)
		c.CreatedAt = fromMillis(createdAt)
		if doingStarted.Valid {
			t := fromMillis(doingStarted.Int64)
			c.DoingStartedAt = &t
		}
		c.Images = unmarshalImages(images)
		c.Checklist = unmarshalChecklist(checklist)
		state.Cards[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cards iteration error: %w", err)
	}

	colRows, err := tx.QueryContext(ctx, `
		SELECT col, card_id FROM card_columns
		WHERE user_id = ? ORDER BY col, sort_index`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer colRows.Close()
	for colRows.Next() {
		var col, cardID string
		if err := colRows.Scan(&col, &cardID); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		c := models.Column(col)
		if models.IsValidColumn(c) {
			state.Columns[c] = append(state.Columns[c], cardID)
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("columns iteration error: %w", err)
	}

	flRows, err := tx.QueryContext(ctx, `
		SELECT card_id, x, y, sway FROM floating_cards WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query floating cards: %w", err)
	}
	defer flRows.Close()
	for flRows.Next() {
		var cardID string
		var pos models.FloatingPos
		if err := flRows.Scan(&cardID, &pos.X, &pos.Y, &pos.Sway); err != nil {
			return nil, fmt.Errorf("failed to scan floating row: %w", err)
		}
		state.Floating[cardID] = pos
	}
	if err := flRows.Err(); err != nil {
		return nil, fmt.Errorf("floating iteration error: %w", err)
	}

	histRows, err := tx.QueryContext(ctx, `
		SELECT entry_id, ts, text, card_id, kind, meta
		FROM history WHERE user_id = ?
		ORDER BY ts DESC, entry_id DESC LIMIT ?`, userID, models.MaxHistoryEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer histRows.Close()
	for histRows.Next() {
		var e models.HistoryEntry
		var ts int64
		var meta string
		if err := histRows.Scan(&e.ID, &ts, &e.Text, &e.RelatedCardID, &e.Kind, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Timestamp = fromMillis(ts)
		_ = json.Unmarshal([]byte(meta), &e.Meta)
		state.History = append(state.History, e)
	}
	if err := histRows.Err(); err != nil {
		return nil, fmt.Errorf("history iteration error: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT next_card_seq FROM board_version WHERE user_id = ?`, userID).
		Scan(&state.NextCardSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read card seq: %w", err)
	}
	if state.NextCardSeq < 1 {
		state.NextCardSeq = 1
	}

	state.RecomputeStatuses()
	return state, nil
}

// persistStateTx записывает отличия next от prev. Комментарии карточек,
// исчезнувших из снимка, уходят в архив с причиной card-delete.
func (s *Storage) persistStateTx(ctx context.Context, tx *sql.Tx, userID string, prev, next *models.BoardState, now time.Time) error {
	for id, c := range next.Cards {
		old, existed := prev.Cards[id]
		if existed && sameCard(old, c) {
			continue
		}
		if err := s.upsertCardTx(ctx, tx, userID, c); err != nil {
			return err
		}
		if err := rebuildCardLinksTx(ctx, tx, userID, id, c.Images); err != nil {
			return err
		}
	}
	for id := range prev.Cards {
		if _, kept := next.Cards[id]; kept {
			continue
		}
		if err := s.archiveCardCommentsTx(ctx, tx, userID, id, models.ArchiveCardDelete, now); err != nil {
			return err
		}
		if err := s.removeCardRowsTx(ctx, tx, userID, id); err != nil {
			return err
		}
	}

	for _, col := range models.Columns {
		if sameIDs(prev.Columns[col], next.Columns[col]) {
			continue
		}
		if err := syncColumnTx(ctx, tx, userID, col, prev.Columns[col], next.Columns[col]); err != nil {
			return err
		}
	}

	for id, pos := range next.Floating {
		if old, ok := prev.Floating[id]; ok && old == pos {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO floating_cards (user_id, card_id, x, y, sway)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, card_id) DO UPDATE SET x=excluded.x, y=excluded.y, sway=excluded.sway`,
			userID, id, pos.X, pos.Y, pos.Sway); err != nil {
			return fmt.Errorf("failed to upsert floating card: %w", err)
		}
	}
	for id := range prev.Floating {
		if _, kept := next.Floating[id]; kept {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM floating_cards WHERE user_id = ? AND card_id = ?`, userID, id); err != nil {
			return fmt.Errorf("failed to delete floating card: %w", err)
		}
	}

	prevIDs := make(map[string]bool, len(prev.History))
	for _, e := range prev.History {
		prevIDs[e.ID] = true
	}
	nextIDs := make(map[string]bool, len(next.History))
	for _, e := range next.History {
		nextIDs[e.ID] = true
		if prevIDs[e.ID] {
			continue
		}
		if err := insertHistoryTx(ctx, tx, userID, e); err != nil {
			return err
		}
	}
	for _, e := range prev.History {
		if nextIDs[e.ID] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM history WHERE user_id = ? AND entry_id = ?`, userID, e.ID); err != nil {
			return fmt.Errorf("failed to delete history entry: %w", err)
		}
	}
	if err := pruneHistoryTx(ctx, tx, userID); err != nil {
		return err
	}

	// Счетчик id не откатывается назад
	seq := next.NextCardSeq
	if prev.NextCardSeq > seq {
		seq = prev.NextCardSeq
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE board_version SET next_card_seq = ? WHERE user_id = ?`, seq, userID); err != nil {
		return fmt.Errorf("failed to update card seq: %w", err)
	}
	return nil
}

// mutateBoard загружает состояние, применяет fn и сохраняет отличия.
// Реляционный бэкенд переиспользует ту же доменную логику, что и файловый,
// поэтому семантика мутаций у обоих совпадает по построению.
func (s *Storage) mutateBoard(ctx context.Context, userID string, expected *int64, fn func(state *models.BoardState, now time.Time) error) (int64, error) {
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := checkVersion(ctx, tx, userID, expected); err != nil {
			return err
		}
		state, err := s.loadStateTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		prev := state.Clone()
		now := s.now()
		if err := fn(state, now); err != nil {
			return err
		}
		state.RecomputeStatuses()
		if err := s.persistStateTx(ctx, tx, userID, prev, state, now); err != nil {
			return err
		}
		version, err = bumpVersion(ctx, tx, userID)
		return err
	})
	return version, err
}

// ReadBoard returns the board state and its current version.
// Отсутствующая доска читается как пустая, это не ошибка.
func (s *Storage) ReadBoard(ctx context.Context, userID string) (*models.BoardState, int64, error) {
	var state *models.BoardState
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		version, err = lockVersion(ctx, tx, userID)
		if err != nil {
			return err
		}
		state, err = s.loadStateTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return state, version, nil
}

// BoardVersion returns the current version without loading the state
func (s *Storage) BoardVersion(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		version, err = lockVersion(ctx, tx, userID)
		return err
	})
	return version, err
}

// WriteBoard replaces the full board snapshot and bumps the version
func (s *Storage) WriteBoard(ctx context.Context, userID string, state *models.BoardState, expectedVersion *int64) (int64, error) {
	return s.mutateBoard(ctx, userID, expectedVersion, func(cur *models.BoardState, now time.Time) error {
		*cur = *state.Clone()
		return nil
	})
}

// sameCard сравнивает карточки через канонический JSON
func sameCard(a, b *models.Card) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(aj) == string(bj)
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Storage) upsertCardTx(ctx context.Context, tx *sql.Tx, userID string, c *models.Card) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cards (user_id, card_id, title, description, created_by,
		                   favorite, urgency, status, doing_started_at,
		                   doing_total_ms, images, checklist, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, card_id) DO UPDATE SET
			title=excluded.title, description=excluded.description,
			created_by=excluded.created_by, favorite=excluded.favorite,
			urgency=excluded.urgency, status=excluded.status,
			doing_started_at=excluded.doing_started_at,
			doing_total_ms=excluded.doing_total_ms,
			images=excluded.images, checklist=excluded.checklist,
			created_at=excluded.created_at`,
		userID, c.ID, c.Title, c.Description, c.CreatedBy,
		boolToInt(c.Favorite), string(c.Urgency), string(c.Status),
		nullableMillis(c.DoingStartedAt), c.DoingTotalMs,
		marshalJSON(c.Images), marshalJSON(c.Checklist), toMillis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert card: %w", err)
	}
	return nil
}

// removeCardRowsTx удаляет карточку из всех таблиц размещения и ссылок
func (s *Storage) removeCardRowsTx(ctx context.Context, tx *sql.Tx, userID, cardID string) error {
	stmts := []string{
		`DELETE FROM cards WHERE user_id = ? AND card_id = ?`,
		`DELETE FROM card_columns WHERE user_id = ? AND card_id = ?`,
		`DELETE FROM floating_cards WHERE user_id = ? AND card_id = ?`,
		`DELETE FROM media_links WHERE user_id = ? AND source = 'card' AND ref_id = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, userID, cardID); err != nil {
			return fmt.Errorf("failed to remove card rows: %w", err)
		}
	}
	return nil
}

// syncColumnTx приводит членство колонки от prev к next. Одиночные
// вставка, удаление и перенос внутри колонки выполняются сдвигом
// sort_index затронутого диапазона; полная перезапись остается только
// для замены снимка целиком.
func syncColumnTx(ctx context.Context, tx *sql.Tx, userID string, col models.Column, prev, next []string) error {
	if id, idx, ok := diffSingleInsert(prev, next); ok {
		return insertAtTx(ctx, tx, userID, col, id, idx)
	}
	if id, idx, ok := diffSingleRemove(prev, next); ok {
		return removeAtTx(ctx, tx, userID, col, id, idx)
	}
	if id, from, to, ok := diffSingleMove(prev, next); ok {
		if err := removeAtTx(ctx, tx, userID, col, id, from); err != nil {
			return err
		}
		return insertAtTx(ctx, tx, userID, col, id, to)
	}
	return rewriteColumnTx(ctx, tx, userID, col, next)
}

// diffSingleInsert распознает next как prev со вставленным id
func diffSingleInsert(prev, next []string) (string, int, bool) {
	if len(next) != len(prev)+1 {
		return "", 0, false
	}
	i := 0
	for i < len(prev) && prev[i] == next[i] {
		i++
	}
	for j := i; j < len(prev); j++ {
		if prev[j] != next[j+1] {
			return "", 0, false
		}
	}
	return next[i], i, true
}

// diffSingleRemove распознает next как prev без одного id
func diffSingleRemove(prev, next []string) (string, int, bool) {
	id, idx, ok := diffSingleInsert(next, prev)
	return id, idx, ok
}

// diffSingleMove распознает перенос одного id внутри колонки
func diffSingleMove(prev, next []string) (id string, from, to int, ok bool) {
	if len(prev) != len(next) {
		return "", 0, 0, false
	}
	i := 0
	for i < len(prev) && prev[i] == next[i] {
		i++
	}
	if i == len(prev) {
		return "", 0, 0, false
	}
	j := len(prev) - 1
	for j > i && prev[j] == next[j] {
		j--
	}
	// Кандидат 1: prev[i] уехал вправо на позицию j
	if prev[i] == next[j] && sameIDs(prev[i+1:j+1], next[i:j]) {
		return prev[i], i, j, true
	}
	// Кандидат 2: prev[j] уехал влево на позицию i
	if prev[j] == next[i] && sameIDs(prev[i:j], next[i+1:j+1]) {
		return prev[j], j, i, true
	}
	return "", 0, 0, false
}

// insertAtTx раздвигает хвост колонки и ставит карточку на позицию.
// Upsert по (user_id, card_id) заодно забирает карточку из прежней
// колонки, если перенос обработали в порядке вставка-до-удаления.
func insertAtTx(ctx context.Context, tx *sql.Tx, userID string, col models.Column, cardID string, idx int) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE card_columns SET sort_index = sort_index + 1
		WHERE user_id = ? AND col = ? AND sort_index >= ?`,
		userID, string(col), idx); err != nil {
		return fmt.Errorf("failed to shift column up: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO card_columns (user_id, col, card_id, sort_index)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, card_id) DO UPDATE SET col=excluded.col, sort_index=excluded.sort_index`,
		userID, string(col), cardID, idx); err != nil {
		return fmt.Errorf("failed to insert column row: %w", err)
	}
	return nil
}

// removeAtTx убирает карточку и сдвигает хвост колонки на ее место
func removeAtTx(ctx context.Context, tx *sql.Tx, userID string, col models.Column, cardID string, idx int) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM card_columns WHERE user_id = ? AND col = ? AND card_id = ?`,
		userID, string(col), cardID); err != nil {
		return fmt.Errorf("failed to delete column row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE card_columns SET sort_index = sort_index - 1
		WHERE user_id = ? AND col = ? AND sort_index > ?`,
		userID, string(col), idx); err != nil {
		return fmt.Errorf("failed to shift column down: %w", err)
	}
	return nil
}

// rewriteColumnTx полностью переписывает членство одной колонки
func rewriteColumnTx(ctx context.Context, tx *sql.Tx, userID string, col models.Column, ids []string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM card_columns WHERE user_id = ? AND col = ?`, userID, string(col)); err != nil {
		return fmt.Errorf("failed to clear column: %w", err)
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO card_columns (user_id, col, card_id, sort_index)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, card_id) DO UPDATE SET col=excluded.col, sort_index=excluded.sort_index`,
			userID, string(col), id, i); err != nil {
			return fmt.Errorf("failed to insert column row: %w", err)
		}
	}
	return nil
}

func insertHistoryTx(ctx context.Context, tx *sql.Tx, userID string, e models.HistoryEntry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO history (user_id, entry_id, ts, text, card_id, kind, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, e.ID, toMillis(e.Timestamp), e.Text, e.RelatedCardID,
		string(e.Kind), marshalJSONObject(e.Meta)); err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

func marshalJSONObject(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// pruneHistoryTx обрезает журнал истории по лимиту (новые остаются)
func pruneHistoryTx(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM history WHERE user_id = ? AND entry_id NOT IN (
			SELECT entry_id FROM history WHERE user_id = ?
			ORDER BY ts DESC, entry_id DESC LIMIT ?
		)`, userID, userID, models.MaxHistoryEntries)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return nil
}

// rebuildCardLinksTx перестраивает media-ссылки одной карточки
func rebuildCardLinksTx(ctx context.Context, tx *sql.Tx, userID, cardID string, images []models.ImageRef) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM media_links WHERE user_id = ? AND source = 'card' AND ref_id = ?`,
		userID, cardID); err != nil {
		return fmt.Errorf("failed to clear card links: %w", err)
	}
	return insertImageLinksTx(ctx, tx, userID, "card", cardID, images)
}

// insertImageLinksTx вставляет ссылки на изображения одного источника
func insertImageLinksTx(ctx context.Context, tx *sql.Tx, userID, source, refID string, images []models.ImageRef) error {
	for _, img := range images {
		if img.FileID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO media_links (user_id, file_id, source, ref_id, size)
			VALUES (?, ?, ?, ?, ?)`,
			userID, img.FileID, source, refID, img.Size); err != nil {
			return fmt.Errorf("failed to insert media link: %w", err)
		}
		if img.PreviewID != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO media_links (user_id, file_id, source, ref_id, size)
				VALUES (?, ?, ?, ?, 0)`,
				userID, img.PreviewID, source, refID); err != nil {
				return fmt.Errorf("failed to insert preview link: %w", err)
			}
		}
	}
	return nil
}
