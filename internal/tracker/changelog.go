package tracker

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

const statusField = "status"

// Extractor достаёт события смены статуса из истории задачи.
type Extractor struct {
	client *Client
	log    zerolog.Logger
}

// NewExtractor создаёт экстрактор поверх общего клиента.
func NewExtractor(client *Client, log zerolog.Logger) *Extractor {
	return &Extractor{
		client: client,
		log:    log.With().Str("component", "changelog").Logger(),
	}
}

// Extract возвращает события в порядке получения. Полная встроенная история
// используется как есть, иначе история запрашивается постранично.
// Битые записи пропускаются с предупреждением, пустой результат допустим.
func (e *Extractor) Extract(ctx context.Context, rec models.IssueRecord) ([]models.TransitionEvent, []models.Warning, error) {
	entries := rec.History
	if !rec.HistoryComplete {
		fetched, err := e.fetchAll(ctx, rec.Issue.Key)
		if err != nil {
			return nil, nil, err
		}
		entries = fetched
	}
	events, warnings := ToEvents(rec.Issue.Key, entries)
	return events, warnings, nil
}

func (e *Extractor) fetchAll(ctx context.Context, key string) ([]models.HistoryEntry, error) {
	pageSize := e.client.PageSize()
	path := "/issue/" + url.PathEscape(key) + "/changelog"

	var entries []models.HistoryEntry
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("startAt", strconv.Itoa(offset))
		q.Set("maxResults", strconv.Itoa(pageSize))

		var page changelogPage
		attempts, err := e.client.getJSON(ctx, path, q, &page)
		if err != nil {
			return nil, classify(ctx, "changelog", key, offset, attempts, err)
		}

		entries = append(entries, page.Values...)
		offset += len(page.Values)
		if page.IsLast != nil && *page.IsLast {
			break
		}
		if lastPage(len(page.Values), pageSize, page.MaxResults, offset, page.Total) {
			break
		}
	}
	e.log.Debug().Str("issue", key).Int("entries", len(entries)).Msg("changelog fetched")
	return entries, nil
}

// ToEvents выбирает из истории изменения поля status.
func ToEvents(issueKey string, entries []models.HistoryEntry) ([]models.TransitionEvent, []models.Warning) {
	var (
		events   []models.TransitionEvent
		warnings []models.Warning
	)
	seq := 0
	for _, entry := range entries {
		items := statusItems(entry.Items)
		if len(items) == 0 {
			continue
		}
		at, err := parseTime(entry.Created)
		if err != nil {
			warnings = append(warnings, domain.NewMalformedRecordWarning(issueKey, "history %s skipped: %v", entry.ID, err))
			continue
		}
		for _, item := range items {
			if item.To == nil || strings.TrimSpace(*item.To) == "" {
				warnings = append(warnings, domain.NewMalformedRecordWarning(issueKey, "history %s: status change without destination skipped", entry.ID))
				continue
			}
			ev := models.TransitionEvent{
				IssueKey: issueKey,
				At:       at,
				To:       strings.TrimSpace(*item.To),
				Seq:      seq,
			}
			if item.From != nil && strings.TrimSpace(*item.From) != "" {
				from := strings.TrimSpace(*item.From)
				ev.From = &from
			}
			events = append(events, ev)
			seq++
		}
	}
	return events, warnings
}

func statusItems(items []models.HistoryItem) []models.HistoryItem {
	var out []models.HistoryItem
	for _, item := range items {
		if strings.EqualFold(item.Field, statusField) {
			out = append(out, item)
		}
	}
	return out
}
