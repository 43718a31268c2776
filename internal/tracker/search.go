package tracker

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

const searchFields = "key,created,updated,status,priority,assignee,reporter,timespent,timetracking,resolutiondate"

// Fetcher постранично выбирает задачи через /search.
type Fetcher struct {
	client *Client
	log    zerolog.Logger
}

// NewFetcher создаёт выборку поверх общего клиента.
func NewFetcher(client *Client, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		log:    log.With().Str("component", "fetcher").Logger(),
	}
}

// BuildJQL формирует запрос с устойчивым порядком, чтобы страницы не перекрывались.
func BuildJQL(q models.Query) (string, error) {
	project := strings.TrimSpace(q.Project)
	if !domain.ValidProjectKey(project) {
		return "", domain.NewInvalidQueryError(fmt.Sprintf("invalid project key %q", q.Project))
	}
	jql := fmt.Sprintf("project = %q", project)
	if extra := strings.TrimSpace(q.JQL); extra != "" {
		jql += " AND (" + extra + ")"
	}
	return jql + " ORDER BY created ASC, key ASC", nil
}

// Issues возвращает ленивую, конечную и одноразовую последовательность записей.
//
// Некритичные ошибки (errors.Is(err, domain.ErrMalformedRecord)) отдаются с пустой
// записью, и последовательность продолжается. Любая другая ошибка — последняя:
// AuthError сразу, RetrievalError после исчерпания повторов, ошибка контекста при отмене.
// Повторный обход отдаёт domain.ErrSequenceConsumed.
func (f *Fetcher) Issues(ctx context.Context, query models.Query) iter.Seq2[models.IssueRecord, error] {
	var consumed atomic.Bool
	return func(yield func(models.IssueRecord, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(models.IssueRecord{}, domain.ErrSequenceConsumed)
			return
		}
		jql, err := BuildJQL(query)
		if err != nil {
			yield(models.IssueRecord{}, err)
			return
		}

		pageSize := f.client.PageSize()
		seen := make(map[string]struct{})
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(models.IssueRecord{}, err)
				return
			}

			page, err := f.searchPage(ctx, jql, offset, pageSize)
			if err != nil {
				yield(models.IssueRecord{}, err)
				return
			}
			f.log.Debug().Int("offset", offset).Int("returned", len(page.Issues)).Msg("search page fetched")

			for _, raw := range page.Issues {
				rec, err := parseIssue(raw)
				if err == nil {
					if _, dup := seen[rec.Issue.Key]; dup {
						err = domain.NewMalformedRecordError(rec.Issue.Key, "duplicate issue across pages")
					} else {
						seen[rec.Issue.Key] = struct{}{}
					}
				}
				if err != nil {
					if !yield(models.IssueRecord{}, err) {
						return
					}
					continue
				}
				if !yield(rec, nil) {
					return
				}
			}

			offset += len(page.Issues)
			if lastPage(len(page.Issues), pageSize, page.MaxResults, offset, page.Total) {
				return
			}
		}
	}
}

// lastPage решает, была ли страница последней. Если сервер урезал maxResults,
// короткой считается страница короче урезанного размера.
func lastPage(returned, requested, served, offset int, total *int) bool {
	if returned == 0 {
		return true
	}
	if total != nil && offset >= *total {
		return true
	}
	effective := requested
	if served > 0 && served < requested {
		effective = served
	}
	return returned < effective
}

func (f *Fetcher) searchPage(ctx context.Context, jql string, offset, pageSize int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("startAt", strconv.Itoa(offset))
	q.Set("maxResults", strconv.Itoa(pageSize))
	q.Set("fields", searchFields)
	if f.client.opts.ExpandChangelog {
		q.Set("expand", "changelog")
	}

	var page searchResponse
	attempts, err := f.client.getJSON(ctx, "/search", q, &page)
	if err != nil {
		return nil, classify(ctx, "search", "", offset, attempts, err)
	}
	return &page, nil
}
