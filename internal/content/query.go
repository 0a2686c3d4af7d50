package content

import (
	"fmt"
	"strings"
)

const postColumns = "p.id, p.owner_id, p.title, p.art_url, p.width, p.height, p.promoted, p.created_at"

type queryBuilder struct {
	where     []string
	args      []any
	nextIndex int
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{nextIndex: 1}
}

func (qb *queryBuilder) placeholder(value any) string {
	p := fmt.Sprintf("$%d", qb.nextIndex)
	qb.nextIndex++
	qb.args = append(qb.args, value)
	return p
}

func (qb *queryBuilder) and(cond string) {
	qb.where = append(qb.where, cond)
}

// visibilityClause is the public feed filter. Moderators see everything and
// owners always see their own posts.
func visibilityClause(qb *queryBuilder, viewer Viewer, alias string) {
	if viewer.IsModerator {
		return
	}
	public := fmt.Sprintf("(%[1]s.visible AND NOT %[1]s.hidden_by_mod AND NOT %[1]s.non_conformant)", alias)
	if !pgUUID(viewer.AccountID).Valid {
		qb.and(public)
		return
	}
	qb.and(fmt.Sprintf("(%s OR %s.owner_id = %s)", public, alias, qb.placeholder(pgUUID(viewer.AccountID))))
}

// buildFeedQuery selects limit+1 rows so the caller can tell whether
// another page exists.
func buildFeedQuery(viewer Viewer, q FeedQuery) (string, []any) {
	qb := newQueryBuilder()
	visibilityClause(qb, viewer, "p")

	switch q.Channel {
	case ChannelPromoted:
		qb.and("p.promoted")
	case ChannelUser:
		qb.and(fmt.Sprintf("p.owner_id = %s", qb.placeholder(pgUUID(viewer.AccountID))))
	}

	var orderBy string
	switch q.Sort {
	case SortServerOrder:
		orderBy = "p.id ASC"
	case SortRandom:
		orderBy = fmt.Sprintf("md5(p.id::text || ':' || %s::text), p.id", qb.placeholder(q.Seed))
	default:
		orderBy = "p.created_at DESC, p.id DESC"
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(postColumns)
	sb.WriteString(" FROM posts p")
	if len(qb.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(qb.where, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)
	limit := qb.placeholder(q.Limit + 1)
	offset := qb.placeholder(q.Offset)
	sb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset))

	return sb.String(), qb.args
}

// buildPostQuery fetches one post if viewer may see it.
func buildPostQuery(viewer Viewer, postID int64) (string, []any) {
	qb := newQueryBuilder()
	qb.and(fmt.Sprintf("p.id = %s", qb.placeholder(postID)))
	visibilityClause(qb, viewer, "p")
	return "SELECT " + postColumns + " FROM posts p WHERE " + strings.Join(qb.where, " AND "), qb.args
}
