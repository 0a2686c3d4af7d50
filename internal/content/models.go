package content

import (
	"time"
)

// Viewer is the account on whose behalf content is read.
type Viewer struct {
	AccountID   string
	IsModerator bool
}

type Account struct {
	ID          string
	Handle      string
	IsModerator bool
}

type Post struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	ArtURL    string    `json:"art_url"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Promoted  bool      `json:"promoted"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    int64     `json:"post_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	AuthorID  string    `json:"author_id,omitempty"`
	Depth     int       `json:"depth"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Channel string

const (
	ChannelAll      Channel = "all"
	ChannelPromoted Channel = "promoted"
	ChannelUser     Channel = "user"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelAll, ChannelPromoted, ChannelUser:
		return true
	}
	return false
}

type Sort string

const (
	SortCreatedAt   Sort = "created_at"
	SortServerOrder Sort = "server_order"
	SortRandom      Sort = "random"
)

func (s Sort) Valid() bool {
	switch s {
	case SortCreatedAt, SortServerOrder, SortRandom:
		return true
	}
	return false
}

type FeedQuery struct {
	Channel Channel
	Sort    Sort
	Seed    int64
	Offset  int
	Limit   int
}

type PostPage struct {
	Posts   []Post
	HasMore bool
}

type CommentPage struct {
	Comments []Comment
	HasMore  bool
}
