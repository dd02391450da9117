package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"painscope/internal/fault"
	"painscope/internal/model"
)

const pageSize = 100 // provider maximum per listing page

// complaintIndicators is the fixed keyword set used to retain comments that
// look like complaints. Matching is case-insensitive substring.
var complaintIndicators = []string{
	"hate", "frustrated", "annoying", "terrible",
	"worst", "awful", "disappointed", "wish there was",
	"sucks", "useless", "broken", "doesn't work",
	"pain", "problem", "issue", "bug", "fail",
}

// HasComplaintIndicators reports whether text contains at least one term
// from the complaint-keyword set.
func HasComplaintIndicators(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range complaintIndicators {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// matchKeyword returns the first keyword contained in text, case-insensitive.
func matchKeyword(text string, keywords []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// Wire shapes. Reddit wraps everything in kind/data envelopes; only the
// fields the pipeline needs are decoded, defensively.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	CreatedUTC  float64 `json:"created_utc"`
	Stickied    bool    `json:"stickied"`
}

type commentData struct {
	ID          string          `json:"id"`
	Body        string          `json:"body"`
	Author      string          `json:"author"`
	Permalink   string          `json:"permalink"`
	Subreddit   string          `json:"subreddit"`
	Score       int             `json:"score"`
	CreatedUTC  float64         `json:"created_utc"`
	IsSubmitter bool            `json:"is_submitter"`
	Replies     json.RawMessage `json:"replies"` // listing or ""
}

// FetchPosts retrieves posts from a community in the provider's native order
// for the given sort mode, bounded by limit. The window applies only to
// top/controversial. When keywords is non-empty, only posts whose text
// contains at least one keyword are returned, so volume is bounded before
// anything reaches the store.
func (c *Client) FetchPosts(ctx context.Context, community string, sort model.SortMode, keywords []string, limit int, window model.TimeWindow) ([]model.RawItem, error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/r/%s/%s", url.PathEscape(community), string(sort))

	var items []model.RawItem
	after := ""
	seen := 0
	for seen < limit {
		q := url.Values{}
		page := limit - seen
		if page > pageSize {
			page = pageSize
		}
		q.Set("limit", strconv.Itoa(page))
		q.Set("raw_json", "1")
		if after != "" {
			q.Set("after", after)
		}
		if window != "" && (sort == model.SortTop || sort == model.SortControversial) {
			q.Set("t", string(window))
		}

		var lst listing
		if err := c.getJSON(ctx, path, q, &lst); err != nil {
			return nil, err
		}
		if len(lst.Data.Children) == 0 {
			break
		}
		for _, ch := range lst.Data.Children {
			if ch.Kind != "t3" {
				continue
			}
			var p postData
			if err := json.Unmarshal(ch.Data, &p); err != nil || p.ID == "" {
				continue // malformed child; skip, don't abort the listing
			}
			seen++
			content := strings.TrimSpace(p.Title + "\n\n" + p.Selftext)
			matched := ""
			if len(keywords) > 0 {
				kw, ok := matchKeyword(content, keywords)
				if !ok {
					continue
				}
				matched = kw
			}
			meta := map[string]any{
				"upvote_ratio": p.UpvoteRatio,
				"num_comments": p.NumComments,
				"sort_mode":    string(sort),
				"created_utc":  int64(p.CreatedUTC),
			}
			if matched != "" {
				meta["keyword_matched"] = matched
			}
			// ScrapedAt is the fetch time, not the post's creation time, so
			// downstream batches walk items in scrape order.
			items = append(items, model.RawItem{
				Source:         model.SourceRedditPost,
				SourceID:       p.ID,
				Content:        content,
				Author:         p.Author,
				URL:            "https://reddit.com" + p.Permalink,
				Community:      p.Subreddit,
				UpstreamScore:  p.Score,
				SourceMetadata: meta,
				ScrapedAt:      time.Now().UTC(),
			})
			if seen >= limit {
				break
			}
		}
		if lst.Data.After == "" {
			break
		}
		after = lst.Data.After
	}
	slog.Info("reddit: fetched posts", "community", community, "sort", sort, "kept", len(items), "seen", seen)
	return items, nil
}

// FetchComments walks a post's comment tree and retains only comments that
// pass the complaint-indicator heuristic and the minimum upstream score.
// Depth and is-original-poster are recorded in source metadata.
func (c *Client) FetchComments(ctx context.Context, postID string, limit, minUpstreamScore int) ([]model.RawItem, error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/comments/%s", url.PathEscape(postID))
	q := url.Values{"raw_json": {"1"}}

	// The endpoint returns a two-element array: the post listing, then the
	// comment tree.
	var payload []listing
	if err := c.getJSON(ctx, path, q, &payload); err != nil {
		return nil, err
	}
	if len(payload) < 2 {
		return nil, fault.Validationf("reddit: comments payload for %s has %d listings", postID, len(payload))
	}

	var items []model.RawItem
	walked := 0
	var walk func(children []thing, depth int)
	walk = func(children []thing, depth int) {
		for _, ch := range children {
			if walked >= limit {
				return
			}
			if ch.Kind != "t1" {
				continue // "more" stubs are not expanded
			}
			var cm commentData
			if err := json.Unmarshal(ch.Data, &cm); err != nil || cm.ID == "" {
				continue
			}
			walked++
			if cm.Score >= minUpstreamScore && HasComplaintIndicators(cm.Body) {
				items = append(items, model.RawItem{
					Source:        model.SourceRedditComment,
					SourceID:      cm.ID,
					Content:       cm.Body,
					Author:        cm.Author,
					URL:           "https://reddit.com" + cm.Permalink,
					Community:     cm.Subreddit,
					UpstreamScore: cm.Score,
					SourceMetadata: map[string]any{
						"parent_post_id": postID,
						"depth":          depth,
						"is_submitter":   cm.IsSubmitter,
						"created_utc":    int64(cm.CreatedUTC),
					},
					ScrapedAt: time.Now().UTC(),
				})
			}
			// Replies is "" for leaves; only descend into real listings.
			if len(cm.Replies) > 2 {
				var rl listing
				if err := json.Unmarshal(cm.Replies, &rl); err == nil {
					walk(rl.Data.Children, depth+1)
				}
			}
		}
	}
	walk(payload[1].Data.Children, 0)
	slog.Info("reddit: fetched complaint comments", "post", postID, "kept", len(items), "walked", walked)
	return items, nil
}

type aboutData struct {
	DisplayName       string  `json:"display_name"`
	Title             string  `json:"title"`
	PublicDescription string  `json:"public_description"`
	Subscribers       int     `json:"subscribers"`
	ActiveUserCount   int     `json:"active_user_count"`
	CreatedUTC        float64 `json:"created_utc"`
	Over18            bool    `json:"over18"`
}

type rulesResponse struct {
	Rules []struct {
		ShortName   string `json:"short_name"`
		Description string `json:"description"`
		Kind        string `json:"kind"`
	} `json:"rules"`
}

type flairTemplate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// CommunityMetadata returns community details for ingestion discovery. It is
// a pure read with no side effect on the store. Flairs and rules are
// best-effort; their endpoints often require extra scopes.
func (c *Client) CommunityMetadata(ctx context.Context, community string) (*model.CommunityMetadata, error) {
	var about thing
	if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/about", url.PathEscape(community)), url.Values{"raw_json": {"1"}}, &about); err != nil {
		return nil, err
	}
	var a aboutData
	if err := json.Unmarshal(about.Data, &a); err != nil {
		return nil, fault.Validationf("reddit: decode about for %s: %w", community, err)
	}
	if a.DisplayName == "" {
		return nil, fault.Validationf("reddit: about for %s missing display_name", community)
	}

	md := &model.CommunityMetadata{
		Name:        a.DisplayName,
		Title:       a.Title,
		Description: a.PublicDescription,
		Subscribers: a.Subscribers,
		ActiveUsers: a.ActiveUserCount,
		CreatedAt:   time.Unix(int64(a.CreatedUTC), 0).UTC(),
		NSFW:        a.Over18,
		URL:         "https://reddit.com/r/" + a.DisplayName,
	}

	var rules rulesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/about/rules", url.PathEscape(community)), nil, &rules); err == nil {
		for _, r := range rules.Rules {
			md.Rules = append(md.Rules, model.Rule{ShortName: r.ShortName, Description: r.Description, Kind: r.Kind})
		}
	} else {
		slog.Debug("reddit: rules fetch failed", "community", community, "error", err)
	}

	var flairs []flairTemplate
	if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/api/link_flair_v2", url.PathEscape(community)), nil, &flairs); err == nil {
		for _, f := range flairs {
			md.Flairs = append(md.Flairs, model.Flair{ID: f.ID, Text: f.Text})
		}
	} else {
		slog.Debug("reddit: flair fetch failed", "community", community, "error", err)
	}

	return md, nil
}
