package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// PersistentCommentOptions drive UpsertPersistentComment.
type PersistentCommentOptions struct {
	// Marker is the hidden HTML comment identifying the persistent comment.
	Marker string
	// Body is the full new comment body; the marker is appended if absent.
	Body string
	// UpdateHeader, when non-empty, is appended under the title of an edited
	// comment (e.g. "updated until commit abc123").
	UpdateHeader string
	// Notify posts a small comment linking to the updated persistent comment.
	Notify bool
	// Name is the human name of the artifact, used in the notification.
	Name string
}

// UpsertPersistentComment finds the PR comment carrying the marker and edits
// it in place, or creates it when absent. Returns the comment id.
func UpsertPersistentComment(ctx context.Context, p Provider, opts PersistentCommentOptions) (int64, error) {
	body := opts.Body
	if !strings.Contains(body, opts.Marker) {
		body += "\n" + opts.Marker + "\n"
	}

	comments, err := p.ListComments(ctx)
	if err != nil {
		return 0, err
	}

	for _, c := range comments {
		if !strings.Contains(c.Body, opts.Marker) {
			continue
		}
		edited := body
		if opts.UpdateHeader != "" {
			edited = insertUpdateHeader(body, opts.UpdateHeader)
		}
		if err := p.EditComment(ctx, c.ID, edited); err != nil {
			return 0, err
		}
		if opts.Notify {
			note := fmt.Sprintf("**[%s](%s)** was updated", opts.Name, p.GetCommentLink(c.ID))
			if _, err := p.PublishComment(ctx, note, false); err != nil {
				slog.Warn("Failed to post update notification", "error", err)
			}
		}
		return c.ID, nil
	}

	return p.PublishComment(ctx, body, false)
}

// insertUpdateHeader places the header after the first line so the comment
// title stays on top.
func insertUpdateHeader(body, header string) string {
	idx := strings.Index(body, "\n")
	if idx < 0 {
		return body + "\n" + header
	}
	return body[:idx+1] + header + "\n" + body[idx+1:]
}

