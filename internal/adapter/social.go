package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/vaultwork/orchestrator/internal/retry"
	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// SocialTransport posts one message to a platform. The real
// implementation is headless-browser automation against each platform's
// web UI, explicitly out of scope per spec.md §1 — only
// SocialRecordingTransport is provided in-repo.
type SocialTransport interface {
	Post(ctx context.Context, platform, body string) (postID string, err error)
}

// SocialRecordingTransport records social posts, parallel to the email
// RecordingTransport.
type SocialRecordingTransport struct {
	mu    sync.Mutex
	Posts []RecordedPost
	Err   error
}

// RecordedPost captures one call to a SocialRecordingTransport.
type RecordedPost struct {
	Platform, Body string
}

func (t *SocialRecordingTransport) Post(ctx context.Context, platform, body string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return "", t.Err
	}
	t.Posts = append(t.Posts, RecordedPost{Platform: platform, Body: body})
	return fmt.Sprintf("post-%d", len(t.Posts)), nil
}

// SocialAdapter dispatches notes of type "social_post_approval".
type SocialAdapter struct {
	transport SocialTransport
	bucket    *retry.TokenBucket

	mu         sync.Mutex
	dispatched map[string]bool
}

// NewSocialAdapter builds a SocialAdapter, gated by bucket (the
// "social_post" channel, 3/hour per spec.md §4.3).
func NewSocialAdapter(transport SocialTransport, bucket *retry.TokenBucket) *SocialAdapter {
	return &SocialAdapter{transport: transport, bucket: bucket, dispatched: make(map[string]bool)}
}

// Applies matches notes declaring a social-post approval and any
// per-platform post_to_<platform> action.
func (a *SocialAdapter) Applies(noteType, action string) bool {
	if noteType != "social_post_approval" {
		return false
	}
	return len(action) > len("post_to_") && action[:len("post_to_")] == "post_to_"
}

// Dispatch posts the note's body to the platform named in its action
// (post_to_twitter → twitter), acquiring a rate-limit token first.
func (a *SocialAdapter) Dispatch(ctx context.Context, entry vault.Entry, note vault.Note) (Outcome, error) {
	a.mu.Lock()
	if a.dispatched[entry.Stem] {
		a.mu.Unlock()
		return Sent, nil
	}
	a.mu.Unlock()

	const prefix = "post_to_"
	platform := note.Preamble.Action[len(prefix):]

	if a.bucket != nil {
		if err := a.bucket.TryAcquire("social_post"); err != nil {
			return Deferred, err
		}
	}

	if _, err := a.transport.Post(ctx, platform, note.Body); err != nil {
		if vaulterrors.Classify(err) == vaulterrors.KindTransient {
			return Deferred, err
		}
		return Rejected, err
	}

	a.mu.Lock()
	a.dispatched[entry.Stem] = true
	a.mu.Unlock()
	return Sent, nil
}
