package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notice is a transient user-visible message. Notices auto-expire; the
// matching log entries stay in the activity buffer for audit.
type Notice struct {
	ID       string    `json:"id"`
	Tone     LogTone   `json:"tone"`
	Message  string    `json:"message"`
	PostedAt time.Time `json:"posted_at"`

	expiresAt time.Time
}

// NoticeCenter holds the currently visible notices. Expired notices are
// pruned lazily on read.
type NoticeCenter struct {
	mu      sync.Mutex
	ttl     time.Duration
	notices []Notice
	now     func() time.Time
}

// NewNoticeCenter creates a center whose notices live for ttl
func NewNoticeCenter(ttl time.Duration) *NoticeCenter {
	return &NoticeCenter{ttl: ttl, now: time.Now}
}

// Post publishes a transient notice
func (c *NoticeCenter) Post(tone LogTone, message string) Notice {
	now := c.now()
	notice := Notice{
		ID:        uuid.New().String(),
		Tone:      tone,
		Message:   message,
		PostedAt:  now,
		expiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, notice)
	return notice
}

// Active returns the notices that have not yet expired, oldest first
func (c *NoticeCenter) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	kept := c.notices[:0]
	for _, notice := range c.notices {
		if notice.expiresAt.After(now) {
			kept = append(kept, notice)
		}
	}
	c.notices = kept

	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}
