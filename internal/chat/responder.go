package chat

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"study-buddy/internal/config"
	"study-buddy/internal/platform/logger"
)

// ErrBusy is returned when a message is sent while a reply is pending.
var ErrBusy = errors.New("a reply is already pending")

// Greeting opens every conversation.
const Greeting = "I'm your AI assistant. I've analyzed the content and can answer questions about it. What would you like to know?"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type rule struct {
	all   []string
	any   []string
	reply string
}

// rules are checked in order against the lower-cased input.
var rules = []rule{
	{
		all:   []string{"what", "about"},
		reply: "The discussion covers artificial intelligence and its applications in everyday life, including voice assistants, recommendation systems, and healthcare diagnostics.",
	},
	{
		any:   []string{"define", "what is ai"},
		reply: "According to the discussion, AI refers to computer systems designed to perform tasks that typically require human intelligence, including learning, reasoning, problem-solving, perception, and language understanding.",
	},
	{
		any:   []string{"example", "application"},
		reply: "AI is used in many everyday applications including voice assistants like Siri and Alexa, recommendation systems on streaming platforms and e-commerce sites, email spam filters, navigation apps, and increasingly in healthcare for diagnostics.",
	},
}

const fallbackReply = "Based on the content, AI is becoming increasingly integrated into our daily lives through various applications. The discussion emphasizes the importance of understanding AI's capabilities and impact on society."

// Reply returns the scripted answer to input.
func Reply(input string) string {
	lower := strings.ToLower(input)
	for _, r := range rules {
		if r.matches(lower) {
			return r.reply
		}
	}
	return fallbackReply
}

func (r rule) matches(lower string) bool {
	if len(r.all) > 0 {
		for _, word := range r.all {
			if !strings.Contains(lower, word) {
				return false
			}
		}
		return true
	}
	for _, word := range r.any {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// Conversation is the chat tab of one results page.
type Conversation struct {
	delay  time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	messages []Message
	pending  bool
}

// NewConversation starts a conversation with the greeting. A negative delay
// uses the default.
func NewConversation(delay time.Duration, l *slog.Logger) *Conversation {
	if delay < 0 {
		delay = config.DefaultChatDelay
	}
	c := &Conversation{
		delay:  delay,
		logger: logger.OrDefault(l),
		now:    time.Now,
	}
	c.messages = []Message{c.message(RoleAssistant, Greeting)}
	return c
}

// Messages returns a snapshot of the history.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Pending reports whether a reply is being prepared.
func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Send appends the user message, waits the reply delay, and appends exactly
// one reply. The wait cannot be interrupted, so a user message is never left
// without its reply. Blank input is ignored and returns ok == false.
func (c *Conversation) Send(input string) (Message, bool, error) {
	if strings.TrimSpace(input) == "" {
		return Message{}, false, nil
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return Message{}, false, ErrBusy
	}
	c.pending = true
	c.messages = append(c.messages, c.message(RoleUser, input))
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
	}()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	reply := c.message(RoleAssistant, Reply(input))
	c.mu.Lock()
	c.messages = append(c.messages, reply)
	c.mu.Unlock()

	c.logger.Debug("chat reply", "message_id", reply.ID)
	return reply, true, nil
}

func (c *Conversation) message(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: c.now().UTC(),
	}
}
