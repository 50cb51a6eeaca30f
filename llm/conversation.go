package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// conversation holds the ordered, role-tagged turns of one report chat:
// one system turn, then alternating user/assistant turns. Histories are
// never truncated; callers owning long-lived conversations apply their own
// cap.
type conversation struct {
	id       string
	messages []Message
	created  time.Time
}

// ConversationStore manages multi-turn conversations keyed by opaque id.
type ConversationStore struct {
	mu     sync.Mutex
	convs  map[string]*conversation
	client *Client
	logger *slog.Logger
}

// NewConversationStore creates a store backed by the given client.
func NewConversationStore(client *Client, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		convs:  make(map[string]*conversation),
		client: client,
		logger: logger,
	}
}

// reportSystemPrompt frames the whole conversation around one report.
const reportSystemPrompt = `Sei un assistente finanziario esperto che risponde a domande basate sul seguente report finanziario.
Il report contiene analisi finanziaria, ottimizzazioni suggerite, scenari e raccomandazioni.
Tutte le sezioni sono interdipendenti. Considera sempre il contesto completo nelle tue risposte.

REPORT COMPLETO:
%s

Rispondi alle domande dell'utente in modo chiaro basandoti sulle informazioni contenute nel report.`

// Init starts a new conversation seeded with the report context and returns
// its id.
func (s *ConversationStore) Init(reportContext string) string {
	id := "conv_" + uuid.New().String()

	s.mu.Lock()
	s.convs[id] = &conversation{
		id: id,
		messages: []Message{
			{Role: RoleSystem, Content: fmt.Sprintf(reportSystemPrompt, reportContext)},
		},
		created: time.Now(),
	}
	s.mu.Unlock()

	s.logger.Info("Initialized report conversation", "conversation_id", id)
	return id
}

// Send appends the question as a user turn, requests a completion over the
// full history, appends the answer as an assistant turn, and returns it.
// On provider failure nothing is appended and the error is surfaced.
func (s *ConversationStore) Send(ctx context.Context, id, question string) (string, error) {
	s.mu.Lock()
	conv, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("send to %s: %w", id, ErrConversationNotFound)
	}
	history := append(make([]Message, 0, len(conv.messages)+1), conv.messages...)
	history = append(history, Message{Role: RoleUser, Content: question})
	s.mu.Unlock()

	answer, err := s.client.CompleteMessages(ctx, history, CompletionOptions{Strict: true})
	if err != nil {
		return "", fmt.Errorf("conversation %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok = s.convs[id]
	if !ok {
		// Deleted while the request was in flight; the answer still stands.
		return answer, nil
	}
	conv.messages = append(conv.messages,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer},
	)
	return answer, nil
}

// Delete removes a conversation. Returns false if the id is unknown.
func (s *ConversationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return false
	}
	delete(s.convs, id)
	s.logger.Info("Deleted conversation", "conversation_id", id)
	return true
}

// Len returns the number of live conversations.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// History returns a copy of a conversation's messages, or nil if unknown.
func (s *ConversationStore) History(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil
	}
	out := make([]Message, len(conv.messages))
	copy(out, conv.messages)
	return out
}
