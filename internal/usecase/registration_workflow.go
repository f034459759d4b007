package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/evvec/ps-tracker/internal/domain/roster"
	"github.com/evvec/ps-tracker/internal/platform/logging"
)

// Messenger is the conversational transport port. SendPrompt carries a
// cancellation affordance and returns the emitted message id so the
// affordance can be retracted later; retraction is best-effort.
type Messenger interface {
	SendPrompt(ctx context.Context, chatID int64, text string) (int64, error)
	SendText(ctx context.Context, chatID int64, text string) error
	RetractAffordance(ctx context.Context, chatID, messageID int64) error
}

// IDValidator is the slice of the statistics port the workflow needs to
// admit an external id into the registry.
type IDValidator interface {
	ValidateID(ctx context.Context, externalID string) error
}

type sessionState string

const (
	stateAwaitingName       sessionState = "awaiting_name"
	stateAwaitingExternalID sessionState = "awaiting_external_id"
	stateDeletionAwaiting   sessionState = "deletion_awaiting_name"
)

type sessionKey struct {
	chatID      int64
	requesterID int64
}

// workflowSession stages untrusted multi-turn input before the single
// atomic registry commit. Destroyed on commit, cancellation, or an
// explicit cancel from the requester; never expires implicitly.
type workflowSession struct {
	requesterID       int64
	chatID            int64
	state             sessionState
	pendingName       string
	trackedMessageIDs []int64
}

// User-facing replies. Specific over generic: a requester must be able to
// tell "invalid id" apart from "service down" apart from "name taken".
const (
	msgPromptName        = "Send the player's display name (25 characters max). Tap below to cancel."
	msgPromptExternalID  = "Now send the player's Omeda City id. Tap below to cancel."
	msgPromptDeletion    = "Send the display name of the player to remove. Tap below to cancel."
	msgNameTooLong       = "That name is longer than 25 characters, try a shorter one."
	msgNameEmpty         = "A display name cannot be empty, try again."
	msgInvalidExternalID = "That Omeda City id does not exist, check it and send again."
	msgServiceDown       = "The statistics service is temporarily unreachable, send the id again in a moment."
	msgDuplicatePlayer   = "A player with that name is already tracked in this chat."
	msgPlayerAdded       = "Player registered. Current average score: %.2f"
	msgPlayerRemoved     = "Player %q removed."
	msgPlayerNotFound    = "No tracked player named %q in this chat."
	msgStoreFailure      = "Could not save the player, please start over."
	msgWaitYourTurn      = "Another registration is in progress, wait for it to finish."
	msgCancelled         = "Cancelled."
	msgNothingToCancel   = "You have no registration in progress."
)

// RegistrationService drives the add-player and delete-player finite
// state machines. Sessions are keyed by (chat, requester) so concurrent
// workflows of different requesters in one chat never interfere.
type RegistrationService struct {
	mu       sync.Mutex
	sessions map[sessionKey]*workflowSession

	rosterSvc *RosterService
	validator IDValidator
	provider  StatsProvider
	messenger Messenger
	logger    *logging.Logger
}

func NewRegistrationService(
	rosterSvc *RosterService,
	provider StatsProvider,
	messenger Messenger,
	logger *logging.Logger,
) *RegistrationService {
	if logger == nil {
		logger = logging.Default()
	}

	return &RegistrationService{
		sessions:  make(map[sessionKey]*workflowSession),
		rosterSvc: rosterSvc,
		validator: provider,
		provider:  provider,
		messenger: messenger,
		logger:    logger,
	}
}

// StartRegistration opens an add-player session for the requester and
// emits the name prompt.
func (s *RegistrationService) StartRegistration(ctx context.Context, chatID, requesterID int64) error {
	return s.startSession(ctx, chatID, requesterID, stateAwaitingName, msgPromptName)
}

// StartDeletion opens the parallel, simpler deletion workflow.
func (s *RegistrationService) StartDeletion(ctx context.Context, chatID, requesterID int64) error {
	return s.startSession(ctx, chatID, requesterID, stateDeletionAwaiting, msgPromptDeletion)
}

func (s *RegistrationService) startSession(ctx context.Context, chatID, requesterID int64, state sessionState, prompt string) error {
	ctx, span := startUsecaseSpan(ctx, "RegistrationService.StartSession")
	defer span.End()

	key := sessionKey{chatID: chatID, requesterID: requesterID}

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok {
		// Restarting replaces the previous session; its affordances are
		// retracted so stale cancel buttons cannot linger.
		tracked := append([]int64(nil), existing.trackedMessageIDs...)
		delete(s.sessions, key)
		s.mu.Unlock()
		s.retractTracked(ctx, chatID, tracked)
		s.mu.Lock()
	}
	session := &workflowSession{
		requesterID: requesterID,
		chatID:      chatID,
		state:       state,
	}
	s.sessions[key] = session
	s.mu.Unlock()

	messageID, err := s.messenger.SendPrompt(ctx, chatID, prompt)
	if err != nil {
		s.destroySession(key)
		return fmt.Errorf("send prompt: %w", err)
	}

	s.mu.Lock()
	if current, ok := s.sessions[key]; ok {
		current.trackedMessageIDs = append(current.trackedMessageIDs, messageID)
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "workflow session started",
		"chat_id", chatID,
		"requester_id", requesterID,
		"state", string(state),
	)

	return nil
}

// HandleMessage feeds inbound chat text into the requester's session.
// Returns false when no session in the chat cares about the message.
func (s *RegistrationService) HandleMessage(ctx context.Context, chatID, actorID int64, text string) (bool, error) {
	ctx, span := startUsecaseSpan(ctx, "RegistrationService.HandleMessage")
	defer span.End()

	key := sessionKey{chatID: chatID, requesterID: actorID}

	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok {
		foreignActive := s.chatHasSessionLocked(chatID)
		s.mu.Unlock()
		if !foreignActive {
			return false, nil
		}
		// Someone else's workflow is mid-flight; their state stays
		// untouched and the intruder gets a wait notice.
		return true, s.messenger.SendText(ctx, chatID, msgWaitYourTurn)
	}
	state := session.state
	s.mu.Unlock()

	switch state {
	case stateAwaitingName:
		return true, s.handleNameInput(ctx, key, text)
	case stateAwaitingExternalID:
		return true, s.handleExternalIDInput(ctx, key, text)
	case stateDeletionAwaiting:
		return true, s.handleDeletionInput(ctx, key, text)
	default:
		s.destroySession(key)
		return false, fmt.Errorf("unknown workflow state %q", state)
	}
}

func (s *RegistrationService) handleNameInput(ctx context.Context, key sessionKey, text string) error {
	name := strings.TrimSpace(text)
	if name == "" {
		return s.messenger.SendText(ctx, key.chatID, msgNameEmpty)
	}
	if len([]rune(name)) > roster.MaxDisplayNameLen {
		// Reject and hold the state, the requester can retry.
		return s.messenger.SendText(ctx, key.chatID, msgNameTooLong)
	}

	s.retractSessionAffordances(ctx, key)

	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	session.pendingName = name
	session.state = stateAwaitingExternalID
	s.mu.Unlock()

	messageID, err := s.messenger.SendPrompt(ctx, key.chatID, msgPromptExternalID)
	if err != nil {
		return fmt.Errorf("send external id prompt: %w", err)
	}

	s.mu.Lock()
	if current, ok := s.sessions[key]; ok {
		current.trackedMessageIDs = append(current.trackedMessageIDs, messageID)
	}
	s.mu.Unlock()

	return nil
}

func (s *RegistrationService) handleExternalIDInput(ctx context.Context, key sessionKey, text string) error {
	externalID := strings.TrimSpace(text)
	if externalID == "" || len(externalID) > roster.MaxExternalIDLen {
		return s.messenger.SendText(ctx, key.chatID, msgInvalidExternalID)
	}

	if err := s.validator.ValidateID(ctx, externalID); err != nil {
		if errors.Is(err, ErrDependencyUnavailable) {
			return s.messenger.SendText(ctx, key.chatID, msgServiceDown)
		}
		return s.messenger.SendText(ctx, key.chatID, msgInvalidExternalID)
	}

	// Commit point. Whatever happens past here, the session dies: a
	// failed commit must not leave a stale session blocking a retry.
	defer s.destroySession(key)
	s.retractSessionAffordances(ctx, key)

	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	pendingName := session.pendingName
	s.mu.Unlock()

	baseline, err := s.provider.AverageScore(ctx, externalID)
	if err != nil {
		s.logger.WarnContext(ctx, "baseline fetch failed at commit, storing zero",
			"external_id", externalID,
			"error", err,
		)
		baseline = 0
	}

	_, err = s.rosterSvc.AddPlayer(ctx, AddPlayerInput{
		ChatID:        key.chatID,
		DisplayName:   pendingName,
		ExternalID:    externalID,
		BaselineScore: baseline,
	})
	switch {
	case err == nil:
		return s.messenger.SendText(ctx, key.chatID, fmt.Sprintf(msgPlayerAdded, baseline))
	case errors.Is(err, ErrConflict):
		return s.messenger.SendText(ctx, key.chatID, msgDuplicatePlayer)
	case errors.Is(err, ErrInvalidInput):
		return s.messenger.SendText(ctx, key.chatID, msgNameTooLong)
	default:
		s.logger.ErrorContext(ctx, "player commit failed",
			"chat_id", key.chatID,
			"display_name", pendingName,
			"error", err,
		)
		return s.messenger.SendText(ctx, key.chatID, msgStoreFailure)
	}
}

func (s *RegistrationService) handleDeletionInput(ctx context.Context, key sessionKey, text string) error {
	name := strings.TrimSpace(text)
	if name == "" {
		return s.messenger.SendText(ctx, key.chatID, msgNameEmpty)
	}

	defer s.destroySession(key)
	s.retractSessionAffordances(ctx, key)

	err := s.rosterSvc.RemovePlayer(ctx, key.chatID, name)
	switch {
	case err == nil:
		return s.messenger.SendText(ctx, key.chatID, fmt.Sprintf(msgPlayerRemoved, name))
	case errors.Is(err, ErrNotFound):
		return s.messenger.SendText(ctx, key.chatID, fmt.Sprintf(msgPlayerNotFound, name))
	default:
		s.logger.ErrorContext(ctx, "player removal failed",
			"chat_id", key.chatID,
			"display_name", name,
			"error", err,
		)
		return s.messenger.SendText(ctx, key.chatID, msgStoreFailure)
	}
}

// Cancel aborts the actor's own session from any state. Cancelling
// without a session is reported, not ignored.
func (s *RegistrationService) Cancel(ctx context.Context, chatID, actorID int64) error {
	ctx, span := startUsecaseSpan(ctx, "RegistrationService.Cancel")
	defer span.End()

	key := sessionKey{chatID: chatID, requesterID: actorID}

	s.mu.Lock()
	_, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return s.messenger.SendText(ctx, chatID, msgNothingToCancel)
	}

	s.retractSessionAffordances(ctx, key)
	s.destroySession(key)

	s.logger.InfoContext(ctx, "workflow session cancelled",
		"chat_id", chatID,
		"requester_id", actorID,
	)

	return s.messenger.SendText(ctx, chatID, msgCancelled)
}

// ActiveSessions reports the number of live workflow sessions.
func (s *RegistrationService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *RegistrationService) chatHasSessionLocked(chatID int64) bool {
	for key := range s.sessions {
		if key.chatID == chatID {
			return true
		}
	}
	return false
}

func (s *RegistrationService) destroySession(key sessionKey) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

// retractSessionAffordances removes cancel buttons from every prompt the
// session has emitted so far. Failures are swallowed: a stale affordance
// is cosmetic, blocking the workflow on it is not.
func (s *RegistrationService) retractSessionAffordances(ctx context.Context, key sessionKey) {
	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	tracked := session.trackedMessageIDs
	session.trackedMessageIDs = nil
	s.mu.Unlock()

	s.retractTracked(ctx, key.chatID, tracked)
}

func (s *RegistrationService) retractTracked(ctx context.Context, chatID int64, messageIDs []int64) {
	for _, messageID := range messageIDs {
		if err := s.messenger.RetractAffordance(ctx, chatID, messageID); err != nil {
			s.logger.DebugContext(ctx, "affordance retraction failed",
				"chat_id", chatID,
				"message_id", messageID,
				"error", err,
			)
		}
	}
}
