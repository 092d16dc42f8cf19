package services

import (
	"context"
	"fmt"
	"livechat/contract"
	"livechat/domain"
	"livechat/errors"
	"log/slog"
)

type IJoinService interface {
	AttemptJoin(ctx context.Context, rawName string) (domain.Participant, error)
}

// JoinService claims a display name in the roster.
// The uniqueness check and the claim are two separate store calls: two clients
// joining with the same name at the same time may both succeed.
type JoinService struct {
	store contract.Store
	log   *slog.Logger
}

func NewJoinService(store contract.Store, log *slog.Logger) *JoinService {
	return &JoinService{store: store, log: log}
}

// AttemptJoin validates the name, checks it is free, writes the presence record,
// registers its removal on disconnect and announces the arrival in the feed.
// Validation failures never reach the store.
func (s *JoinService) AttemptJoin(ctx context.Context, rawName string) (domain.Participant, error) {
	name := domain.NormalizeName(rawName)
	if err := domain.ValidateName(name); err != nil {
		return domain.Participant{}, err
	}
	key := domain.FoldKey(name)

	existing, err := s.store.Read(ctx, PresencePath, contract.Query{}.OrderByChild(fieldUsernameLower).Equal(key))
	if err != nil {
		return domain.Participant{}, connectionError("check name", err)
	}
	if existing.Exists() {
		s.log.Debug("Name already taken", "name", name)
		return domain.Participant{}, errors.ErrNameTaken
	}

	node, err := s.store.Push(ctx, PresencePath, presenceRecord(name))
	if err != nil {
		return domain.Participant{}, connectionError("claim name", err)
	}
	if err := s.store.OnDisconnectRemove(ctx, node.Ref()); err != nil {
		s.rollback(ctx, node.Ref())
		return domain.Participant{}, connectionError("register disconnect removal", err)
	}
	if _, err := s.store.Push(ctx, MessagesPath, statusRecord(domain.JoinedText(name))); err != nil {
		s.rollback(ctx, node.Ref())
		return domain.Participant{}, connectionError("announce join", err)
	}

	participant, ok := toParticipant(node)
	if !ok {
		participant = domain.NewParticipant(node.Key, name, node.Value.Time(fieldJoinedAt))
	}
	s.log.Info("Name claimed", "name", name, "id", node.Key)
	return participant, nil
}

// rollback removes a claimed record after a partial failure, best effort.
func (s *JoinService) rollback(ctx context.Context, ref contract.Ref) {
	if err := s.store.Remove(context.WithoutCancel(ctx), ref); err != nil {
		s.log.Warn("Rollback of claimed name failed", "id", ref.Key, "error", err)
	}
}

func connectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", errors.ErrConnection, op, err)
}
