package services

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"chatwire/domain"
	"chatwire/errors"
	"chatwire/store"

	"github.com/samber/lo"
)

type ISocialService interface {
	CreateGroup(ownerID int64, name string) (int64, error)
	MyGroups(userID int64) ([]string, error)
	Invite(inviterID int64, groupName, inviteeUsername string) (int64, error)
	PendingInvites(userID int64) ([]string, error)
	RespondInvite(userID, inviteID int64, accept bool) error
	AddFriend(fromID int64, toUsername, message string) (int64, error)
	FriendRequests(userID int64) ([]string, error)
	RespondFriend(userID, requestID int64, accept bool) error
	Friends(userID int64) ([]string, error)
}

// SocialService covers group and friendship management. Mutations leave
// pending invite/request rows for the counterpart to act on.
type SocialService struct {
	users   store.IUserRepository
	groups  store.IGroupRepository
	friends store.IFriendRepository
	log     *slog.Logger
}

func NewSocialService(
	users store.IUserRepository,
	groups store.IGroupRepository,
	friends store.IFriendRepository,
	log *slog.Logger,
) ISocialService {
	return &SocialService{
		users:   users,
		groups:  groups,
		friends: friends,
		log:     log,
	}
}

func (s *SocialService) CreateGroup(ownerID int64, name string) (int64, error) {
	groupID, err := s.groups.Create(name, ownerID)
	if err != nil {
		return 0, err
	}
	s.log.Info("Group created", "name", name, "owner_id", ownerID)
	return groupID, nil
}

func (s *SocialService) MyGroups(userID int64) ([]string, error) {
	groups, err := s.groups.ListForUser(userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(groups, func(g domain.Group, _ int) string { return g.Name }), nil
}

func (s *SocialService) Invite(inviterID int64, groupName, inviteeUsername string) (int64, error) {
	group, err := s.groups.GetByName(groupName)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return 0, errors.ErrNotGroupMember
		}
		return 0, err
	}
	member, err := s.groups.IsMember(group.ID, inviterID)
	if err != nil {
		return 0, err
	}
	if !member {
		return 0, errors.ErrNotGroupMember
	}

	invitee, err := s.users.GetByUsername(inviteeUsername)
	if err != nil {
		return 0, err
	}
	return s.groups.CreateInvite(group.ID, invitee.ID, inviterID)
}

func (s *SocialService) PendingInvites(userID int64) ([]string, error) {
	invites, err := s.groups.PendingInvitesFor(userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(invites, func(inv domain.GroupInvite, _ int) string {
		return fmt.Sprintf("%d group=%d from=%d", inv.ID, inv.GroupID, inv.InviterID)
	}), nil
}

func (s *SocialService) RespondInvite(userID, inviteID int64, accept bool) error {
	invite, err := s.groups.GetInvite(inviteID)
	if err != nil {
		return err
	}
	if invite.InviteeID != userID || invite.Status != domain.StatusPending {
		return errors.ErrNotFound
	}

	status := domain.StatusRejected
	if accept {
		status = domain.StatusAccepted
	}
	if err = s.groups.SetInviteStatus(inviteID, status); err != nil {
		return err
	}
	if accept {
		return s.groups.AddMember(invite.GroupID, userID)
	}
	return nil
}

func (s *SocialService) AddFriend(fromID int64, toUsername, message string) (int64, error) {
	to, err := s.users.GetByUsername(toUsername)
	if err != nil {
		return 0, err
	}
	if to.ID == fromID {
		return 0, errors.ErrMalformedCommand
	}
	return s.friends.CreateRequest(fromID, to.ID, message)
}

func (s *SocialService) FriendRequests(userID int64) ([]string, error) {
	requests, err := s.friends.PendingRequestsFor(userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(requests, func(fr domain.FriendRequest, _ int) string {
		return fmt.Sprintf("%d from=%d %s", fr.ID, fr.FromID, fr.Message)
	}), nil
}

func (s *SocialService) RespondFriend(userID, requestID int64, accept bool) error {
	request, err := s.friends.GetRequest(requestID)
	if err != nil {
		return err
	}
	if request.ToID != userID || request.Status != domain.StatusPending {
		return errors.ErrNotFound
	}

	status := domain.StatusRejected
	if accept {
		status = domain.StatusAccepted
	}
	if err = s.friends.SetRequestStatus(requestID, status); err != nil {
		return err
	}
	if accept {
		return s.friends.AddFriendship(request.FromID, request.ToID)
	}
	return nil
}

func (s *SocialService) Friends(userID int64) ([]string, error) {
	return s.friends.ListFriendUsernames(userID)
}
