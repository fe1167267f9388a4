/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package activityhandler

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/quillpub/quill/internal/pkg/log"
	store "github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

// Outbox handles the side effects of activities posted by local users.
type Outbox struct {
	*handler
}

// NewOutbox returns a new outbox activity handler.
func NewOutbox(cfg *Config, s store.Store) *Outbox {
	h := &Outbox{
		handler: newHandler(cfg, s),
	}

	h.undoHandlers[vocab.TypeFollow] = h.undoFollow
	h.undoHandlers[vocab.TypeLike] = h.undoLike
	h.undoHandlers[vocab.TypeAnnounce] = h.undoAnnounce
	h.undoHandlers[vocab.TypeAccept] = h.undoAccept
	h.undoHandlers[vocab.TypeBlock] = h.undoBlock

	return h
}

// HandleActivity applies the outgoing side effects of the given activity, which was
// posted to the outbox of the given local actor.
func (h *Outbox) HandleActivity(ownerIRI *url.URL, activity *vocab.ActivityType) error {
	typeProp := activity.Type()

	switch {
	case typeProp.Is(vocab.TypeCreate):
		return h.handleCreateActivity(activity)
	case typeProp.Is(vocab.TypeUpdate):
		return h.handleUpdateActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeDelete):
		return h.handleDeleteActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeFollow):
		return h.handleFollowActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeAccept):
		return h.handleAcceptActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeReject):
		return h.handleRejectActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeLike):
		return h.handleLikeActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeAnnounce):
		return h.handleAnnounceActivity(activity)
	case typeProp.Is(vocab.TypeAdd):
		return h.mutateOwnedCollection(ownerIRI, activity, true)
	case typeProp.Is(vocab.TypeRemove):
		return h.mutateOwnedCollection(ownerIRI, activity, false)
	case typeProp.Is(vocab.TypeBlock):
		return h.handleBlockActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeUndo):
		return h.handleUndoActivity(ownerIRI, activity)
	default:
		// Other activity types have no outgoing side effects.
		h.notify(activity)

		return nil
	}
}

func (h *Outbox) handleCreateActivity(create *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Create' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(create.ID()))

	if err := h.persistObject(create); err != nil {
		return err
	}

	h.notify(create)

	return nil
}

func (h *Outbox) handleUpdateActivity(ownerIRI *url.URL, update *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Update' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(update.ID()))

	if err := h.replaceObject(ownerIRI, update.Object().Object()); err != nil {
		return err
	}

	h.notify(update)

	return nil
}

func (h *Outbox) handleDeleteActivity(ownerIRI *url.URL, del *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Delete' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(del.ID()))

	objIRI := objectIRI(del)
	if objIRI == nil {
		return fmt.Errorf("no object specified in 'Delete' activity [%s]", del.ID())
	}

	if err := h.deleteObject(ownerIRI, objIRI); err != nil {
		return err
	}

	h.notify(del)

	return nil
}

// handleFollowActivity records an outgoing Follow request as pending. The target is
// added to the owner's following collection when the Accept arrives.
func (h *Outbox) handleFollowActivity(ownerIRI *url.URL, follow *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Follow' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(follow.ID()))

	targetIRI := follow.Object().IRI()
	if targetIRI == nil {
		return fmt.Errorf("no IRI specified in 'object' field of the 'Follow' activity [%s]", follow.ID())
	}

	if err := h.store.AddReference(store.FollowRequest, ownerIRI, targetIRI); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store pending follow request: %w", err))
	}

	h.notify(follow)

	return nil
}

// handleAcceptActivity accepts a follow request that was received in the owner's
// inbox: the requesting actor becomes a follower.
func (h *Outbox) handleAcceptActivity(ownerIRI *url.URL, accept *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Accept' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(accept.ID()))

	follower, err := h.validateFollowReply(ownerIRI, accept)
	if err != nil || follower == nil {
		return err
	}

	err = h.store.DeleteReference(store.FollowRequest, ownerIRI, follower)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete pending follow request: %w", err))
	}

	if err := h.store.AddReference(store.Follower, ownerIRI, follower); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store new follower: %w", err))
	}

	h.notify(accept)

	return nil
}

// handleRejectActivity rejects a follow request that was received in the owner's
// inbox. The requesting actor is never added to the followers collection.
func (h *Outbox) handleRejectActivity(ownerIRI *url.URL, reject *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Reject' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(reject.ID()))

	follower, err := h.validateFollowReply(ownerIRI, reject)
	if err != nil || follower == nil {
		return err
	}

	err = h.store.DeleteReference(store.FollowRequest, ownerIRI, follower)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete pending follow request: %w", err))
	}

	h.notify(reject)

	return nil
}

// validateFollowReply validates the Follow embedded in an outgoing Accept or Reject
// and returns the IRI of the actor that requested the follow. A nil IRI (with no
// error) means the activity should be ignored.
func (h *Outbox) validateFollowReply(ownerIRI *url.URL, activity *vocab.ActivityType) (*url.URL, error) {
	follow := activity.Object().Activity()
	if follow == nil {
		return nil, fmt.Errorf("no 'Follow' activity specified in the 'object' field of activity [%s]",
			activity.ID())
	}

	if !follow.Type().Is(vocab.TypeFollow) {
		return nil, fmt.Errorf("the 'object' field of activity [%s] must be a 'Follow' type", activity.ID())
	}

	follower := follow.Actor()
	if follower == nil {
		return nil, fmt.Errorf("no actor specified in the 'Follow' activity of activity [%s]", activity.ID())
	}

	targetIRI := follow.Object().IRI()
	if targetIRI == nil || targetIRI.String() != ownerIRI.String() {
		logger.Info("Ignoring reply to a 'Follow' activity that does not target the outbox owner",
			log.WithActivityID(activity.ID()), log.WithActorIRI(ownerIRI))

		return nil, nil
	}

	return follower, nil
}

// handleLikeActivity adds the liked object to the owner's liked collection and, if
// the object is local, adds the activity to the object's likes collection.
func (h *Outbox) handleLikeActivity(ownerIRI *url.URL, like *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Like' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(like.ID()))

	objIRI := objectIRI(like)
	if objIRI == nil {
		return fmt.Errorf("no object specified in 'Like' activity [%s]", like.ID())
	}

	if err := h.store.AddReference(store.Liked, ownerIRI, objIRI); err != nil {
		return qerrors.NewTransient(fmt.Errorf("add object to liked collection: %w", err))
	}

	if storeutil.IsLocal(objIRI, h.ServiceEndpoint) && like.ID() != nil {
		if err := h.store.AddReference(store.Like, objIRI, like.ID().URL()); err != nil {
			return qerrors.NewTransient(fmt.Errorf("add activity to likes collection: %w", err))
		}
	}

	h.notify(like)

	return nil
}

func (h *Outbox) handleAnnounceActivity(announce *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Announce' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(announce.ID()))

	objIRI := objectIRI(announce)
	if objIRI == nil {
		return fmt.Errorf("no object specified in 'Announce' activity [%s]", announce.ID())
	}

	if storeutil.IsLocal(objIRI, h.ServiceEndpoint) && announce.ID() != nil {
		if err := h.store.AddReference(store.Share, objIRI, announce.ID().URL()); err != nil {
			return qerrors.NewTransient(fmt.Errorf("add activity to shares collection: %w", err))
		}
	}

	h.notify(announce)

	return nil
}

func (h *Outbox) handleBlockActivity(ownerIRI *url.URL, block *vocab.ActivityType) error {
	logger.Debug("Handling outgoing 'Block' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(block.ID()))

	blockedIRI := objectIRI(block)
	if blockedIRI == nil {
		return fmt.Errorf("no object specified in 'Block' activity [%s]", block.ID())
	}

	if err := h.store.AddReference(store.Blocked, ownerIRI, blockedIRI); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store block: %w", err))
	}

	h.notify(block)

	return nil
}

// undoFollow reverts an outgoing Follow: the target is removed from the owner's
// following collection along with any pending request.
func (h *Outbox) undoFollow(ownerIRI *url.URL, follow *vocab.ActivityType) error {
	targetIRI := follow.Object().IRI()
	if targetIRI == nil {
		return fmt.Errorf("no IRI specified in 'object' field of the 'Follow' activity")
	}

	for _, refType := range []store.ReferenceType{store.Following, store.FollowRequest} {
		err := h.store.DeleteReference(refType, ownerIRI, targetIRI)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return qerrors.NewTransient(fmt.Errorf("delete %s reference: %w", refType, err))
		}
	}

	return nil
}

func (h *Outbox) undoLike(ownerIRI *url.URL, like *vocab.ActivityType) error {
	objIRI := objectIRI(like)
	if objIRI == nil {
		return fmt.Errorf("no object specified in 'Like' activity being undone")
	}

	err := h.store.DeleteReference(store.Liked, ownerIRI, objIRI)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete liked reference: %w", err))
	}

	if storeutil.IsLocal(objIRI, h.ServiceEndpoint) && like.ID() != nil {
		err := h.store.DeleteReference(store.Like, objIRI, like.ID().URL())
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return qerrors.NewTransient(fmt.Errorf("delete likes reference: %w", err))
		}
	}

	return nil
}

func (h *Outbox) undoAnnounce(_ *url.URL, announce *vocab.ActivityType) error {
	objIRI := objectIRI(announce)
	if objIRI == nil {
		return fmt.Errorf("no object specified in 'Announce' activity being undone")
	}

	if !storeutil.IsLocal(objIRI, h.ServiceEndpoint) || announce.ID() == nil {
		return nil
	}

	err := h.store.DeleteReference(store.Share, objIRI, announce.ID().URL())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete shares reference: %w", err))
	}

	return nil
}

// undoAccept revokes a previously accepted follow request: the follower is removed
// from the owner's followers collection.
func (h *Outbox) undoAccept(ownerIRI *url.URL, accept *vocab.ActivityType) error {
	follow := accept.Object().Activity()
	if follow == nil || !follow.Type().Is(vocab.TypeFollow) {
		return fmt.Errorf("the 'object' field of the 'Accept' activity must be a 'Follow' type")
	}

	follower := follow.Actor()
	if follower == nil {
		return fmt.Errorf("no actor specified in the 'Follow' activity of the 'Accept' being undone")
	}

	err := h.store.DeleteReference(store.Follower, ownerIRI, follower)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete follower reference: %w", err))
	}

	return nil
}

func (h *Outbox) undoBlock(ownerIRI *url.URL, block *vocab.ActivityType) error {
	blockedIRI := objectIRI(block)
	if blockedIRI == nil {
		return fmt.Errorf("no object specified in 'Block' activity being undone")
	}

	err := h.store.DeleteReference(store.Blocked, ownerIRI, blockedIRI)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete block: %w", err))
	}

	return nil
}
