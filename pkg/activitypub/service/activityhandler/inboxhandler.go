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
	service "github.com/quillpub/quill/pkg/activitypub/service/spi"
	store "github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

type activityPubClient interface {
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
}

// Inbox handles the side effects of activities received from other servers.
type Inbox struct {
	*handler
	*service.Handlers

	outbox service.Outbox
	client activityPubClient
}

// NewInbox returns a new inbox activity handler.
func NewInbox(cfg *Config, s store.Store, outbox service.Outbox, apClient activityPubClient,
	opts ...service.HandlerOpt) *Inbox {
	options := defaultOptions(s)

	for _, opt := range opts {
		opt(options)
	}

	h := &Inbox{
		handler:  newHandler(cfg, s),
		Handlers: options,
		outbox:   outbox,
		client:   apClient,
	}

	h.undoHandlers[vocab.TypeFollow] = h.undoFollow
	h.undoHandlers[vocab.TypeLike] = h.undoLike
	h.undoHandlers[vocab.TypeAnnounce] = h.undoAnnounce
	h.undoHandlers[vocab.TypeAccept] = h.undoAccept
	h.undoHandlers[vocab.TypeBlock] = h.undoBlock

	return h
}

// HandleActivity applies the side effects of the given activity, which arrived in
// the inbox of the given local actor.
func (h *Inbox) HandleActivity(ownerIRI *url.URL, activity *vocab.ActivityType) error {
	typeProp := activity.Type()

	switch {
	case typeProp.Is(vocab.TypeCreate):
		return h.handleCreateActivity(ownerIRI, activity)
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
		return h.handleAnnounceActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeAdd):
		return h.mutateOwnedCollection(ownerIRI, activity, true)
	case typeProp.Is(vocab.TypeRemove):
		return h.mutateOwnedCollection(ownerIRI, activity, false)
	case typeProp.Is(vocab.TypeBlock):
		return h.handleBlockActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeUndo):
		return h.handleUndoActivity(ownerIRI, activity)
	default:
		return h.DefaultHandler(ownerIRI, activity)
	}
}

func (h *Inbox) handleCreateActivity(ownerIRI *url.URL, create *vocab.ActivityType) error {
	logger.Debug("Handling 'Create' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(create.ID()), log.WithActorIRI(ownerIRI))

	if err := h.persistObject(create); err != nil {
		return err
	}

	h.notify(create)

	return nil
}

func (h *Inbox) handleUpdateActivity(ownerIRI *url.URL, update *vocab.ActivityType) error {
	logger.Debug("Handling 'Update' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(update.ID()))

	if update.Actor() == nil {
		return fmt.Errorf("no actor specified in 'Update' activity [%s]", update.ID())
	}

	if err := h.replaceObject(update.Actor(), update.Object().Object()); err != nil {
		return err
	}

	h.notify(update)

	return nil
}

func (h *Inbox) handleDeleteActivity(ownerIRI *url.URL, del *vocab.ActivityType) error {
	logger.Debug("Handling 'Delete' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(del.ID()))

	if del.Actor() == nil {
		return fmt.Errorf("no actor specified in 'Delete' activity [%s]", del.ID())
	}

	objIRI := objectIRI(del)
	if objIRI == nil {
		return fmt.Errorf("no object specified in 'Delete' activity [%s]", del.ID())
	}

	if err := h.deleteObject(del.Actor(), objIRI); err != nil {
		return err
	}

	h.notify(del)

	return nil
}

func (h *Inbox) handleFollowActivity(ownerIRI *url.URL, follow *vocab.ActivityType) error {
	logger.Debug("Handling 'Follow' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(follow.ID()))

	actorIRI := follow.Actor()
	if actorIRI == nil {
		return fmt.Errorf("no actor specified in 'Follow' activity [%s]", follow.ID())
	}

	iri := follow.Object().IRI()
	if iri == nil {
		return fmt.Errorf("no IRI specified in 'object' field of the 'Follow' activity [%s]", follow.ID())
	}

	// Ignore the request if it is not targeting the owner of this inbox.
	if iri.String() != ownerIRI.String() {
		logger.Info("Not handling 'Follow' activity since this actor is not the target object",
			log.WithActivityID(follow.ID()), log.WithActorIRI(ownerIRI), log.WithObjectIRI(iri))

		return nil
	}

	hasFollower, err := storeutil.HasReference(h.store, store.Follower, ownerIRI, actorIRI)
	if err != nil {
		return qerrors.NewTransient(fmt.Errorf("query existing followers: %w", err))
	}

	if hasFollower {
		logger.Info("Actor is already a follower. Replying with 'Accept' activity.",
			log.WithActorIRI(actorIRI), log.WithObjectIRI(ownerIRI))

		return h.postAccept(ownerIRI, follow, actorIRI)
	}

	actor, err := h.client.GetActor(actorIRI)
	if err != nil {
		return qerrors.NewTransient(fmt.Errorf("retrieve actor [%s]: %w", actorIRI, err))
	}

	switch h.OnFollow(follow, actor) {
	case service.FollowPolicyAutomaticallyAccept:
		logger.Debug("Accepting 'Follow' request", log.WithActivityID(follow.ID()),
			log.WithActorIRI(actorIRI))

		return h.postAccept(ownerIRI, follow, actorIRI)

	case service.FollowPolicyAutomaticallyReject:
		logger.Debug("Rejecting 'Follow' request", log.WithActivityID(follow.ID()),
			log.WithActorIRI(actorIRI))

		return h.postReject(ownerIRI, follow, actorIRI)

	default:
		// Record the request as pending and leave the decision to the owner.
		if err := h.store.AddReference(store.FollowRequest, ownerIRI, actorIRI); err != nil {
			return qerrors.NewTransient(fmt.Errorf("store pending follow request: %w", err))
		}

		h.notify(follow)

		return nil
	}
}

// postAccept replies to a Follow with an Accept. The Accept is posted through the
// owner's outbox, whose side effect adds the follower to the owner's collection.
func (h *Inbox) postAccept(ownerIRI *url.URL, follow *vocab.ActivityType, toIRI *url.URL) error {
	accept := vocab.NewAcceptActivity(
		vocab.NewObjectProperty(vocab.WithActivity(follow)),
		vocab.WithActor(ownerIRI),
		vocab.WithTo(toIRI),
	)

	h.notify(follow)

	if _, err := h.outbox.Post(ownerIRI, accept); err != nil {
		return fmt.Errorf("reply with 'Accept' to %s: %w", toIRI, err)
	}

	return nil
}

func (h *Inbox) postReject(ownerIRI *url.URL, follow *vocab.ActivityType, toIRI *url.URL) error {
	reject := vocab.NewRejectActivity(
		vocab.NewObjectProperty(vocab.WithActivity(follow)),
		vocab.WithActor(ownerIRI),
		vocab.WithTo(toIRI),
	)

	if _, err := h.outbox.Post(ownerIRI, reject); err != nil {
		return fmt.Errorf("reply with 'Reject' to %s: %w", toIRI, err)
	}

	return nil
}

func (h *Inbox) handleAcceptActivity(ownerIRI *url.URL, accept *vocab.ActivityType) error {
	logger.Debug("Handling 'Accept' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(accept.ID()))

	actorIRI := accept.Actor()
	if actorIRI == nil {
		return fmt.Errorf("no actor specified in 'Accept' activity [%s]", accept.ID())
	}

	follow, err := h.validateEmbeddedFollow(ownerIRI, accept)
	if err != nil {
		return err
	}

	if follow == nil {
		return nil
	}

	hasPending, err := storeutil.HasReference(h.store, store.FollowRequest, ownerIRI, actorIRI)
	if err != nil {
		return qerrors.NewTransient(fmt.Errorf("query pending follow requests: %w", err))
	}

	if !hasPending {
		logger.Warn("Ignoring 'Accept' activity since no 'Follow' request is pending",
			log.WithActivityID(accept.ID()), log.WithActorIRI(actorIRI))

		return nil
	}

	if err := h.store.DeleteReference(store.FollowRequest, ownerIRI, actorIRI); err != nil {
		return qerrors.NewTransient(fmt.Errorf("delete pending follow request: %w", err))
	}

	if err := h.store.AddReference(store.Following, ownerIRI, actorIRI); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store new following: %w", err))
	}

	h.notify(accept)

	return nil
}

func (h *Inbox) handleRejectActivity(ownerIRI *url.URL, reject *vocab.ActivityType) error {
	logger.Debug("Handling 'Reject' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(reject.ID()))

	actorIRI := reject.Actor()
	if actorIRI == nil {
		return fmt.Errorf("no actor specified in 'Reject' activity [%s]", reject.ID())
	}

	follow, err := h.validateEmbeddedFollow(ownerIRI, reject)
	if err != nil {
		return err
	}

	if follow == nil {
		return nil
	}

	logger.Info("Follow request was rejected", log.WithActorIRI(ownerIRI),
		log.WithObjectIRI(actorIRI))

	err = h.store.DeleteReference(store.FollowRequest, ownerIRI, actorIRI)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete pending follow request: %w", err))
	}

	h.notify(reject)

	return nil
}

// validateEmbeddedFollow validates the Follow activity embedded in an Accept or
// Reject. A nil activity (with no error) is returned when the enclosing activity
// should be ignored because its Follow does not originate from the inbox owner.
func (h *Inbox) validateEmbeddedFollow(ownerIRI *url.URL,
	activity *vocab.ActivityType) (*vocab.ActivityType, error) {
	follow := activity.Object().Activity()
	if follow == nil {
		return nil, fmt.Errorf("no 'Follow' activity specified in the 'object' field of activity [%s]",
			activity.ID())
	}

	if !follow.Type().Is(vocab.TypeFollow) {
		return nil, fmt.Errorf("the 'object' field of activity [%s] must be a 'Follow' type", activity.ID())
	}

	iri := follow.Actor()
	if iri == nil {
		return nil, fmt.Errorf("no actor specified in the 'Follow' activity of activity [%s]", activity.ID())
	}

	if iri.String() != ownerIRI.String() {
		logger.Info("Not handling activity since the actor in the 'Follow' activity is not the inbox owner",
			log.WithActivityID(activity.ID()), log.WithActorIRI(ownerIRI))

		return nil, nil
	}

	return follow, nil
}

func (h *Inbox) handleLikeActivity(ownerIRI *url.URL, like *vocab.ActivityType) error {
	logger.Debug("Handling 'Like' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(like.ID()))

	return h.addObjectReference(like, store.Like)
}

func (h *Inbox) handleAnnounceActivity(ownerIRI *url.URL, announce *vocab.ActivityType) error {
	logger.Debug("Handling 'Announce' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(announce.ID()))

	return h.addObjectReference(announce, store.Share)
}

// addObjectReference adds the given activity to the likes or shares collection of
// its object, provided the object is owned by this server.
func (h *Inbox) addObjectReference(activity *vocab.ActivityType, refType store.ReferenceType) error {
	if activity.ID() == nil || activity.ID().URL() == nil {
		return fmt.Errorf("no ID specified in activity")
	}

	objIRI := objectIRI(activity)
	if objIRI == nil {
		return fmt.Errorf("no object specified in activity [%s]", activity.ID())
	}

	if !storeutil.IsLocal(objIRI, h.ServiceEndpoint) {
		logger.Debug("Ignoring activity since its object is not local",
			log.WithActivityID(activity.ID()), log.WithObjectIRI(objIRI))

		return nil
	}

	if _, err := h.store.GetObject(objIRI); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("Ignoring activity since its object was not found",
				log.WithActivityID(activity.ID()), log.WithObjectIRI(objIRI))

			return nil
		}

		return qerrors.NewTransient(fmt.Errorf("retrieve object [%s]: %w", objIRI, err))
	}

	if err := h.store.AddReference(refType, objIRI, activity.ID().URL()); err != nil {
		return qerrors.NewTransient(fmt.Errorf("add activity [%s] to %s collection of [%s]: %w",
			activity.ID(), refType, objIRI, err))
	}

	h.notify(activity)

	return nil
}

// handleBlockActivity records a block. A remote actor cannot mutate a local block
// list, so the activity is ignored unless its actor is the inbox owner.
func (h *Inbox) handleBlockActivity(ownerIRI *url.URL, block *vocab.ActivityType) error {
	if block.Actor() == nil || block.Actor().String() != ownerIRI.String() {
		logger.Info("Ignoring 'Block' activity since its actor is not the inbox owner",
			log.WithActivityID(block.ID()), log.WithActorIRI(ownerIRI))

		return nil
	}

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

// undoFollow removes the follower relationship established by the given Follow.
func (h *Inbox) undoFollow(ownerIRI *url.URL, follow *vocab.ActivityType) error {
	iri := follow.Object().IRI()
	if iri == nil {
		return fmt.Errorf("no IRI specified in 'object' field of the 'Follow' activity")
	}

	if iri.String() != ownerIRI.String() {
		logger.Info("Not undoing 'Follow' activity since this actor is not the target object",
			log.WithActorIRI(ownerIRI), log.WithObjectIRI(iri))

		return nil
	}

	actorIRI := follow.Actor()

	for _, refType := range []store.ReferenceType{store.Follower, store.FollowRequest} {
		err := h.store.DeleteReference(refType, ownerIRI, actorIRI)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return qerrors.NewTransient(fmt.Errorf("delete %s reference: %w", refType, err))
		}
	}

	return nil
}

func (h *Inbox) undoLike(_ *url.URL, like *vocab.ActivityType) error {
	return h.deleteObjectReference(like, store.Like)
}

func (h *Inbox) undoAnnounce(_ *url.URL, announce *vocab.ActivityType) error {
	return h.deleteObjectReference(announce, store.Share)
}

func (h *Inbox) deleteObjectReference(activity *vocab.ActivityType, refType store.ReferenceType) error {
	if activity.ID() == nil || activity.ID().URL() == nil {
		return fmt.Errorf("no ID specified in activity being undone")
	}

	objIRI := objectIRI(activity)
	if objIRI == nil {
		return fmt.Errorf("no object specified in activity [%s]", activity.ID())
	}

	if !storeutil.IsLocal(objIRI, h.ServiceEndpoint) {
		return nil
	}

	err := h.store.DeleteReference(refType, objIRI, activity.ID().URL())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete %s reference: %w", refType, err))
	}

	return nil
}

// undoAccept reverts a remote actor's acceptance of the owner's Follow request:
// the remote actor is removed from the owner's following collection.
func (h *Inbox) undoAccept(ownerIRI *url.URL, accept *vocab.ActivityType) error {
	follow := accept.Object().Activity()
	if follow == nil || !follow.Type().Is(vocab.TypeFollow) {
		return fmt.Errorf("the 'object' field of the 'Accept' activity must be a 'Follow' type")
	}

	if follow.Actor() == nil || follow.Actor().String() != ownerIRI.String() {
		logger.Info("Not undoing 'Accept' activity since the 'Follow' actor is not the inbox owner",
			log.WithActorIRI(ownerIRI))

		return nil
	}

	err := h.store.DeleteReference(store.Following, ownerIRI, accept.Actor())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("delete following reference: %w", err))
	}

	return nil
}

func (h *Inbox) undoBlock(ownerIRI *url.URL, block *vocab.ActivityType) error {
	if block.Actor() == nil || block.Actor().String() != ownerIRI.String() {
		logger.Info("Ignoring 'Undo Block' since its actor is not the inbox owner",
			log.WithActorIRI(ownerIRI))

		return nil
	}

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
