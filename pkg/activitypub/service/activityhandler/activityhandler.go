/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package activityhandler applies the side effects of ActivityPub activities on
// behalf of local actors. The Inbox handler processes activities received from
// other servers; the Outbox handler processes activities posted by local users.
package activityhandler

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/quillpub/quill/internal/pkg/log"
	service "github.com/quillpub/quill/pkg/activitypub/service/spi"
	store "github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

var logger = log.New("activitypub_service")

const defaultBufferSize = 100

// Config holds the configuration parameters for an activity handler.
type Config struct {
	// ServiceName is the name of the service (used for logging).
	ServiceName string

	// ServiceEndpoint is the base URL of this server. An IRI with the same host
	// is considered local.
	ServiceEndpoint *url.URL

	// BufferSize is the size of the channel buffer for subscribers.
	BufferSize int
}

type undoFunc func(ownerIRI *url.URL, target *vocab.ActivityType) error

type handler struct {
	*Config

	store        store.Store
	mutex        sync.RWMutex
	subscribers  []chan *vocab.ActivityType
	undoHandlers map[vocab.Type]undoFunc
}

func newHandler(cfg *Config, s store.Store) *handler {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defaultBufferSize
	}

	return &handler{
		Config:       cfg,
		store:        s,
		undoHandlers: make(map[vocab.Type]undoFunc),
	}
}

// Subscribe allows a client to receive published activities.
func (h *handler) Subscribe() <-chan *vocab.ActivityType {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	ch := make(chan *vocab.ActivityType, h.BufferSize)

	h.subscribers = append(h.subscribers, ch)

	return ch
}

func (h *handler) notify(activity *vocab.ActivityType) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, ch := range h.subscribers {
		ch <- activity
	}
}

// handleUndoActivity reverts the side effect of the activity referenced in the
// 'object' field of the given Undo. The actor of the Undo must be the actor of
// the activity being undone.
func (h *handler) handleUndoActivity(ownerIRI *url.URL, undo *vocab.ActivityType) error {
	logger.Debug("Handling 'Undo' activity", log.WithServiceName(h.ServiceName),
		log.WithActivityID(undo.ID()))

	target, err := h.undoTarget(undo)
	if err != nil {
		return err
	}

	if undo.Actor() == nil || target.Actor() == nil {
		return fmt.Errorf("no actor specified in 'Undo' activity [%s]", undo.ID())
	}

	if undo.Actor().String() != target.Actor().String() {
		return qerrors.NewKindf(qerrors.KindActorSpoofed,
			"not handling 'Undo' activity [%s] since the actor of the Undo is not the actor of the original activity",
			undo.ID())
	}

	var undoHandler undoFunc

	for t, uh := range h.undoHandlers {
		if target.Type().Is(t) {
			undoHandler = uh

			break
		}
	}

	if undoHandler == nil {
		return qerrors.NewKindf(qerrors.KindUndoTypeNotSupported,
			"undo of type %s is not supported", target.Type())
	}

	if err := undoHandler(ownerIRI, target); err != nil {
		return err
	}

	h.notify(undo)

	return nil
}

// undoTarget resolves the activity referenced in the 'object' field of an Undo,
// either from the embedded value or from the activity store.
func (h *handler) undoTarget(undo *vocab.ActivityType) (*vocab.ActivityType, error) {
	if target := undo.Object().Activity(); target != nil {
		return target, nil
	}

	iri := undo.Object().IRI()
	if iri == nil {
		return nil, fmt.Errorf("no activity specified in the 'object' field of the 'Undo' activity [%s]", undo.ID())
	}

	target, err := h.store.GetActivity(iri)
	if err != nil {
		return nil, fmt.Errorf("retrieve activity [%s] referenced by 'Undo' [%s]: %w", iri, undo.ID(), err)
	}

	return target, nil
}

// newTombstone replaces the given stored object with a Tombstone at the same IRI.
func (h *handler) newTombstone(stored *vocab.ObjectType) *vocab.ObjectType {
	now := time.Now()

	return vocab.NewTombstone(
		vocab.WithID(stored.ID().URL()),
		vocab.WithFormerType(stored.Type().Types()...),
		vocab.WithDeletedTime(&now),
	)
}

// deleteObject applies a Delete activity: the stored object is replaced with a
// Tombstone carrying its former type. Deleting an unknown object is a no-op.
func (h *handler) deleteObject(actorIRI, objIRI *url.URL) error {
	stored, err := h.store.GetObject(objIRI)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("Object to delete was not found", log.WithObjectIRI(objIRI))

			return nil
		}

		return qerrors.NewTransient(fmt.Errorf("retrieve object [%s]: %w", objIRI, err))
	}

	if stored.Type().Is(vocab.TypeTombstone) {
		return nil
	}

	if owner := stored.AttributedTo(); owner == nil || owner.String() != actorIRI.String() {
		return qerrors.NewKindf(qerrors.KindObjectSpoofed,
			"object [%s] is not attributed to the actor of the 'Delete' activity", objIRI)
	}

	if err := h.store.PutObject(h.newTombstone(stored)); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store tombstone for [%s]: %w", objIRI, err))
	}

	return nil
}

// replaceObject applies an Update activity: the stored object is completely
// replaced by the incoming one. Updating an unknown object is a no-op.
func (h *handler) replaceObject(actorIRI *url.URL, obj *vocab.ObjectType) error {
	if obj == nil || obj.ID() == nil || obj.ID().URL() == nil {
		return fmt.Errorf("no object ID specified in 'Update' activity")
	}

	objIRI := obj.ID().URL()

	stored, err := h.store.GetObject(objIRI)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("Object to update was not found", log.WithObjectIRI(objIRI))

			return nil
		}

		return qerrors.NewTransient(fmt.Errorf("retrieve object [%s]: %w", objIRI, err))
	}

	if owner := stored.AttributedTo(); owner == nil || owner.String() != actorIRI.String() {
		return qerrors.NewKindf(qerrors.KindObjectSpoofed,
			"object [%s] is not attributed to the actor of the 'Update' activity", objIRI)
	}

	if err := h.store.PutObject(obj); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store updated object [%s]: %w", objIRI, err))
	}

	return nil
}

// persistObject stores the object embedded in a Create activity.
func (h *handler) persistObject(create *vocab.ActivityType) error {
	obj := create.Object().Object()
	if obj == nil {
		// An IRI-only object carries nothing to persist.
		return nil
	}

	if obj.ID() == nil || obj.ID().URL() == nil {
		return fmt.Errorf("no object ID specified in 'Create' activity [%s]", create.ID())
	}

	if err := h.store.PutObject(obj); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store object [%s]: %w", obj.ID(), err))
	}

	return nil
}

// collectionIRI returns the IRI of the named collection belonging to the given owner.
func collectionIRI(ownerIRI *url.URL, name string) string {
	return ownerIRI.String() + "/" + name
}

// mutateOwnedCollection applies an Add or Remove activity targeting a collection
// owned by the given actor. Only the owner's 'featured' collection may be mutated.
func (h *handler) mutateOwnedCollection(ownerIRI *url.URL, activity *vocab.ActivityType, add bool) error {
	if activity.Actor() == nil || activity.Actor().String() != ownerIRI.String() {
		return qerrors.NewKindf(qerrors.KindObjectSpoofed,
			"the actor of activity [%s] does not own the target collection", activity.ID())
	}

	targetIRI := activity.Target().IRI()
	if targetIRI == nil {
		return fmt.Errorf("no target specified in activity [%s]", activity.ID())
	}

	if targetIRI.String() != collectionIRI(ownerIRI, "featured") {
		return qerrors.NewKindf(qerrors.KindObjectSpoofed,
			"target [%s] of activity [%s] is not a mutable collection of the owner", targetIRI, activity.ID())
	}

	objIRI := objectIRI(activity)
	if objIRI == nil {
		return fmt.Errorf("no object specified in activity [%s]", activity.ID())
	}

	if add {
		if err := h.store.AddReference(store.Featured, ownerIRI, objIRI); err != nil {
			return qerrors.NewTransient(fmt.Errorf("add [%s] to featured collection: %w", objIRI, err))
		}
	} else {
		if err := h.store.DeleteReference(store.Featured, ownerIRI, objIRI); err != nil && !errors.Is(err, store.ErrNotFound) {
			return qerrors.NewTransient(fmt.Errorf("remove [%s] from featured collection: %w", objIRI, err))
		}
	}

	h.notify(activity)

	return nil
}

// objectIRI returns the IRI of an activity's object, whether it is referenced or embedded.
func objectIRI(activity *vocab.ActivityType) *url.URL {
	if iri := activity.Object().IRI(); iri != nil {
		return iri
	}

	if obj := activity.Object().Object(); obj != nil && obj.ID() != nil {
		return obj.ID().URL()
	}

	if a := activity.Object().Activity(); a != nil && a.ID() != nil {
		return a.ID().URL()
	}

	return nil
}

// CheckObjectSpoofing verifies that the object embedded in an Update, Like or Announce
// matches the object stored at its IRI: the declared type and attributedTo of the
// incoming object must equal those of the stored object. Activities of other types,
// IRI-only objects, and objects unknown to this server pass the check.
func CheckObjectSpoofing(s store.Store, activity *vocab.ActivityType) error {
	if !activity.Type().IsAny(vocab.TypeUpdate, vocab.TypeLike, vocab.TypeAnnounce) {
		return nil
	}

	obj := activity.Object().Object()
	if obj == nil || obj.ID() == nil || obj.ID().URL() == nil {
		return nil
	}

	stored, err := s.GetObject(obj.ID().URL())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}

		return qerrors.NewTransient(fmt.Errorf("retrieve object [%s]: %w", obj.ID(), err))
	}

	if !stored.Type().Is(obj.Type().Types()...) {
		return qerrors.NewKindf(qerrors.KindObjectSpoofed,
			"the type of incoming object [%s] does not match the stored object", obj.ID())
	}

	storedOwner := stored.AttributedTo()
	incomingOwner := obj.AttributedTo()

	if storedOwner != nil &&
		(incomingOwner == nil || incomingOwner.String() != storedOwner.String()) {
		return qerrors.NewKindf(qerrors.KindObjectSpoofed,
			"the attributedTo of incoming object [%s] does not match the stored object", obj.ID())
	}

	return nil
}

// defaultOptions returns the default callback handlers: incoming Follow requests are
// automatically accepted, the blocked check consults the owner's block list, and
// forwarding recipients pass through unfiltered.
func defaultOptions(s store.Store) *service.Handlers {
	return &service.Handlers{
		OnFollow: func(*vocab.ActivityType, *vocab.ActorType) service.FollowPolicy {
			return service.FollowPolicyAutomaticallyAccept
		},
		Blocked: func(ownerIRI *url.URL, actorIRIs []*url.URL) (bool, error) {
			return storeutil.AnyBlocked(s, ownerIRI, actorIRIs)
		},
		FilterForwarding: func(_ *url.URL, _ *vocab.ActivityType, recipients []*url.URL) ([]*url.URL, error) {
			return recipients, nil
		},
		DefaultHandler: func(ownerIRI *url.URL, activity *vocab.ActivityType) error {
			logger.Info("Ignoring activity of unsupported type", log.WithActivityID(activity.ID()),
				log.WithActivityType(activity.Type().String()))

			return nil
		},
		MaxInboxForwardingDepth: service.DefaultMaxInboxForwardingDepth,
		MaxDeliveryDepth:        service.DefaultMaxDeliveryDepth,
	}
}
