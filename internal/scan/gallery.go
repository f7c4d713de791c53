package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/your-org/whome/internal/descriptor"
	"github.com/your-org/whome/internal/models"
	"github.com/your-org/whome/internal/observability"
)

// IdentityLister returns every registered identity in a stable order.
type IdentityLister interface {
	ListIdentities(ctx context.Context) ([]models.Identity, error)
}

// Candidate pairs an identity with its decoded descriptor.
type Candidate struct {
	Identity   *models.Identity
	Descriptor descriptor.Descriptor
}

func (c Candidate) CandidateDescriptor() descriptor.Descriptor { return c.Descriptor }

type cachedDescriptor struct {
	raw  string
	desc descriptor.Descriptor
}

// Gallery turns stored identities into match candidates. Decoded
// descriptors are cached by identity id and re-decoded when the stored
// text changes.
type Gallery struct {
	store IdentityLister
	cache *lru.Cache[uuid.UUID, cachedDescriptor]
}

func NewGallery(store IdentityLister, size int) (*Gallery, error) {
	cache, err := lru.New[uuid.UUID, cachedDescriptor](size)
	if err != nil {
		return nil, fmt.Errorf("create descriptor cache: %w", err)
	}
	return &Gallery{store: store, cache: cache}, nil
}

// Candidates lists identities in store order. Identities without a stored
// descriptor get an empty one and are skipped by the matcher; malformed
// descriptors become zero vectors.
func (g *Gallery) Candidates(ctx context.Context) ([]Candidate, error) {
	identities, err := g.store.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	out := make([]Candidate, 0, len(identities))
	for i := range identities {
		id := &identities[i]
		out = append(out, Candidate{Identity: id, Descriptor: g.descriptorFor(id)})
	}
	return out, nil
}

func (g *Gallery) descriptorFor(id *models.Identity) descriptor.Descriptor {
	if id.Descriptor == "" {
		return nil
	}
	if c, ok := g.cache.Get(id.ID); ok && c.raw == id.Descriptor {
		return c.desc
	}

	d, err := descriptor.DecodeStrict(id.Descriptor)
	if err != nil {
		slog.Warn("stored descriptor is malformed, identity needs re-enrollment",
			"identity_id", id.ID,
			"error", err,
		)
		observability.DescriptorDecodeFailures.Inc()
		d = descriptor.Decode(id.Descriptor)
	}
	g.cache.Add(id.ID, cachedDescriptor{raw: id.Descriptor, desc: d})
	return d
}

// Invalidate drops the cached descriptor of an identity.
func (g *Gallery) Invalidate(id uuid.UUID) {
	g.cache.Remove(id)
}
