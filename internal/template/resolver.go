package template

import (
	"context"
	"errors"
	"fmt"

	"sequencer_backend/internal/sequence"
	"sequencer_backend/platform/logger"
)

// ErrTemplateNotFound is returned when neither the remote store nor the
// static fallback table has copy for a step. It is the only resolution
// failure that propagates to the caller; everything else degrades silently
// to the fallback.
var ErrTemplateNotFound = errors.New("template not found")

// Source records where resolved copy came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Resolved is the outcome of a successful resolution: renderable copy plus
// its provenance.
type Resolved struct {
	Subject string
	Body    string
	Source  Source
}

// Resolver picks the copy for a sequence step. The remote store wins when it
// answers; any remote failure (network, non-2xx, empty document) drops to the
// static table so delivery never stalls on the store being down.
type Resolver struct {
	remote   RemoteLookup
	fallback *FallbackTable
	log      *logger.Logger
}

// NewResolver wires a resolver. remote may be nil when the store is not
// configured; resolution then serves from the fallback table only.
func NewResolver(remote RemoteLookup, fallback *FallbackTable, log *logger.Logger) *Resolver {
	return &Resolver{
		remote:   remote,
		fallback: fallback,
		log:      log,
	}
}

// Resolve returns the copy for one step. The only error it can return is
// ErrTemplateNotFound (wrapped with the step coordinates).
func (r *Resolver) Resolve(ctx context.Context, seqType sequence.Type, position int) (Resolved, error) {
	if r.remote != nil {
		entry, err := r.remote.Lookup(ctx, seqType, position)
		if err == nil {
			r.log.Info("template resolved",
				"source", string(SourceRemote),
				"sequence_type", string(seqType),
				"position", position,
			)
			return Resolved{Subject: entry.Subject, Body: entry.Body, Source: SourceRemote}, nil
		}
		r.log.DegradedMode("template_store", "remote lookup failed, serving static copy", err)
	}

	entry, ok := r.fallback.Lookup(seqType, position)
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %s position %d", ErrTemplateNotFound, seqType, position)
	}

	r.log.Debug("template resolved",
		"source", string(SourceFallback),
		"sequence_type", string(seqType),
		"position", position,
	)
	return Resolved{Subject: entry.Subject, Body: entry.Body, Source: SourceFallback}, nil
}
