package identity

import (
	"context"
	"errors"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
)

var (
	// ErrInvalidToken covers expired, malformed and unverifiable credentials.
	ErrInvalidToken = errors.New("token is invalid or expired")

	// ErrSubjectNotFound signals that the provider holds no record for a subject.
	ErrSubjectNotFound = errors.New("identity subject not found")
)

// Identity is the result of verifying a bearer credential. Claims is nil when
// the token carries no authorization payload yet.
type Identity struct {
	SubjectUID string
	Email      string
	Claims     *claims.Claims
}

// Provider is the external identity collaborator. Verify and AttachClaims may
// each fail independently of the relational store.
//
// Attached claims only surface in tokens issued afterwards; outstanding
// tokens keep whatever payload they were minted with until the client
// re-authenticates. The provider never force-expires an issued token.
type Provider interface {
	// Verify checks a bearer credential and returns the verified identity.
	Verify(ctx context.Context, token string) (*Identity, error)

	// AttachClaims persists the claims payload on the subject's provider
	// record. The attach is atomic: either the full payload is stored or the
	// call fails with nothing visible.
	AttachClaims(ctx context.Context, subjectUID string, payload *claims.Claims) error

	// Invalidate clears the subject's attached claims so the next gate pass
	// re-resolves them. Outstanding tokens are not revoked.
	Invalidate(ctx context.Context, subjectUID string) error

	// IssueToken mints a credential for the subject, embedding whatever
	// claims are currently attached to its record.
	IssueToken(ctx context.Context, subjectUID, email string) (string, error)
}
