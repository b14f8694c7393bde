package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/jwtutil"
)

// RecordStore persists the provider's per-subject claims records. The save is
// a single-row upsert so a reader never observes a partially attached payload.
type RecordStore interface {
	SaveSubjectClaims(ctx context.Context, subjectUID string, payload string, version int) error
	SubjectClaims(ctx context.Context, subjectUID string) (payload string, found bool, err error)
	ClearSubjectClaims(ctx context.Context, subjectUID string) error
}

// JWTProvider realizes the identity provider on signed JWTs: the claims
// payload rides inside the token, and the subject record supplies it at the
// next issuance. Verification of an outstanding token never consults the
// record, which preserves the accepted staleness window.
type JWTProvider struct {
	records RecordStore
	log     *zap.Logger
}

func NewJWTProvider(records RecordStore, log *zap.Logger) *JWTProvider {
	return &JWTProvider{records: records, log: log}
}

// Verify checks the credential signature and expiry and decodes the embedded
// claims payload, if any.
func (p *JWTProvider) Verify(ctx context.Context, token string) (*Identity, error) {
	userClaims, err := jwtutil.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if userClaims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		SubjectUID: userClaims.Subject,
		Email:      userClaims.Email,
		Claims:     userClaims.Access,
	}, nil
}

// AttachClaims stores the payload on the subject record in one upsert.
func (p *JWTProvider) AttachClaims(ctx context.Context, subjectUID string, payload *claims.Claims) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding claims for subject %s: %w", subjectUID, err)
	}
	if err := p.records.SaveSubjectClaims(ctx, subjectUID, string(raw), payload.Version); err != nil {
		return fmt.Errorf("attaching claims for subject %s: %w", subjectUID, err)
	}
	return nil
}

// Invalidate drops the subject's attached claims. The next verified request
// without an embedded payload triggers re-resolution at the gate.
func (p *JWTProvider) Invalidate(ctx context.Context, subjectUID string) error {
	if err := p.records.ClearSubjectClaims(ctx, subjectUID); err != nil {
		return fmt.Errorf("invalidating claims for subject %s: %w", subjectUID, err)
	}
	return nil
}

// IssueToken mints a credential embedding whatever claims are attached to the
// subject record at this moment.
func (p *JWTProvider) IssueToken(ctx context.Context, subjectUID, email string) (string, error) {
	payload, found, err := p.records.SubjectClaims(ctx, subjectUID)
	if err != nil {
		return "", fmt.Errorf("loading claims record for subject %s: %w", subjectUID, err)
	}

	var access *claims.Claims
	if found && payload != "" {
		access = &claims.Claims{}
		if err := json.Unmarshal([]byte(payload), access); err != nil {
			// A corrupt record must not block authentication; the gate will
			// re-resolve and re-attach.
			p.log.Error("Stored claims payload is not decodable, issuing claims-less token",
				zap.String("subject_uid", subjectUID),
				zap.Error(err))
			access = nil
		}
	}

	return jwtutil.GenerateTokenWithAccess(subjectUID, email, access)
}
