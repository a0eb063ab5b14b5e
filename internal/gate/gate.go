// Package gate holds the pure admit/deny decision logic for share access.
// It performs no I/O and mutates nothing; the lifecycle coordinator turns an
// admit into state changes.
package gate

import (
	"time"

	"github.com/linkvault/internal/auth"
	"github.com/linkvault/internal/models"
)

// Reason identifies why access was denied. The checks run in a fixed order
// and the first failing reason wins, keeping responses deterministic and
// minimal-information.
type Reason string

const (
	ReasonOwnerRequired Reason = "owner-required"
	ReasonExpired       Reason = "expired"
	ReasonExhausted     Reason = "exhausted"
	ReasonBadSecret     Reason = "bad-secret"
)

type Decision struct {
	Allow  bool
	Reason Reason
}

func admit() Decision        { return Decision{Allow: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// Evaluate runs the full ordered check sequence:
// owner-required, expired, exhausted, bad-secret.
// caller is nil for anonymous requests.
func Evaluate(share *models.Share, now time.Time, caller *models.User, suppliedSecret string) Decision {
	if d := evaluateCommon(share, now, caller); !d.Allow {
		return d
	}
	if share.HasSecret() && !auth.VerifySecret(suppliedSecret, share.SecretHash) {
		return deny(ReasonBadSecret)
	}
	return admit()
}

// PreCheck is the side-effect-free variant used before the caller has had a
// chance to supply a secret. It skips the secret comparison and instead
// reports whether one will be required.
func PreCheck(share *models.Share, now time.Time, caller *models.User) (Decision, bool) {
	return evaluateCommon(share, now, caller), share.HasSecret()
}

func evaluateCommon(share *models.Share, now time.Time, caller *models.User) Decision {
	if share.OwnerOnly {
		if caller == nil || !share.IsOwnedBy(caller.ID) {
			return deny(ReasonOwnerRequired)
		}
	}
	if now.After(share.ExpiresAt) {
		return deny(ReasonExpired)
	}
	if share.ViewLimit != nil && share.ViewCount >= *share.ViewLimit {
		return deny(ReasonExhausted)
	}
	// A one-shot file share that already minted its download token is spent;
	// only the pending token redemption may still touch it.
	if share.DeleteAfterDownload {
		return deny(ReasonExhausted)
	}
	return admit()
}
