package access

import "imagevault/internal/models"

type Decision struct {
	Allowed bool
	Denial  *Denial
}

// Err returns the denial as an error, or nil when the decision allows.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Denial
}

func allow() Decision {
	return Decision{Allowed: true}
}

func refuse(d *Denial) Decision {
	return Decision{Denial: d}
}

// Evaluate decides whether tier entitles its holder to req. A nil tier means
// the user has no subscription, which denies every representation.
func Evaluate(tier *models.AccountTier, req Representation) Decision {
	if tier == nil {
		return refuse(deny(ReasonNotSubscribed, "User is not subscribed to any plan."))
	}

	switch r := req.(type) {
	case Original:
		if tier.AllowsOriginal {
			return allow()
		}
		return refuse(deny(ReasonOriginalNotEntitled,
			"Downloading original image is not available in the %s tier. Please upgrade.", tier.Name))
	case Thumbnail:
		if tier.PermitsSize(r.Height) {
			return allow()
		}
		return refuse(deny(ReasonSizeNotEntitled,
			"Downloading image thumbnail of size %d is not available in the %s tier.", r.Height, tier.Name))
	case TemporaryLink:
		if tier.AllowsExpiringLinks {
			return allow()
		}
		return refuse(deny(ReasonExpiringLinksNotEntitled,
			"Expiring links are not available in the %s tier. Please upgrade.", tier.Name))
	default:
		return refuse(deny(ReasonInvalidSize, "Unsupported representation %T.", req))
	}
}
