package access

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonNotSubscribed            Reason = "not_subscribed"
	ReasonOriginalNotEntitled      Reason = "original_not_entitled"
	ReasonSizeNotEntitled          Reason = "size_not_entitled"
	ReasonExpiringLinksNotEntitled Reason = "expiring_links_not_entitled"
	ReasonImageNotFound            Reason = "image_not_found"
	ReasonLinkNotFound             Reason = "link_not_found"
	ReasonLinkExpired              Reason = "link_expired"
	ReasonSourceUnavailable        Reason = "source_unavailable"
	ReasonInvalidSize              Reason = "invalid_size"
	ReasonTokenSpaceExhausted      Reason = "token_space_exhausted"
	ReasonResolutionBusy           Reason = "resolution_busy"
	ReasonUnavailable              Reason = "unavailable"
)

// Denial is the terminal outcome of every request that does not serve bytes.
// Message is safe to show to the caller; Err carries the internal cause, if any.
type Denial struct {
	Reason  Reason
	Message string
	Err     error
}

func (d *Denial) Error() string {
	if d.Err != nil {
		return fmt.Sprintf("%s: %s: %v", d.Reason, d.Message, d.Err)
	}
	return fmt.Sprintf("%s: %s", d.Reason, d.Message)
}

func (d *Denial) Unwrap() error {
	return d.Err
}

func deny(reason Reason, format string, args ...any) *Denial {
	return &Denial{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func unavailable(err error, what string) *Denial {
	return &Denial{
		Reason:  ReasonUnavailable,
		Message: "The service is temporarily unavailable. Please retry later.",
		Err:     fmt.Errorf("%s: %w", what, err),
	}
}

func imageNotFound() *Denial {
	return deny(ReasonImageNotFound, "Image does not exist.")
}

// ReasonOf extracts the denial reason from err.
func ReasonOf(err error) (Reason, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}
