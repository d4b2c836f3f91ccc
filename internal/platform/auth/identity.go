package auth

import "errors"

// ErrNotAuthorized is returned when the authenticated actor does not match
// the identity a request claims to act as.
var ErrNotAuthorized = errors.New("not authorized")

// VerifyActor checks that the authenticated actor is the claimed identity.
// Every state-changing operation names the party performing it: the
// manufacturer registering a device or issuing a recall, the surgeon
// implanting or removing one, the technician recording maintenance. The
// bearer token's subject must be that same party.
func VerifyActor(actor, claimed string) error {
	if actor == "" || actor != claimed {
		return ErrNotAuthorized
	}
	return nil
}
