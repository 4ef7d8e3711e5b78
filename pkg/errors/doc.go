// Package errors provides structured error handling with error codes for devicelimit.
//
// Every error surfaced to an HTTP caller carries an ErrorCode, a human-readable
// message and, optionally, a wrapped cause and a details map.
//
// # Basic Usage
//
//	import dlerrors "github.com/tendant/devicelimit/pkg/errors"
//
//	err := dlerrors.DeviceLimitReached(3)
//	err := dlerrors.Wrap(sendErr, dlerrors.ErrCodeEmailDeliveryFailed, dlerrors.MsgEmailDeliveryFailed)
//
// # Inspecting errors
//
//	if dlerrors.IsCode(err, dlerrors.ErrCodeInvalidOrExpiredCode) {
//	    // let the user retry within the same window
//	}
//
//	status := dlerrors.MapErrorCodeToHTTPStatus(dlerrors.GetCode(err))
//
// # Gate error codes
//
//   - ErrCodeEmailDeliveryFailed: the one-time code could not be mailed; no challenge is left behind
//   - ErrCodeDeviceLimitReached: the account already has the maximum number of approved devices
//   - ErrCodeInvalidOrExpiredCode: the submitted code does not match or the 10 minute window passed
//   - ErrCodeInvalidNonce: the anti-forgery token is missing, expired or bound to another action
package errors
