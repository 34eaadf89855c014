package savecair

import "errors"

// Domain errors for the savecair package.
var (
	// ErrNotConnected is returned when an operation needs an open
	// websocket but none exists.
	ErrNotConnected = errors.New("savecair: not connected to gateway")

	// ErrClosed is returned when the transport has been closed for good.
	ErrClosed = errors.New("savecair: transport closed")

	// ErrInvalidURL is returned when the gateway URL cannot be used.
	ErrInvalidURL = errors.New("savecair: invalid gateway url")

	// ErrDecode is returned when an inbound frame is not a JSON object.
	ErrDecode = errors.New("savecair: malformed frame")

	// ErrEncode is returned when an outbound frame cannot be built.
	ErrEncode = errors.New("savecair: encoding failed")

	// ErrUnknownSensor is returned when a subscription names a key the
	// registry does not know.
	ErrUnknownSensor = errors.New("savecair: unknown sensor")

	// ErrWrongPassword is returned by Login for errorTypeId WRONG_PASSWORD.
	ErrWrongPassword = errors.New("savecair: wrong password")

	// ErrAccessDenied is returned by Login for errorTypeId ACCESS_DENIED_SEVERE
	// (usually an unknown IAM identifier).
	ErrAccessDenied = errors.New("savecair: access denied")

	// ErrDeviceNotConnected is returned by Login for errorTypeId
	// UNIT_NOT_CONNECTED.
	ErrDeviceNotConnected = errors.New("savecair: unit not connected to cloud")

	// ErrUnknownAuth is returned by Login for any other errorTypeId.
	ErrUnknownAuth = errors.New("savecair: login failed")

	// ErrLoginTimeout is returned when the optional login timeout elapses.
	ErrLoginTimeout = errors.New("savecair: login timed out")

	// ErrOperationModeNotExist is returned for an operation mode with no
	// write sequence.
	ErrOperationModeNotExist = errors.New("savecair: operation mode does not exist")

	// ErrFanModeNotExist is returned for a fan mode with no write sequence.
	ErrFanModeNotExist = errors.New("savecair: fan mode does not exist")

	// ErrInvalidValue is returned when a command value has the wrong type.
	ErrInvalidValue = errors.New("savecair: invalid value")

	// ErrSendFailed is returned when a command frame could not be sent.
	ErrSendFailed = errors.New("savecair: send failed")
)

// Error type identifiers reported by the gateway in ERROR frames.
const (
	ErrorTypeWrongPassword      = "WRONG_PASSWORD"
	ErrorTypeAccessDeniedSevere = "ACCESS_DENIED_SEVERE"
	ErrorTypeUnitNotConnected   = "UNIT_NOT_CONNECTED"
)

// Onboarding error keys returned by AuthErrorKey.
const (
	AuthKeyCannotConnect   = "cannot_connect"
	AuthKeyInvalidDevice   = "invalid_device"
	AuthKeyInvalidAuth     = "invalid_auth"
	AuthKeyInvalidPassword = "invalid_password"
	AuthKeyUnknown         = "unknown"
)

// classifyLoginError maps a gateway errorTypeId onto a login error.
func classifyLoginError(errorTypeID string) error {
	switch errorTypeID {
	case ErrorTypeWrongPassword:
		return ErrWrongPassword
	case ErrorTypeAccessDeniedSevere:
		return ErrAccessDenied
	case ErrorTypeUnitNotConnected:
		return ErrDeviceNotConnected
	default:
		return ErrUnknownAuth
	}
}

// AuthErrorKey maps a Login error onto the key an onboarding flow shows
// to the user. A nil error returns "".
func AuthErrorKey(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWrongPassword):
		return AuthKeyInvalidPassword
	case errors.Is(err, ErrAccessDenied):
		return AuthKeyInvalidAuth
	case errors.Is(err, ErrDeviceNotConnected):
		return AuthKeyInvalidDevice
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrLoginTimeout), errors.Is(err, ErrInvalidURL):
		return AuthKeyCannotConnect
	default:
		return AuthKeyUnknown
	}
}
