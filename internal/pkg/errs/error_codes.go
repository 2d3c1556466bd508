/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request or message rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Chat Protocol and Session Errors
const (
	// ErrMalformedMessage indicates that a frame could not be decoded into a protocol message.
	ErrMalformedMessage = 2001

	// ErrUnexpectedMessage indicates that a client sent a message kind only the server may send.
	ErrUnexpectedMessage = 2002

	// ErrNameTaken indicates that another active user already holds the requested name.
	ErrNameTaken = 2101

	// ErrInvalidName indicates that the requested name is empty, too long or contains control characters.
	ErrInvalidName = 2102

	// ErrNameRequired indicates that a chat message arrived before the connection set its name.
	ErrNameRequired = 2103

	// ErrMessageContentTooLong indicates that the chat text exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates that the chat text was empty.
	ErrMessageEmpty = 2202
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
