package apperr

var (
	// Messaging
	ErrEmptyContent        = InvalidArg("message content cannot be empty")
	ErrContentTooLong      = InvalidArg("message content is limited to 4000 characters")
	ErrMissingCounterparty = InvalidArg("a counterparty is required")
	ErrMessageNotFound     = NotFound("message not found")

	// Bookings
	ErrSelfBooking       = FailedPrecondition("you cannot book your own trip")
	ErrNoSeatsAvailable  = FailedPrecondition("not enough seats available for this trip")
	ErrInvalidSeatCount  = InvalidArg("seats must be at least 1")
	ErrInvalidTransition = FailedPrecondition("only pending bookings can change status")
	ErrInvalidStatus     = InvalidArg("status must be confirmed or cancelled")
	ErrNotTripDriver     = Forbidden("only the trip's driver can do this")
	ErrBookingNotFound   = NotFound("booking not found")
	ErrTripNotFound      = NotFound("trip not found")

	// Notifications
	ErrNotificationNotFound = NotFound("notification not found")
	ErrNotNotificationOwner = Forbidden("notification belongs to another user")

	// Users
	ErrUserNotFound      = NotFound("user not found")
	ErrUserAlreadyExists = AlreadyExists("user already exists")
	ErrInvalidProfile    = InvalidArg("first and last name are limited to 100 characters")
)
