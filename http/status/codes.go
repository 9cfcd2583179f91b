package status

import "strconv"

type (
	Code   uint16
	Status string
)

// HTTP status codes as registered with IANA. Only a subset the server may produce
// or a client is likely to observe is defined.
// See: https://www.iana.org/assignments/http-status-codes/http-status-codes.xhtml
const (
	OK        Code = 200 // RFC 9110, 15.3.1
	Created   Code = 201 // RFC 9110, 15.3.2
	Accepted  Code = 202 // RFC 9110, 15.3.3
	NoContent Code = 204 // RFC 9110, 15.3.5

	BadRequest            Code = 400 // RFC 9110, 15.5.1
	Unauthorized          Code = 401 // RFC 9110, 15.5.2
	PaymentRequired       Code = 402 // RFC 9110, 15.5.3
	Forbidden             Code = 403 // RFC 9110, 15.5.4
	NotFound              Code = 404 // RFC 9110, 15.5.5
	MethodNotAllowed      Code = 405 // RFC 9110, 15.5.6
	RequestTimeout        Code = 408 // RFC 9110, 15.5.9
	RequestEntityTooLarge Code = 413 // RFC 9110, 15.5.14
	Teapot                Code = 418 // RFC 9110, 15.5.19 (Unused)

	InternalServerError Code = 500 // RFC 9110, 15.6.1
	NotImplemented      Code = 501 // RFC 9110, 15.6.2
	ServiceUnavailable  Code = 503 // RFC 9110, 15.6.4
)

// KnownCodes lists every code defined above.
var KnownCodes = []Code{
	OK, Created, Accepted, NoContent,
	BadRequest, Unauthorized, PaymentRequired, Forbidden, NotFound, MethodNotAllowed,
	RequestTimeout, RequestEntityTooLarge, Teapot,
	InternalServerError, NotImplemented, ServiceUnavailable,
}

// Text returns a text for the HTTP status code. It returns the empty
// string if the code is unknown.
func Text(code Code) Status {
	switch code {
	case OK:
		return "OK"
	case Created:
		return "Created"
	case Accepted:
		return "Accepted"
	case NoContent:
		return "No Content"
	case BadRequest:
		return "Bad Request"
	case Unauthorized:
		return "Unauthorized"
	case PaymentRequired:
		return "Payment Required"
	case Forbidden:
		return "Forbidden"
	case NotFound:
		return "Not Found"
	case MethodNotAllowed:
		return "Method Not Allowed"
	case RequestTimeout:
		return "Request Timeout"
	case RequestEntityTooLarge:
		return "Request Entity Too Large"
	case Teapot:
		return "I'm a teapot"
	case InternalServerError:
		return "Internal Server Error"
	case NotImplemented:
		return "Not Implemented"
	case ServiceUnavailable:
		return "Service Unavailable"
	default:
		return ""
	}
}

// StringCode returns the decimal form of the code, as it's carried in the :status
// pseudo-header.
func StringCode(code Code) string {
	return strconv.FormatUint(uint64(code), 10)
}

// Parse is the reverse of StringCode. Anything that isn't a 3-digit number results in
// false.
func Parse(str string) (Code, bool) {
	if len(str) != 3 {
		return 0, false
	}

	code, err := strconv.ParseUint(str, 10, 16)
	if err != nil || code < 100 {
		return 0, false
	}

	return Code(code), true
}
